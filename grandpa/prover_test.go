package grandpa_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ComposableFi/ics10-grandpa/grandpa"
	"github.com/ComposableFi/ics10-grandpa/types"
)

func TestStateRootOfFinalized(t *testing.T) {
	auths := genAuthorities(t, 1, 1, 1, 1)
	client := newTestClient(t, auths, 0)

	chain := buildChain(t, genesisHeader(), 3)
	submitChain(t, client, auths, chain, 1, 0)

	for _, h := range chain {
		root, err := client.StateRootOf(mustHash(t, h))
		require.NoError(t, err)
		require.Equal(t, h.StateRoot, root)
	}
}

func TestStateRootOfImportedButNotFinalized(t *testing.T) {
	auths := genAuthorities(t, 1, 1, 1, 1)
	client := newTestClient(t, auths, 0)

	h1 := childHeader(t, genesisHeader())
	require.NoError(t, client.ImportHeader(h1))

	_, err := client.StateRootOf(mustHash(t, h1))
	require.ErrorIs(t, err, types.ErrNotFinalized)
}

func TestStateRootOfUnknownHeader(t *testing.T) {
	auths := genAuthorities(t, 1, 1, 1, 1)
	client := newTestClient(t, auths, 0)

	h1 := childHeader(t, genesisHeader())
	_, err := client.StateRootOf(mustHash(t, h1))
	require.ErrorIs(t, err, types.ErrNotFinalized)
}

func TestIsAncestorOnFinalizedChain(t *testing.T) {
	auths := genAuthorities(t, 1, 1, 1, 1)
	client := newTestClient(t, auths, 0)

	chain := buildChain(t, genesisHeader(), 4)
	submitChain(t, client, auths, chain, 1, 0)

	best := mustHash(t, chain[3])
	ok, err := client.IsAncestor(mustHash(t, chain[0]), best)
	require.NoError(t, err)
	require.True(t, ok)

	// reflexive
	ok, err = client.IsAncestor(best, best)
	require.NoError(t, err)
	require.True(t, ok)

	// a sibling fork is not an ancestor
	fork := childHeader(t, chain[2], scheduledChange(auths, 0))
	ok, err = client.IsAncestor(mustHash(t, fork), best)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyStateProofRejectsGarbage(t *testing.T) {
	h1 := childHeader(t, genesisHeader())
	_, err := grandpa.VerifyStateProof(h1.StateRoot, [][]byte{{0x00, 0x01}}, []byte("key"))
	require.ErrorIs(t, err, types.ErrInvalidStateProof)
}
