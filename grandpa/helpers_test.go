package grandpa_test

import (
	"encoding/binary"
	"testing"

	"github.com/ChainSafe/gossamer/lib/crypto/ed25519"
	substrate "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/ComposableFi/ics10-grandpa/grandpa"
	"github.com/ComposableFi/ics10-grandpa/types"
)

// testAuthority pairs a generated ed25519 keypair with its voting weight.
type testAuthority struct {
	keypair *ed25519.Keypair
	id      substrate.H256
	weight  uint64
}

func genAuthorities(t *testing.T, weights ...uint64) []testAuthority {
	t.Helper()
	auths := make([]testAuthority, len(weights))
	for i, w := range weights {
		kp, err := ed25519.GenerateKeypair()
		require.NoError(t, err)
		var id substrate.H256
		copy(id[:], kp.Public().Encode())
		auths[i] = testAuthority{keypair: kp, id: id, weight: w}
	}
	return auths
}

func authorityList(auths []testAuthority) []types.Authority {
	list := make([]types.Authority, len(auths))
	for i, a := range auths {
		list[i] = types.Authority{Key: a.id, Weight: substrate.NewU64(a.weight)}
	}
	return list
}

func genesisHeader() types.Header {
	return types.Header{
		ParentHash: substrate.Hash{},
		Number:     0,
		StateRoot:  testStateRoot(0),
	}
}

func testStateRoot(number uint32) substrate.Hash {
	var root substrate.Hash
	binary.LittleEndian.PutUint32(root[:4], number)
	root[31] = 0x73
	return root
}

// childHeader builds the next header on top of parent, optionally carrying
// GRANDPA consensus logs in its digest.
func childHeader(t *testing.T, parent types.Header, logs ...types.ConsensusLog) types.Header {
	t.Helper()
	parentHash, err := types.HeaderHash(parent)
	require.NoError(t, err)
	number := types.HeaderNumber(parent) + 1
	h := types.Header{
		ParentHash: parentHash,
		Number:     substrate.BlockNumber(number),
		StateRoot:  testStateRoot(number),
	}
	for _, log := range logs {
		bz, err := substrate.EncodeToBytes(log)
		require.NoError(t, err)
		h.Digest = append(h.Digest, substrate.DigestItem{
			IsConsensus: true,
			AsConsensus: substrate.Consensus{
				ConsensusEngineID: types.GrandpaEngineID,
				Bytes:             bz,
			},
		})
	}
	return h
}

// buildChain extends parent with n plain headers.
func buildChain(t *testing.T, parent types.Header, n int) []types.Header {
	t.Helper()
	chain := make([]types.Header, 0, n)
	for i := 0; i < n; i++ {
		parent = childHeader(t, parent)
		chain = append(chain, parent)
	}
	return chain
}

func scheduledChange(auths []testAuthority, delay uint32) types.ConsensusLog {
	return types.ConsensusLog{
		IsScheduledChange: true,
		AsScheduledChange: types.ScheduledChange{
			NextAuthorities: authorityList(auths),
			Delay:           substrate.NewU32(delay),
		},
	}
}

// justify signs a justification for target with the given subset of
// authorities at the given round and set id.
func justify(t *testing.T, auths []testAuthority, signers []int, target types.Header, round, setID uint64) *types.Justification {
	t.Helper()
	targetHash, err := types.HeaderHash(target)
	require.NoError(t, err)
	targetNumber := substrate.NewU32(types.HeaderNumber(target))

	precommit := types.Precommit{TargetHash: targetHash, TargetNumber: targetNumber}
	payload, err := types.SignedPayload(precommit, round, setID)
	require.NoError(t, err)

	j := &types.Justification{
		Round: substrate.NewU64(round),
		Commit: types.Commit{
			TargetHash:   targetHash,
			TargetNumber: targetNumber,
		},
	}
	for _, idx := range signers {
		sig, err := auths[idx].keypair.Sign(payload)
		require.NoError(t, err)
		j.Commit.Precommits = append(j.Commit.Precommits, types.SignedPrecommit{
			Precommit: precommit,
			Signature: substrate.NewSignature(sig),
			ID:        auths[idx].id,
		})
	}
	return j
}

func freshDB() dbm.DB {
	return dbm.NewMemDB()
}

func testConfig(auths []testAuthority) grandpa.Config {
	return grandpa.Config{
		GenesisHeader: genesisHeader(),
		Authorities:   authorityList(auths),
		SetID:         0,
	}
}

func newClientOn(db dbm.DB, cfg grandpa.Config) (*grandpa.Client, error) {
	return grandpa.NewClient(db, cfg)
}

func newTestClient(t *testing.T, auths []testAuthority, window uint32) *grandpa.Client {
	t.Helper()
	cfg := testConfig(auths)
	cfg.RetentionWindow = window
	client, err := grandpa.NewClient(freshDB(), cfg)
	require.NoError(t, err)
	return client
}

// submitChain imports every header except the last, which is submitted with
// a justification signed by all authorities.
func submitChain(t *testing.T, c *grandpa.Client, auths []testAuthority, chain []types.Header, round, setID uint64) {
	t.Helper()
	all := make([]int, len(auths))
	for i := range auths {
		all[i] = i
	}
	for _, h := range chain[:len(chain)-1] {
		require.NoError(t, c.ImportHeader(h))
	}
	last := chain[len(chain)-1]
	require.NoError(t, c.Submit(last, justify(t, auths, all, last, round, setID)))
}
