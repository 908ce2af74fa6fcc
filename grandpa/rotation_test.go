package grandpa_test

import (
	"testing"

	substrate "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/stretchr/testify/require"

	"github.com/ComposableFi/ics10-grandpa/types"
)

func TestChangeNotAppliedOnImport(t *testing.T) {
	setA := genAuthorities(t, 1, 1, 1, 1)
	setB := genAuthorities(t, 1, 1, 1)
	client := newTestClient(t, setA, 0)

	h1 := childHeader(t, genesisHeader(), scheduledChange(setB, 0))
	require.NoError(t, client.ImportHeader(h1))

	// imported is not finalized: the announcement must not have taken
	// effect, nor even be queued
	set, err := client.AuthoritySet()
	require.NoError(t, err)
	require.Equal(t, substrate.NewU64(0), set.ID)
	_, pending, err := client.PendingChange()
	require.NoError(t, err)
	require.False(t, pending)
}

func TestChangeAppliesWhenAnnouncingHeaderFinalizes(t *testing.T) {
	setA := genAuthorities(t, 1, 1, 1, 1)
	setB := genAuthorities(t, 1, 1, 1)
	client := newTestClient(t, setA, 0)

	h1 := childHeader(t, genesisHeader(), scheduledChange(setB, 0))
	require.NoError(t, client.Submit(h1, justify(t, setA, []int{0, 1, 2}, h1, 1, 0)))

	set, err := client.AuthoritySet()
	require.NoError(t, err)
	require.Equal(t, substrate.NewU64(1), set.ID)
	require.Equal(t, authorityList(setB), set.Authorities)

	// from here on finality proofs must come from set B under set id 1
	h2 := childHeader(t, h1)
	require.ErrorIs(t,
		client.Submit(h2, justify(t, setB, []int{0, 1}, h2, 2, 1)),
		types.ErrInsufficientWeight)
	require.NoError(t, client.Submit(h2, justify(t, setB, []int{0, 1, 2}, h2, 2, 1)))
}

func TestDelayedChangeAppliesAtEffectiveHeader(t *testing.T) {
	setA := genAuthorities(t, 1, 1, 1, 1)
	setB := genAuthorities(t, 1, 1, 1)
	client := newTestClient(t, setA, 0)

	// announced at 1, effective at 3
	h1 := childHeader(t, genesisHeader(), scheduledChange(setB, 2))
	require.NoError(t, client.Submit(h1, justify(t, setA, []int{0, 1, 2}, h1, 1, 0)))

	set, err := client.AuthoritySet()
	require.NoError(t, err)
	require.Equal(t, substrate.NewU64(0), set.ID)
	pc, pending, err := client.PendingChange()
	require.NoError(t, err)
	require.True(t, pending)
	require.Equal(t, substrate.NewU32(3), pc.EffectiveAt)

	h2 := childHeader(t, h1)
	require.NoError(t, client.Submit(h2, justify(t, setA, []int{0, 1, 2}, h2, 2, 0)))
	set, err = client.AuthoritySet()
	require.NoError(t, err)
	require.Equal(t, substrate.NewU64(0), set.ID)

	h3 := childHeader(t, h2)
	require.NoError(t, client.Submit(h3, justify(t, setA, []int{0, 1, 2}, h3, 3, 0)))
	set, err = client.AuthoritySet()
	require.NoError(t, err)
	require.Equal(t, substrate.NewU64(1), set.ID)
	_, pending, err = client.PendingChange()
	require.NoError(t, err)
	require.False(t, pending)
}

func TestChangeAlreadyPending(t *testing.T) {
	setA := genAuthorities(t, 1, 1, 1, 1)
	setB := genAuthorities(t, 1, 1, 1)
	setC := genAuthorities(t, 1, 1)
	client := newTestClient(t, setA, 0)

	h1 := childHeader(t, genesisHeader(), scheduledChange(setB, 5))
	require.NoError(t, client.Submit(h1, justify(t, setA, []int{0, 1, 2}, h1, 1, 0)))

	// a second directive while one is queued is rejected, atomically
	h2 := childHeader(t, h1, scheduledChange(setC, 0))
	err := client.Submit(h2, justify(t, setA, []int{0, 1, 2}, h2, 2, 0))
	require.ErrorIs(t, err, types.ErrChangeAlreadyPending)

	ok, err := client.Store().HasHeader(mustHash(t, h2))
	require.NoError(t, err)
	require.False(t, ok)

	// the same header without the directive is acceptable
	h2plain := childHeader(t, h1)
	require.NoError(t, client.Submit(h2plain, justify(t, setA, []int{0, 1, 2}, h2plain, 2, 0)))
}

func TestForcedChangeDisplacesPending(t *testing.T) {
	setA := genAuthorities(t, 1, 1, 1, 1)
	setB := genAuthorities(t, 1, 1, 1)
	setC := genAuthorities(t, 1, 1)
	client := newTestClient(t, setA, 0)

	h1 := childHeader(t, genesisHeader(), scheduledChange(setB, 10))
	require.NoError(t, client.Submit(h1, justify(t, setA, []int{0, 1, 2}, h1, 1, 0)))

	forced := types.ConsensusLog{
		IsForcedChange: true,
		AsForcedChange: types.ForcedChange{
			MedianLastFinalized: substrate.NewU32(1),
			Change: types.ScheduledChange{
				NextAuthorities: authorityList(setC),
				Delay:           substrate.NewU32(0),
			},
		},
	}
	h2 := childHeader(t, h1, forced)
	require.NoError(t, client.Submit(h2, justify(t, setA, []int{0, 1, 2}, h2, 2, 0)))

	set, err := client.AuthoritySet()
	require.NoError(t, err)
	require.Equal(t, substrate.NewU64(1), set.ID)
	require.Equal(t, authorityList(setC), set.Authorities)
	_, pending, err := client.PendingChange()
	require.NoError(t, err)
	require.False(t, pending)
}

func TestOldSetJustificationDuringTransition(t *testing.T) {
	setA := genAuthorities(t, 1, 1, 1, 1)
	setB := genAuthorities(t, 1, 1, 1)
	client := newTestClient(t, setA, 0)

	h1 := childHeader(t, genesisHeader(), scheduledChange(setB, 0))
	require.NoError(t, client.Submit(h1, justify(t, setA, []int{0, 1, 2}, h1, 1, 0)))

	// a proof assembled by the superseded set before the rotation is still
	// accepted for exactly one generation
	h2 := childHeader(t, h1)
	require.NoError(t, client.Submit(h2, justify(t, setA, []int{0, 1, 2}, h2, 1, 0)))

	// after a second rotation the original set is gone for good
	setC := genAuthorities(t, 1, 1)
	h3 := childHeader(t, h2, scheduledChange(setC, 0))
	require.NoError(t, client.Submit(h3, justify(t, setB, []int{0, 1, 2}, h3, 2, 1)))

	h4 := childHeader(t, h3)
	require.ErrorIs(t,
		client.Submit(h4, justify(t, setA, []int{0, 1, 2}, h4, 3, 0)),
		types.ErrUnknownSigner)
}
