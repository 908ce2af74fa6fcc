package grandpa

import (
	substrate "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
	dbm "github.com/tendermint/tm-db"

	"github.com/ComposableFi/ics10-grandpa/types"
)

// rotation is the authority state resulting from one finalized range. It is
// computed before anything is written so a rejected change (or any later
// failure in the same submission) leaves the persisted sets untouched.
type rotation struct {
	current  types.AuthoritySet
	previous *types.AuthoritySet
	pending  *types.PendingChange
	rotated  bool
}

// scanFinalized walks the newly finalized headers in order, applying a
// pending rotation when its effective header finalizes and queueing new
// change directives found in the digests. Changes apply strictly in the
// order their defining headers finalize; a second scheduled change arriving
// while one is pending is rejected. Forced changes instead displace the
// queued one.
func (c *Client) scanFinalized(chain []types.Header) (rotation, error) {
	current, err := c.store.AuthoritySet()
	if err != nil {
		return rotation{}, err
	}
	rot := rotation{current: current}
	if prev, ok, err := c.store.PreviousAuthoritySet(); err != nil {
		return rotation{}, err
	} else if ok {
		rot.previous = &prev
	}
	if pc, ok, err := c.store.PendingChange(); err != nil {
		return rotation{}, err
	} else if ok {
		rot.pending = &pc
	}

	for _, h := range chain {
		number := types.HeaderNumber(h)

		// a change effective at this header takes effect before the
		// header's own digests are read
		if err := rot.applyIfDue(number); err != nil {
			return rotation{}, err
		}

		logs, err := types.GrandpaLogs(h)
		if err != nil {
			return rotation{}, err
		}
		for _, log := range logs {
			switch {
			case log.IsScheduledChange:
				if rot.pending != nil {
					return rotation{}, sdkerrors.Wrapf(types.ErrChangeAlreadyPending,
						"change effective at %d is still pending", rot.pending.EffectiveAt)
				}
				rot.pending = &types.PendingChange{
					NextAuthorities: log.AsScheduledChange.NextAuthorities,
					AnnouncedAt:     substrate.NewU32(number),
					EffectiveAt:     substrate.NewU32(number + uint32(log.AsScheduledChange.Delay)),
				}
			case log.IsForcedChange:
				if rot.pending != nil {
					c.logger.Warn("forced change displaces pending rotation",
						"pending_at", uint32(rot.pending.EffectiveAt), "announced_at", number)
				}
				rot.pending = &types.PendingChange{
					NextAuthorities: log.AsForcedChange.Change.NextAuthorities,
					AnnouncedAt:     substrate.NewU32(number),
					EffectiveAt:     substrate.NewU32(number + uint32(log.AsForcedChange.Change.Delay)),
					Forced:          true,
				}
			}
		}

		// zero delay: the announcing header is also the effective one
		if err := rot.applyIfDue(number); err != nil {
			return rotation{}, err
		}
	}
	return rot, nil
}

// applyIfDue rotates the set when the pending change's effective header has
// finalized. Only the immediately superseded generation is retained for
// in-flight justifications; anything older is dropped here.
func (r *rotation) applyIfDue(number uint32) error {
	if r.pending == nil || !r.pending.AppliesAt(number) {
		return nil
	}
	next, err := types.NewAuthoritySet(uint64(r.current.ID)+1, r.pending.NextAuthorities)
	if err != nil {
		return err
	}
	superseded := r.current
	r.previous = &superseded
	r.current = next
	r.pending = nil
	r.rotated = true
	return nil
}

// stageRotation stages the authority state produced by scanFinalized.
func (c *Client) stageRotation(b dbm.Batch, rot rotation) error {
	if rot.rotated {
		if err := c.store.StageAuthoritySets(b, rot.current, rot.previous); err != nil {
			return err
		}
		c.logger.Info("rotated authority set",
			"set_id", uint64(rot.current.ID), "authorities", len(rot.current.Authorities))
	}
	return c.store.StagePendingChange(b, rot.pending)
}
