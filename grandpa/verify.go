package grandpa

import (
	"github.com/ChainSafe/gossamer/lib/crypto/ed25519"
	substrate "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"

	"github.com/ComposableFi/ics10-grandpa/types"
)

// verifyJustification checks the finality proof against the current
// authority set and, when that fails on signer or weight grounds, against
// the one superseded set still retained: a justification assembled before a
// rotation may arrive after the client has already rotated.
func (c *Client) verifyJustification(pending types.Header, pendingHash substrate.Hash, j *types.Justification) error {
	current, err := c.store.AuthoritySet()
	if err != nil {
		return err
	}

	curErr := c.verifyWithSet(pending, pendingHash, j, current)
	if curErr == nil {
		return nil
	}
	if !sdkerrors.IsOf(curErr, types.ErrUnknownSigner, types.ErrInvalidSignature, types.ErrInsufficientWeight) {
		return curErr
	}

	previous, ok, err := c.store.PreviousAuthoritySet()
	if err != nil {
		return err
	}
	if !ok {
		return curErr
	}
	if prevErr := c.verifyWithSet(pending, pendingHash, j, previous); prevErr == nil {
		c.logger.Debug("justification verified against superseded authority set",
			"set_id", uint64(previous.ID), "round", uint64(j.Round))
		return nil
	}
	// report the failure against the live set; that is the one a relayer
	// should be signing for
	return curErr
}

// verifyWithSet runs the full check sequence against one authority set
// generation. The set id is bound into every signed payload, so a proof
// produced for a different generation fails signature verification here.
func (c *Client) verifyWithSet(pending types.Header, pendingHash substrate.Hash, j *types.Justification, set types.AuthoritySet) error {
	threshold := set.Threshold()

	// membership and weight first: signature checks are the expensive part
	// and a proof that cannot reach the threshold is rejected without them
	seen := make(map[substrate.H256]types.Precommit, len(j.Commit.Precommits))
	unique := make([]types.SignedPrecommit, 0, len(j.Commit.Precommits))
	var weight uint64
	for _, sp := range j.Commit.Precommits {
		if first, dup := seen[sp.ID]; dup {
			if first.TargetHash != sp.Precommit.TargetHash {
				c.logger.Warn("equivocating precommits in justification",
					"authority", sp.ID.Hex(), "round", uint64(j.Round))
			}
			continue
		}
		w, member := set.WeightOf(sp.ID)
		if !member {
			return sdkerrors.Wrapf(types.ErrUnknownSigner, "authority %#x in set %d", sp.ID, set.ID)
		}
		seen[sp.ID] = sp.Precommit
		unique = append(unique, sp)
		weight += w
	}
	if weight < threshold {
		return sdkerrors.Wrapf(types.ErrInsufficientWeight,
			"justification carries weight %d of required %d", weight, threshold)
	}

	for _, sp := range unique {
		payload, err := types.SignedPayload(sp.Precommit, uint64(j.Round), uint64(set.ID))
		if err != nil {
			return err
		}
		pub, err := ed25519.NewPublicKey(sp.ID[:])
		if err != nil {
			return sdkerrors.Wrap(types.ErrInvalidSignature, err.Error())
		}
		ok, err := pub.Verify(payload, sp.Signature[:])
		if err != nil {
			return sdkerrors.Wrap(types.ErrInvalidSignature, err.Error())
		}
		if !ok {
			return sdkerrors.Wrapf(types.ErrInvalidSignature,
				"authority %#x round %d", sp.ID, j.Round)
		}
	}

	if err := c.checkTarget(pending, pendingHash, j.Commit); err != nil {
		return err
	}
	return c.checkPrecommitAncestry(pending, pendingHash, j)
}

// checkTarget requires the commit target to be the header being submitted
// or one already retained in the store, and the commit's claimed target
// number to match that header's actual number.
func (c *Client) checkTarget(pending types.Header, pendingHash substrate.Hash, commit types.Commit) error {
	var number uint32
	if commit.TargetHash == pendingHash {
		number = types.HeaderNumber(pending)
	} else {
		h, err := c.store.Header(commit.TargetHash)
		if err != nil {
			if sdkerrors.IsOf(err, types.ErrHeaderNotFound) {
				return sdkerrors.Wrapf(types.ErrUnknownTarget, "target %#x", commit.TargetHash)
			}
			return err
		}
		number = types.HeaderNumber(h)
	}
	if uint32(commit.TargetNumber) != number {
		return sdkerrors.Wrapf(types.ErrUnknownTarget,
			"commit claims number %d for target %#x at number %d",
			uint32(commit.TargetNumber), commit.TargetHash, number)
	}
	return nil
}

// checkPrecommitAncestry requires every precommit target to be reachable
// forward from the commit target through the justification's ancestry
// headers or headers already retained in the store. The walk is bounded by
// the ancestry set's size plus the retention window, so a malformed proof
// cannot force an unbounded traversal.
func (c *Client) checkPrecommitAncestry(pending types.Header, pendingHash substrate.Hash, j *types.Justification) error {
	parents := make(map[substrate.Hash]substrate.Hash, len(j.VotesAncestries)+1)
	for _, h := range j.VotesAncestries {
		hash, err := types.HeaderHash(h)
		if err != nil {
			return err
		}
		parents[hash] = h.ParentHash
	}
	parents[pendingHash] = pending.ParentHash

	target := j.Commit.TargetHash
	limit := len(parents) + int(c.store.Window())
	for _, sp := range j.Commit.Precommits {
		cur := sp.Precommit.TargetHash
		reachable := cur == target
		for steps := 0; !reachable && steps <= limit; steps++ {
			parent, known := parents[cur]
			if !known {
				h, err := c.store.Header(cur)
				if err != nil {
					if sdkerrors.IsOf(err, types.ErrHeaderNotFound) {
						break
					}
					return err
				}
				parent = h.ParentHash
			}
			reachable = parent == target
			cur = parent
		}
		if !reachable {
			return sdkerrors.Wrapf(types.ErrUnknownTarget,
				"precommit target %#x is not a descendant of %#x", sp.Precommit.TargetHash, target)
		}
	}
	return nil
}
