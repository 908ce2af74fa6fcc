package grandpa

import (
	"github.com/ChainSafe/gossamer/lib/trie"
	substrate "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"

	"github.com/ComposableFi/ics10-grandpa/types"
)

// BestFinalized returns the hash and number of the best finalized remote
// header. This is the anchor the messaging layer verifies proofs against.
func (c *Client) BestFinalized() (substrate.Hash, uint32, error) {
	fs, err := c.store.BestFinalized()
	if err != nil {
		return substrate.Hash{}, 0, err
	}
	return fs.Hash, uint32(fs.Number), nil
}

// StateRootOf returns the state root of a finalized header so the caller
// can verify storage proofs against it. Imported-but-unfinalized, unknown
// and pruned headers all fail with ErrNotFinalized.
func (c *Client) StateRootOf(hash substrate.Hash) (substrate.Hash, error) {
	finalized, err := c.store.IsFinalized(hash)
	if err != nil {
		return substrate.Hash{}, err
	}
	if !finalized {
		return substrate.Hash{}, sdkerrors.Wrapf(types.ErrNotFinalized, "header %#x", hash)
	}
	h, err := c.store.Header(hash)
	if err != nil {
		return substrate.Hash{}, err
	}
	return h.StateRoot, nil
}

// IsAncestor reports whether candidate is an ancestor of head, walking
// parent links bounded by the retention window.
func (c *Client) IsAncestor(candidate, head substrate.Hash) (bool, error) {
	return c.store.IsAncestor(candidate, head)
}

// VerifyStateProof checks a substrate storage proof against a finalized
// state root and returns the proven value. The proof is the set of trie
// nodes on the path to the key, exactly as the remote chain's state RPC
// hands them to the relayer.
func VerifyStateProof(stateRoot substrate.Hash, proof [][]byte, key []byte) ([]byte, error) {
	t := trie.NewEmptyTrie()
	if err := t.LoadFromProof(proof, stateRoot[:]); err != nil {
		return nil, sdkerrors.Wrap(types.ErrInvalidStateProof, err.Error())
	}
	value := t.Get(key)
	if len(value) == 0 {
		return nil, sdkerrors.Wrapf(types.ErrInvalidStateProof, "no value for key %#x", key)
	}
	return value, nil
}
