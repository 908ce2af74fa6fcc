// Package store implements the bounded, hash indexed repository of imported
// remote headers backing the GRANDPA light client. All mutations are staged
// onto a caller supplied batch so a whole submission commits or rejects as
// one unit.
package store

import (
	"encoding/binary"

	substrate "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
	dbm "github.com/tendermint/tm-db"

	"github.com/ComposableFi/ics10-grandpa/types"
)

// Store is a header repository over a tm-db backend. It retains the
// finalized chain plus imported forks inside a fixed retention window behind
// the best finalized header; everything older is pruned unconditionally.
type Store struct {
	db     dbm.DB
	window uint32
}

// New wraps the given database. retentionWindow bounds both stored history
// and every ancestry walk.
func New(db dbm.DB, retentionWindow uint32) *Store {
	return &Store{db: db, window: retentionWindow}
}

// Window returns the configured retention window.
func (s *Store) Window() uint32 {
	return s.window
}

// DB exposes the underlying database for batch creation by the client.
func (s *Store) DB() dbm.DB {
	return s.db
}

// Initialized reports whether the database already holds a client layout.
func (s *Store) Initialized() (bool, error) {
	bz, err := s.db.Get(keyVersion)
	if err != nil {
		return false, err
	}
	return len(bz) > 0, nil
}

// Bootstrap writes the trusted genesis header as the finalized root of an
// empty store, together with the authority set active at it. Everything
// lands in one batch so an interrupted first run leaves the database empty
// rather than version stamped but setless. It refuses to run twice.
func (s *Store) Bootstrap(genesis types.Header, set types.AuthoritySet) error {
	if ok, err := s.Initialized(); err != nil {
		return err
	} else if ok {
		return sdkerrors.Wrap(types.ErrDuplicate, "store is already bootstrapped")
	}
	hash, err := types.HeaderHash(genesis)
	if err != nil {
		return err
	}
	number := types.HeaderNumber(genesis)

	b := s.db.NewBatch()
	defer b.Close()
	if err := s.stageHeader(b, genesis, hash, number); err != nil {
		return err
	}
	if err := b.Set(finalizedKey(number), hash[:]); err != nil {
		return err
	}
	if err := s.stageFinalityState(b, types.FinalityState{Hash: hash, Number: substrate.NewU32(number)}); err != nil {
		return err
	}
	if err := s.StageAuthoritySets(b, set, nil); err != nil {
		return err
	}
	if err := b.Set(keyVersion, []byte{layoutVersion}); err != nil {
		return err
	}
	return b.WriteSync()
}

// CheckVersion fails when the persisted layout is from an incompatible
// release of the client.
func (s *Store) CheckVersion() error {
	bz, err := s.db.Get(keyVersion)
	if err != nil {
		return err
	}
	if len(bz) != 1 || bz[0] != layoutVersion {
		return sdkerrors.Wrapf(types.ErrStoreCorrupted, "unsupported store layout version %v", bz)
	}
	return nil
}

// BestFinalized returns the finality pointer.
func (s *Store) BestFinalized() (types.FinalityState, error) {
	bz, err := s.db.Get(keyFinalized)
	if err != nil {
		return types.FinalityState{}, err
	}
	if len(bz) == 0 {
		return types.FinalityState{}, sdkerrors.Wrap(types.ErrStoreCorrupted, "missing finality pointer")
	}
	var fs types.FinalityState
	if err := substrate.DecodeFromBytes(bz, &fs); err != nil {
		return types.FinalityState{}, sdkerrors.Wrap(types.ErrStoreCorrupted, err.Error())
	}
	return fs, nil
}

// HasHeader reports whether the hash is an imported, still retained header.
func (s *Store) HasHeader(hash substrate.Hash) (bool, error) {
	bz, err := s.db.Get(hashIndexKey(hash))
	if err != nil {
		return false, err
	}
	return len(bz) > 0, nil
}

// Header looks up a retained header by hash.
func (s *Store) Header(hash substrate.Hash) (types.Header, error) {
	nb, err := s.db.Get(hashIndexKey(hash))
	if err != nil {
		return types.Header{}, err
	}
	if len(nb) == 0 {
		return types.Header{}, sdkerrors.Wrapf(types.ErrHeaderNotFound, "header %#x", hash)
	}
	number := uint32(binary.BigEndian.Uint64(nb))
	hb, err := s.db.Get(headerKey(number, hash))
	if err != nil {
		return types.Header{}, err
	}
	if len(hb) == 0 {
		return types.Header{}, sdkerrors.Wrapf(types.ErrStoreCorrupted, "dangling hash index for %#x", hash)
	}
	var h types.Header
	if err := substrate.DecodeFromBytes(hb, &h); err != nil {
		return types.Header{}, sdkerrors.Wrap(types.ErrStoreCorrupted, err.Error())
	}
	return h, nil
}

// FinalizedHashAt returns the hash of the finalized header at the given
// number, when that part of the chain is still retained.
func (s *Store) FinalizedHashAt(number uint32) (substrate.Hash, bool, error) {
	bz, err := s.db.Get(finalizedKey(number))
	if err != nil || len(bz) == 0 {
		return substrate.Hash{}, false, err
	}
	return substrate.NewHash(bz), true, nil
}

// CheckImportable validates the import preconditions without writing:
// the header must be new, inside the retention window, and its parent must
// already be retained.
func (s *Store) CheckImportable(h types.Header) error {
	hash, err := types.HeaderHash(h)
	if err != nil {
		return err
	}
	if ok, err := s.HasHeader(hash); err != nil {
		return err
	} else if ok {
		return sdkerrors.Wrapf(types.ErrDuplicate, "header %#x", hash)
	}
	best, err := s.BestFinalized()
	if err != nil {
		return err
	}
	number := types.HeaderNumber(h)
	if number+s.window < uint32(best.Number) {
		return sdkerrors.Wrapf(types.ErrTooOld,
			"header %d is behind the retention window of finalized %d", number, best.Number)
	}
	if ok, err := s.HasHeader(h.ParentHash); err != nil {
		return err
	} else if !ok {
		return sdkerrors.Wrapf(types.ErrUnknownParent, "parent %#x of header %d", h.ParentHash, number)
	}
	parent, err := s.Header(h.ParentHash)
	if err != nil {
		return err
	}
	if types.HeaderNumber(parent)+1 != number {
		return sdkerrors.Wrapf(types.ErrInvalidHeader,
			"header number %d does not follow parent %d", number, types.HeaderNumber(parent))
	}
	return nil
}

// StageImport stages the header write onto the batch. Preconditions are the
// caller's business (CheckImportable), which keeps a rejected submission
// from touching the database at all.
func (s *Store) StageImport(b dbm.Batch, h types.Header) error {
	hash, err := types.HeaderHash(h)
	if err != nil {
		return err
	}
	return s.stageHeader(b, h, hash, types.HeaderNumber(h))
}

func (s *Store) stageHeader(b dbm.Batch, h types.Header, hash substrate.Hash, number uint32) error {
	hb, err := substrate.EncodeToBytes(h)
	if err != nil {
		return err
	}
	if err := b.Set(headerKey(number, hash), hb); err != nil {
		return err
	}
	return b.Set(hashIndexKey(hash), numberBytes(number))
}

// FinalityChain walks parent links from target back to the current best
// finalized header and returns the newly finalized headers in ascending
// order, target included. pending is the not-yet-committed header of the
// submission in flight, consulted before the database. The walk is bounded
// by the retention window.
func (s *Store) FinalityChain(target substrate.Hash, pending *types.Header) ([]types.Header, error) {
	best, err := s.BestFinalized()
	if err != nil {
		return nil, err
	}

	lookup := func(hash substrate.Hash) (types.Header, error) {
		if pending != nil {
			ph, err := types.HeaderHash(*pending)
			if err != nil {
				return types.Header{}, err
			}
			if ph == hash {
				return *pending, nil
			}
		}
		return s.Header(hash)
	}

	head, err := lookup(target)
	if err != nil {
		return nil, sdkerrors.Wrapf(types.ErrUnknownTarget, "target %#x", target)
	}
	headNumber := types.HeaderNumber(head)
	if headNumber <= uint32(best.Number) {
		return nil, sdkerrors.Wrapf(types.ErrNoAncestryPath,
			"target %d does not descend from finalized %d", headNumber, best.Number)
	}
	if headNumber-uint32(best.Number) > s.window {
		return nil, sdkerrors.Wrapf(types.ErrTooOld,
			"finality jump of %d headers exceeds the retention window %d", headNumber-uint32(best.Number), s.window)
	}

	chain := []types.Header{head}
	cur := head
	for types.HeaderNumber(cur) > uint32(best.Number)+1 {
		parent, err := lookup(cur.ParentHash)
		if err != nil {
			return nil, sdkerrors.Wrapf(types.ErrNoAncestryPath,
				"missing ancestor %#x at height %d", cur.ParentHash, types.HeaderNumber(cur)-1)
		}
		chain = append(chain, parent)
		cur = parent
	}
	if cur.ParentHash != best.Hash {
		return nil, sdkerrors.Wrapf(types.ErrNoAncestryPath,
			"chain reaches %#x instead of finalized head %#x", cur.ParentHash, best.Hash)
	}

	// reverse into ascending order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// StageFinalize stages the finality pointer move for the ascending chain
// returned by FinalityChain, records the finalized-number index, discards
// imported forks that lost to the finalized chain, and prunes everything
// behind the retention window.
func (s *Store) StageFinalize(b dbm.Batch, chain []types.Header) error {
	if len(chain) == 0 {
		return sdkerrors.Wrap(types.ErrNoAncestryPath, "empty finality chain")
	}
	newBest := chain[len(chain)-1]
	newBestHash, err := types.HeaderHash(newBest)
	if err != nil {
		return err
	}
	newBestNumber := types.HeaderNumber(newBest)

	finalized := make(map[substrate.Hash]struct{}, len(chain))
	for _, h := range chain {
		hash, err := types.HeaderHash(h)
		if err != nil {
			return err
		}
		finalized[hash] = struct{}{}
		if err := b.Set(finalizedKey(types.HeaderNumber(h)), hash[:]); err != nil {
			return err
		}
	}

	if err := s.stageFinalityState(b, types.FinalityState{
		Hash:   newBestHash,
		Number: substrate.NewU32(newBestNumber),
	}); err != nil {
		return err
	}

	var cutoff uint32
	if newBestNumber > s.window {
		cutoff = newBestNumber - s.window
	}
	if err := s.stageForkDiscard(b, newBestNumber, cutoff, finalized); err != nil {
		return err
	}
	return s.stageWindowPrune(b, cutoff)
}

// stageForkDiscard deletes retained headers at or below the new best number
// that are not on the finalized chain. Finality is the tie break between
// competing forks: once a header finalizes, every sibling is unreachable.
func (s *Store) stageForkDiscard(b dbm.Batch, newBest, cutoff uint32, finalized map[substrate.Hash]struct{}) error {
	start, end := prefixRange(headerPrefix, newBest+1)
	it, err := s.db.Iterator(start, end)
	if err != nil {
		return err
	}
	defer it.Close()

	for ; it.Valid(); it.Next() {
		key := it.Key()
		number := uint32(binary.BigEndian.Uint64(key[len(headerPrefix) : len(headerPrefix)+8]))
		hash := substrate.NewHash(key[len(headerPrefix)+8:])
		if _, ok := finalized[hash]; ok {
			continue
		}
		if onChain, err := s.onFinalizedChain(number, hash); err != nil {
			return err
		} else if onChain && number >= cutoff {
			continue
		}
		if err := b.Delete(append([]byte{}, key...)); err != nil {
			return err
		}
		if err := b.Delete(hashIndexKey(hash)); err != nil {
			return err
		}
	}
	return it.Error()
}

// stageWindowPrune drops the finalized-number index and any finalized
// headers behind the retention window.
func (s *Store) stageWindowPrune(b dbm.Batch, cutoff uint32) error {
	if cutoff == 0 {
		return nil
	}
	start, end := prefixRange(finalizedPrefix, cutoff)
	it, err := s.db.Iterator(start, end)
	if err != nil {
		return err
	}
	defer it.Close()

	for ; it.Valid(); it.Next() {
		number := uint32(binary.BigEndian.Uint64(it.Key()[len(finalizedPrefix):]))
		hash := substrate.NewHash(it.Value())
		if err := b.Delete(append([]byte{}, it.Key()...)); err != nil {
			return err
		}
		if err := b.Delete(headerKey(number, hash)); err != nil {
			return err
		}
		if err := b.Delete(hashIndexKey(hash)); err != nil {
			return err
		}
	}
	return it.Error()
}

func (s *Store) onFinalizedChain(number uint32, hash substrate.Hash) (bool, error) {
	at, ok, err := s.FinalizedHashAt(number)
	if err != nil || !ok {
		return false, err
	}
	return at == hash, nil
}

// IsAncestor walks parent links from head towards candidate. The walk is
// bounded by the retention window; leaving it, either through a pruned
// parent or by exhausting the step budget, fails with ErrTooOld instead of
// scanning unbounded history.
func (s *Store) IsAncestor(candidate, head substrate.Hash) (bool, error) {
	if candidate == head {
		return true, nil
	}

	// finalized headers are indexed by number, which settles the common
	// case without walking
	if cNum, cOK, err := s.finalizedNumberOf(candidate); err != nil {
		return false, err
	} else if cOK {
		if hNum, hOK, err := s.finalizedNumberOf(head); err != nil {
			return false, err
		} else if hOK {
			return cNum < hNum, nil
		}
	}

	cur := head
	for steps := uint32(0); steps <= s.window; steps++ {
		h, err := s.Header(cur)
		if err != nil {
			if sdkerrors.IsOf(err, types.ErrHeaderNotFound) {
				return false, sdkerrors.Wrapf(types.ErrTooOld,
					"ancestry walk left the retention window at %#x", cur)
			}
			return false, err
		}
		if types.HeaderNumber(h) == 0 {
			return false, nil
		}
		if h.ParentHash == candidate {
			return true, nil
		}
		cur = h.ParentHash
	}
	return false, sdkerrors.Wrapf(types.ErrTooOld,
		"ancestry walk from %#x exceeded the retention window %d", head, s.window)
}

// IsFinalized reports whether the hash is on the retained finalized chain
// (the best finalized header or one of its stored ancestors).
func (s *Store) IsFinalized(hash substrate.Hash) (bool, error) {
	_, ok, err := s.finalizedNumberOf(hash)
	return ok, err
}

func (s *Store) finalizedNumberOf(hash substrate.Hash) (uint32, bool, error) {
	nb, err := s.db.Get(hashIndexKey(hash))
	if err != nil || len(nb) == 0 {
		return 0, false, err
	}
	number := uint32(binary.BigEndian.Uint64(nb))
	at, ok, err := s.FinalizedHashAt(number)
	if err != nil || !ok {
		return 0, false, err
	}
	return number, at == hash, nil
}

func (s *Store) stageFinalityState(b dbm.Batch, fs types.FinalityState) error {
	bz, err := substrate.EncodeToBytes(fs)
	if err != nil {
		return err
	}
	return b.Set(keyFinalized, bz)
}

// AuthoritySet returns the current authority set.
func (s *Store) AuthoritySet() (types.AuthoritySet, error) {
	return s.readSet(keyAuthoritySet, true)
}

// PreviousAuthoritySet returns the superseded set kept for in-flight
// justifications, or ok=false when none is retained.
func (s *Store) PreviousAuthoritySet() (types.AuthoritySet, bool, error) {
	set, err := s.readSet(keyPreviousSet, false)
	if err != nil {
		return types.AuthoritySet{}, false, err
	}
	return set, len(set.Authorities) > 0, nil
}

func (s *Store) readSet(key []byte, required bool) (types.AuthoritySet, error) {
	bz, err := s.db.Get(key)
	if err != nil {
		return types.AuthoritySet{}, err
	}
	if len(bz) == 0 {
		if required {
			return types.AuthoritySet{}, sdkerrors.Wrap(types.ErrStoreCorrupted, "missing authority set")
		}
		return types.AuthoritySet{}, nil
	}
	var set types.AuthoritySet
	if err := substrate.DecodeFromBytes(bz, &set); err != nil {
		return types.AuthoritySet{}, sdkerrors.Wrap(types.ErrStoreCorrupted, err.Error())
	}
	return set, nil
}

// StageAuthoritySets stages the current set and, when previous is non-nil,
// the superseded one; a nil previous clears the slot.
func (s *Store) StageAuthoritySets(b dbm.Batch, current types.AuthoritySet, previous *types.AuthoritySet) error {
	bz, err := substrate.EncodeToBytes(current)
	if err != nil {
		return err
	}
	if err := b.Set(keyAuthoritySet, bz); err != nil {
		return err
	}
	if previous == nil {
		return b.Delete(keyPreviousSet)
	}
	pb, err := substrate.EncodeToBytes(*previous)
	if err != nil {
		return err
	}
	return b.Set(keyPreviousSet, pb)
}

// PendingChange returns the queued authority rotation, if any.
func (s *Store) PendingChange() (types.PendingChange, bool, error) {
	bz, err := s.db.Get(keyPendingChange)
	if err != nil || len(bz) == 0 {
		return types.PendingChange{}, false, err
	}
	var pc types.PendingChange
	if err := substrate.DecodeFromBytes(bz, &pc); err != nil {
		return types.PendingChange{}, false, sdkerrors.Wrap(types.ErrStoreCorrupted, err.Error())
	}
	return pc, true, nil
}

// StagePendingChange stages the queued rotation; nil clears it.
func (s *Store) StagePendingChange(b dbm.Batch, pc *types.PendingChange) error {
	if pc == nil {
		return b.Delete(keyPendingChange)
	}
	bz, err := substrate.EncodeToBytes(*pc)
	if err != nil {
		return err
	}
	return b.Set(keyPendingChange, bz)
}
