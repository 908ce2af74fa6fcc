// Package grandpa implements a finality tracking light client for a remote
// GRANDPA finalized chain. It ingests (header, justification) pairs from
// untrusted relayers, verifies them against the tracked authority set and
// maintains a bounded, monotonic view of what is finalized remotely.
package grandpa

import (
	"github.com/ChainSafe/log15"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
	dbm "github.com/tendermint/tm-db"

	"github.com/ComposableFi/ics10-grandpa/store"
	"github.com/ComposableFi/ics10-grandpa/types"
)

// DefaultRetentionWindow is how many headers behind the best finalized one
// are kept for ancestry and inclusion proofs before unconditional pruning.
const DefaultRetentionWindow uint32 = 4096

// Config carries the trusted checkpoint a client starts from. It is only
// consulted when the database is empty; afterwards the persisted state wins.
type Config struct {
	// GenesisHeader is the trusted finalized root of the tracked chain.
	GenesisHeader types.Header
	// Authorities is the GRANDPA voter set active at the genesis header.
	Authorities []types.Authority
	// SetID is the generation of that voter set.
	SetID uint64
	// RetentionWindow overrides DefaultRetentionWindow when non zero.
	RetentionWindow uint32
}

func (c Config) retentionWindow() uint32 {
	if c.RetentionWindow == 0 {
		return DefaultRetentionWindow
	}
	return c.RetentionWindow
}

// Client is the finality tracker. All state lives in the backing database;
// the client itself is a thin, single writer view over it. Submissions are
// processed one at a time and commit or reject as a whole.
type Client struct {
	db     dbm.DB
	store  *store.Store
	logger log15.Logger
}

// NewClient opens a client over db. An empty database is bootstrapped from
// cfg; a non empty one is restored as-is and cfg's checkpoint is ignored.
func NewClient(db dbm.DB, cfg Config) (*Client, error) {
	c := &Client{
		db:     db,
		store:  store.New(db, cfg.retentionWindow()),
		logger: log15.New("module", types.SubModuleName),
	}

	initialized, err := c.store.Initialized()
	if err != nil {
		return nil, err
	}
	if !initialized {
		set, err := types.NewAuthoritySet(cfg.SetID, cfg.Authorities)
		if err != nil {
			return nil, err
		}
		if err := c.store.Bootstrap(cfg.GenesisHeader, set); err != nil {
			return nil, err
		}
		c.logger.Info("bootstrapped grandpa client",
			"genesis", types.HeaderNumber(cfg.GenesisHeader), "set_id", cfg.SetID)
		return c, nil
	}

	if err := c.store.CheckVersion(); err != nil {
		return nil, err
	}
	if _, err := c.store.AuthoritySet(); err != nil {
		return nil, err
	}
	return c, nil
}

// Open restores a client over an already bootstrapped database. Unlike
// NewClient it carries no checkpoint and refuses an empty database.
func Open(db dbm.DB, retentionWindow uint32) (*Client, error) {
	if retentionWindow == 0 {
		retentionWindow = DefaultRetentionWindow
	}
	c := &Client{
		db:     db,
		store:  store.New(db, retentionWindow),
		logger: log15.New("module", types.SubModuleName),
	}
	initialized, err := c.store.Initialized()
	if err != nil {
		return nil, err
	}
	if !initialized {
		return nil, sdkerrors.Wrap(types.ErrStoreCorrupted, "database holds no client state")
	}
	if err := c.store.CheckVersion(); err != nil {
		return nil, err
	}
	if _, err := c.store.AuthoritySet(); err != nil {
		return nil, err
	}
	return c, nil
}

// ImportHeader imports a header without a finality proof. The header stays
// in the imported state until a later justification finalizes it or pruning
// discards its fork.
func (c *Client) ImportHeader(header types.Header) error {
	return c.Submit(header, nil)
}

// Submit is the single entry point for relayed finality data. It imports
// the header, verifies the justification (when present) against the tracked
// authority set, advances the finality pointer and applies any authority
// rotation the newly finalized headers carry. Every failure leaves stored
// state untouched: all writes are staged on one batch that only commits
// after the full submission checks out.
func (c *Client) Submit(header types.Header, justification *types.Justification) error {
	hash, err := types.HeaderHash(header)
	if err != nil {
		return err
	}
	number := types.HeaderNumber(header)

	if err := c.store.CheckImportable(header); err != nil {
		c.logger.Debug("rejected header import", "number", number, "hash", hash.Hex(), "err", err)
		return err
	}

	if justification == nil {
		b := c.db.NewBatch()
		defer b.Close()
		if err := c.store.StageImport(b, header); err != nil {
			return err
		}
		if err := b.WriteSync(); err != nil {
			return err
		}
		c.logger.Debug("imported header", "number", number, "hash", hash.Hex())
		return nil
	}

	if err := c.verifyJustification(header, hash, justification); err != nil {
		c.logger.Debug("rejected justification",
			"target", justification.Commit.TargetHash.Hex(), "round", uint64(justification.Round), "err", err)
		return err
	}

	chain, err := c.store.FinalityChain(justification.Commit.TargetHash, &header)
	if err != nil {
		c.logger.Debug("rejected finality chain",
			"target", justification.Commit.TargetHash.Hex(), "err", err)
		return err
	}

	rot, err := c.scanFinalized(chain)
	if err != nil {
		c.logger.Debug("rejected authority change", "err", err)
		return err
	}

	b := c.db.NewBatch()
	defer b.Close()
	if err := c.store.StageImport(b, header); err != nil {
		return err
	}
	if err := c.store.StageFinalize(b, chain); err != nil {
		return err
	}
	if err := c.stageRotation(b, rot); err != nil {
		return err
	}
	if err := b.WriteSync(); err != nil {
		return err
	}

	best := chain[len(chain)-1]
	c.logger.Info("finalized remote headers",
		"count", len(chain),
		"best", types.HeaderNumber(best),
		"target", justification.Commit.TargetHash.Hex(),
		"rotated", rot.rotated,
	)
	return nil
}

// SubmitFinalityProof is the wire level entry point: both arguments arrive
// SCALE encoded from the relayer. Empty justification bytes import the
// header without finalizing it.
func (c *Client) SubmitFinalityProof(headerBytes, justificationBytes []byte) error {
	header, err := types.DecodeHeader(headerBytes)
	if err != nil {
		return err
	}
	if len(justificationBytes) == 0 {
		return c.Submit(header, nil)
	}
	justification, err := types.DecodeJustification(justificationBytes)
	if err != nil {
		return err
	}
	return c.Submit(header, &justification)
}

// CheckJustification runs the full submission checks for a (header,
// justification) pair without committing anything. It answers whether a
// Submit of the same pair would finalize, which lets operators vet relayed
// proofs offline.
func (c *Client) CheckJustification(header types.Header, justification types.Justification) error {
	hash, err := types.HeaderHash(header)
	if err != nil {
		return err
	}
	if err := c.store.CheckImportable(header); err != nil {
		return err
	}
	if err := c.verifyJustification(header, hash, &justification); err != nil {
		return err
	}
	_, err = c.store.FinalityChain(justification.Commit.TargetHash, &header)
	return err
}

// AuthoritySet returns the current authority set generation.
func (c *Client) AuthoritySet() (types.AuthoritySet, error) {
	return c.store.AuthoritySet()
}

// PendingChange returns the queued authority rotation, if any.
func (c *Client) PendingChange() (types.PendingChange, bool, error) {
	return c.store.PendingChange()
}

// Store exposes the header repository for read only collaborators.
func (c *Client) Store() *store.Store {
	return c.store
}
