package types

import (
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	substrate "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
)

// GrandpaEngineID is the little-endian reading of the 4-byte consensus
// engine id "FRNK" under which the remote runtime emits GRANDPA digests.
const GrandpaEngineID substrate.ConsensusEngineID = 0x4b4e5246

// ScheduledChange announces the next authority set. It takes effect once
// the header `delay` blocks after the announcing header is finalized, so
// justifications signed by the old set keep verifying in the meantime.
type ScheduledChange struct {
	NextAuthorities []Authority
	Delay           substrate.U32
}

// ForcedChange is an emergency rotation. The remote chain emits it when the
// regular handoff is not viable (e.g. after a long stall); it displaces any
// scheduled change that has not been applied yet.
type ForcedChange struct {
	MedianLastFinalized substrate.U32
	Change              ScheduledChange
}

// ConsensusLog is the GRANDPA consensus log entry found in header digests.
// It mirrors the remote runtime's enum; variants the client does not act on
// (OnDisabled, Pause, Resume) are decoded and ignored.
type ConsensusLog struct {
	IsScheduledChange bool
	AsScheduledChange ScheduledChange
	IsForcedChange    bool
	AsForcedChange    ForcedChange
	IsOnDisabled      bool
	AsOnDisabled      substrate.U64
	IsPause           bool
	AsPause           substrate.U32
	IsResume          bool
	AsResume          substrate.U32
}

// Decode implements the scale varying-data-type contract.
func (c *ConsensusLog) Decode(decoder scale.Decoder) error {
	b, err := decoder.ReadOneByte()
	if err != nil {
		return err
	}
	switch b {
	case 1:
		c.IsScheduledChange = true
		return decoder.Decode(&c.AsScheduledChange)
	case 2:
		c.IsForcedChange = true
		return decoder.Decode(&c.AsForcedChange)
	case 3:
		c.IsOnDisabled = true
		return decoder.Decode(&c.AsOnDisabled)
	case 4:
		c.IsPause = true
		return decoder.Decode(&c.AsPause)
	case 5:
		c.IsResume = true
		return decoder.Decode(&c.AsResume)
	default:
		return sdkerrors.Wrapf(ErrInvalidHeader, "unknown grandpa consensus log variant %d", b)
	}
}

// Encode implements the scale varying-data-type contract.
func (c ConsensusLog) Encode(encoder scale.Encoder) error {
	switch {
	case c.IsScheduledChange:
		if err := encoder.PushByte(1); err != nil {
			return err
		}
		return encoder.Encode(c.AsScheduledChange)
	case c.IsForcedChange:
		if err := encoder.PushByte(2); err != nil {
			return err
		}
		return encoder.Encode(c.AsForcedChange)
	case c.IsOnDisabled:
		if err := encoder.PushByte(3); err != nil {
			return err
		}
		return encoder.Encode(c.AsOnDisabled)
	case c.IsPause:
		if err := encoder.PushByte(4); err != nil {
			return err
		}
		return encoder.Encode(c.AsPause)
	case c.IsResume:
		if err := encoder.PushByte(5); err != nil {
			return err
		}
		return encoder.Encode(c.AsResume)
	default:
		return sdkerrors.Wrap(ErrInvalidHeader, "cannot encode empty grandpa consensus log")
	}
}

// GrandpaLogs extracts every GRANDPA consensus log from the header digest.
// Digest items belonging to other engines (BABE pre-runtime, seals) are
// skipped untouched.
func GrandpaLogs(h Header) ([]ConsensusLog, error) {
	var logs []ConsensusLog
	for _, item := range h.Digest {
		if !item.IsConsensus || item.AsConsensus.ConsensusEngineID != GrandpaEngineID {
			continue
		}
		var log ConsensusLog
		if err := substrate.DecodeFromBytes(item.AsConsensus.Bytes, &log); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, nil
}
