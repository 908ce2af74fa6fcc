package types

import (
	"bytes"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	substrate "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
)

// precommitStage is the enum index of a precommit vote inside the GRANDPA
// vote message; it prefixes the payload the authorities sign.
const precommitStage byte = 1

// Precommit is a vote for a block at or after the commit target.
type Precommit struct {
	TargetHash   substrate.Hash
	TargetNumber substrate.U32
}

// SignedPrecommit carries a precommit together with the ed25519 signature
// and the id of the authority that produced it.
type SignedPrecommit struct {
	Precommit Precommit
	Signature substrate.Signature
	ID        substrate.H256
}

// Commit is the aggregated finality vote for a single target block.
type Commit struct {
	TargetHash   substrate.Hash
	TargetNumber substrate.U32
	Precommits   []SignedPrecommit
}

// Justification is a GRANDPA finality proof as gossiped by the remote
// chain: a commit for a target block plus the headers needed to show that
// every precommit target descends from it.
type Justification struct {
	Round           substrate.U64
	Commit          Commit
	VotesAncestries []Header
}

// DecodeJustification decodes a SCALE encoded GRANDPA justification.
func DecodeJustification(jb []byte) (Justification, error) {
	j := Justification{}
	if err := substrate.DecodeFromBytes(jb, &j); err != nil {
		return Justification{}, sdkerrors.Wrap(ErrUnknownTarget, err.Error())
	}
	return j, nil
}

// SignedPayload returns the canonical byte string an authority signs when
// precommitting: the SCALE encoding of (stage, precommit, round, set_id).
// Any deviation in round or set id invalidates every signature, which is
// what ties a justification to a single authority set generation.
func SignedPayload(p Precommit, round uint64, setID uint64) ([]byte, error) {
	var buf bytes.Buffer
	enc := scale.NewEncoder(&buf)
	if err := enc.PushByte(precommitStage); err != nil {
		return nil, err
	}
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	if err := enc.Encode(substrate.NewU64(round)); err != nil {
		return nil, err
	}
	if err := enc.Encode(substrate.NewU64(setID)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
