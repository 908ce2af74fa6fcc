package types

import (
	"github.com/ChainSafe/gossamer/lib/common"
	substrate "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
)

// Header is the remote chain's block header, SCALE encoded on the wire.
// Its hash is the Blake2b-256 digest of the SCALE encoding.
type Header = substrate.Header

// DecodeHeader decodes a SCALE encoded substrate header.
func DecodeHeader(hb []byte) (Header, error) {
	h := Header{}
	if err := substrate.DecodeFromBytes(hb, &h); err != nil {
		return Header{}, sdkerrors.Wrap(ErrInvalidHeader, err.Error())
	}
	return h, nil
}

// HeaderHash returns the blake2b-256 hash of the SCALE encoded header.
func HeaderHash(h Header) (substrate.Hash, error) {
	hb, err := substrate.EncodeToBytes(h)
	if err != nil {
		return substrate.Hash{}, sdkerrors.Wrap(ErrInvalidHeader, err.Error())
	}
	digest, err := common.Blake2bHash(hb)
	if err != nil {
		return substrate.Hash{}, err
	}
	return substrate.NewHash(digest[:]), nil
}

// HeaderNumber narrows the compact encoded block number.
func HeaderNumber(h Header) uint32 {
	return uint32(h.Number)
}

// FinalityState is the client's best finalized pointer. The number never
// decreases across submissions.
type FinalityState struct {
	Hash   substrate.Hash
	Number substrate.U32
}
