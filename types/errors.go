package types

import (
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
)

const (
	SubModuleName = "grandpa-client"
)

// GRANDPA light client errors. Every rejection maps to exactly one of these
// so a relayer can tell whether to resubmit with more signatures, import a
// missing parent first, or abandon the fork.
var (
	ErrUnknownParent        = sdkerrors.Register(SubModuleName, 2, "parent header has not been imported")
	ErrDuplicate            = sdkerrors.Register(SubModuleName, 3, "header has already been imported")
	ErrNoAncestryPath       = sdkerrors.Register(SubModuleName, 4, "no ancestry path to the best finalized header")
	ErrTooOld               = sdkerrors.Register(SubModuleName, 5, "header is outside the retention window")
	ErrInsufficientWeight   = sdkerrors.Register(SubModuleName, 6, "justification does not meet the weight threshold")
	ErrUnknownSigner        = sdkerrors.Register(SubModuleName, 7, "precommit signer is not part of the authority set")
	ErrInvalidSignature     = sdkerrors.Register(SubModuleName, 8, "invalid precommit signature")
	ErrUnknownTarget        = sdkerrors.Register(SubModuleName, 9, "justification target is not an imported header")
	ErrChangeAlreadyPending = sdkerrors.Register(SubModuleName, 10, "an authority set change is already pending")
	ErrNotFinalized         = sdkerrors.Register(SubModuleName, 11, "header is not finalized")
	ErrInvalidHeader        = sdkerrors.Register(SubModuleName, 12, "invalid header")
	ErrInvalidAuthoritySet  = sdkerrors.Register(SubModuleName, 13, "invalid authority set")
	ErrStoreCorrupted       = sdkerrors.Register(SubModuleName, 14, "client store is corrupted")
	ErrHeaderNotFound       = sdkerrors.Register(SubModuleName, 15, "header not found in store")
	ErrInvalidStateProof    = sdkerrors.Register(SubModuleName, 16, "invalid state proof")
)
