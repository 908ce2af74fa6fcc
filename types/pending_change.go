package types

import (
	substrate "github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// PendingChange is an authority rotation that has been announced in a
// finalized header but whose effective header has not finalized yet. At most
// one change is pending at a time; the remote chain does not schedule
// overlapping rotations.
type PendingChange struct {
	NextAuthorities []Authority
	// AnnouncedAt is the number of the finalized header carrying the digest.
	AnnouncedAt substrate.U32
	// EffectiveAt is AnnouncedAt plus the digest's delay; the rotation is
	// applied when the header at this number finalizes.
	EffectiveAt substrate.U32
	// Forced changes displace a pending scheduled change instead of being
	// rejected.
	Forced substrate.Bool
}

// AppliesAt reports whether a header finalized at the given number triggers
// the rotation.
func (p PendingChange) AppliesAt(number uint32) bool {
	return number >= uint32(p.EffectiveAt)
}
