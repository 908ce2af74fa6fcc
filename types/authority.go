package types

import (
	"github.com/ChainSafe/gossamer/lib/crypto/ed25519"
	substrate "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
)

// Authority is a single GRANDPA voter: an ed25519 public key and its voting
// weight. The pair is SCALE encoded exactly as the remote runtime declares it.
type Authority struct {
	Key    substrate.H256
	Weight substrate.U64
}

// PublicKey parses the authority id into a verification key.
func (a Authority) PublicKey() (*ed25519.PublicKey, error) {
	return ed25519.NewPublicKey(a.Key[:])
}

// AuthoritySet is one generation of the remote chain's GRANDPA voters.
// Generations are identified by a monotonically increasing set id; a set is
// immutable once created and is replaced wholesale on rotation.
type AuthoritySet struct {
	ID          substrate.U64
	Authorities []Authority
}

// NewAuthoritySet constructs a validated authority set.
func NewAuthoritySet(id uint64, authorities []Authority) (AuthoritySet, error) {
	set := AuthoritySet{ID: substrate.NewU64(id), Authorities: authorities}
	if err := set.ValidateBasic(); err != nil {
		return AuthoritySet{}, err
	}
	return set, nil
}

// ValidateBasic rejects empty sets, zero weights and duplicate keys.
func (s AuthoritySet) ValidateBasic() error {
	if len(s.Authorities) == 0 {
		return sdkerrors.Wrap(ErrInvalidAuthoritySet, "authority set cannot be empty")
	}
	seen := make(map[substrate.H256]struct{}, len(s.Authorities))
	for _, a := range s.Authorities {
		if a.Weight == 0 {
			return sdkerrors.Wrapf(ErrInvalidAuthoritySet, "authority %#x has zero weight", a.Key)
		}
		if _, ok := seen[a.Key]; ok {
			return sdkerrors.Wrapf(ErrInvalidAuthoritySet, "duplicate authority %#x", a.Key)
		}
		seen[a.Key] = struct{}{}
	}
	return nil
}

// TotalWeight sums the voting weight of every member.
func (s AuthoritySet) TotalWeight() uint64 {
	var total uint64
	for _, a := range s.Authorities {
		total += uint64(a.Weight)
	}
	return total
}

// Threshold is the minimum precommit weight a justification must carry:
// floor(2/3 * total_weight) + 1. The remainder is the byzantine or offline
// weight the client tolerates.
func (s AuthoritySet) Threshold() uint64 {
	return s.TotalWeight()*2/3 + 1
}

// WeightOf returns the weight of the given authority id, if it is a member.
func (s AuthoritySet) WeightOf(key substrate.H256) (uint64, bool) {
	for _, a := range s.Authorities {
		if a.Key == key {
			return uint64(a.Weight), true
		}
	}
	return 0, false
}
