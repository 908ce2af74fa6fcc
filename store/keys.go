package store

import (
	"encoding/binary"

	substrate "github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// Persisted layout version. Bump when the key scheme or value encoding
// changes so an upgraded host can migrate instead of misreading old bytes.
const layoutVersion byte = 1

// Key scheme. Headers are keyed by number-then-hash so pruning and fork
// discard iterate a contiguous range instead of scanning the whole store.
var (
	keyVersion       = []byte("gv")
	keyFinalized     = []byte("gf")
	keyAuthoritySet  = []byte("ga")
	keyPreviousSet   = []byte("gq")
	keyPendingChange = []byte("gc")

	headerPrefix    = []byte("gh/") // gh/<be8 number><hash> -> scale header
	hashIndexPrefix = []byte("gi/") // gi/<hash>             -> be8 number
	finalizedPrefix = []byte("gn/") // gn/<be8 number>       -> hash of the finalized header
)

func numberBytes(number uint32) []byte {
	nb := make([]byte, 8)
	binary.BigEndian.PutUint64(nb, uint64(number))
	return nb
}

func headerKey(number uint32, hash substrate.Hash) []byte {
	key := append([]byte{}, headerPrefix...)
	key = append(key, numberBytes(number)...)
	return append(key, hash[:]...)
}

func hashIndexKey(hash substrate.Hash) []byte {
	return append(append([]byte{}, hashIndexPrefix...), hash[:]...)
}

func finalizedKey(number uint32) []byte {
	return append(append([]byte{}, finalizedPrefix...), numberBytes(number)...)
}

// prefixRange returns the [start, end) iteration bounds covering every key
// under prefix with a number component below limit (exclusive).
func prefixRange(prefix []byte, limit uint32) ([]byte, []byte) {
	start := append([]byte{}, prefix...)
	end := append(append([]byte{}, prefix...), numberBytes(limit)...)
	return start, end
}
