// Package types holds the identifier and status types shared between the
// protocol, net/message, and db packages.
package types

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// Hash is a 32-byte content hash, used for offer IDs and for Bitcoin/Monero
// transaction IDs surfaced in logs and RPC responses.
type Hash [32]byte

// EmptyHash is an all-zero Hash.
var EmptyHash = Hash{}

// IsHashZero returns true if the hash is all zeros, otherwise false.
func IsHashZero(h Hash) bool {
	return h == EmptyHash
}

// String returns the 0x-prefixed hex encoding of the hash.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// HexToHash decodes a hex-encoded string into a hash.
func HexToHash(s string) (Hash, error) {
	if s == "" {
		return EmptyHash, nil
	}

	h, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return Hash{}, err
	}

	if len(h) != len(Hash{}) {
		return Hash{}, fmt.Errorf("invalid len=%d hash", len(h))
	}

	var hash Hash
	copy(hash[:], h)
	return hash, nil
}

// SwapID is the 128-bit opaque handle identifying one swap attempt, unique
// per swap, and used as the key into the durable state store (§4.G).
type SwapID [16]byte

// EmptySwapID is the zero SwapID.
var EmptySwapID = SwapID{}

// NewSwapID generates a fresh random 128-bit swap identifier.
func NewSwapID() (SwapID, error) {
	var id SwapID
	if _, err := rand.Read(id[:]); err != nil {
		return SwapID{}, err
	}
	return id, nil
}

// String returns the hex encoding of the swap ID.
func (id SwapID) String() string {
	return hex.EncodeToString(id[:])
}

// SwapIDFromString parses a hex-encoded swap ID, as accepted by the
// `resume <swap_id>` CLI command.
func SwapIDFromString(s string) (SwapID, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return SwapID{}, fmt.Errorf("invalid swap id: %w", err)
	}

	if len(b) != len(SwapID{}) {
		return SwapID{}, fmt.Errorf("invalid swap id length=%d, want %d", len(b), len(SwapID{}))
	}

	var id SwapID
	copy(id[:], b)
	return id, nil
}
