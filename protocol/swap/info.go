// Package swap tracks the swaps swapd is currently driving or has completed,
// backed by the durable store in package db (§4.G).
package swap

import (
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/xmrbtcswap/swapd/coins"
	"github.com/xmrbtcswap/swapd/common/types"
)

// Role is which side of the swap this daemon instance is playing.
type Role byte

const (
	// AliceRole offers XMR for BTC and holds the initial redeem secret.
	AliceRole Role = iota
	// BobRole offers BTC for XMR.
	BobRole
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case AliceRole:
		return "alice"
	case BobRole:
		return "bob"
	default:
		return "unknown"
	}
}

// Info is the durable, role-agnostic record of one swap attempt (§3, §4.G).
// The cryptographic material needed to resume an in-progress swap lives in
// the role-specific alice.State/bob.State, persisted separately under the
// same SwapID; Info is what the manager and RPC layer use to list and
// summarize swaps without depending on either role's package.
type Info struct {
	ID           types.SwapID        `cbor:"1,keyasint"`
	Role         Role                `cbor:"2,keyasint"`
	PeerID       string              `cbor:"3,keyasint"`
	BTCAmount    *apd.Decimal        `cbor:"4,keyasint"`
	XMRAmount    *apd.Decimal        `cbor:"5,keyasint"`
	ExchangeRate *coins.ExchangeRate `cbor:"6,keyasint"`
	Status       types.Status        `cbor:"7,keyasint"`
	StartTime    time.Time           `cbor:"8,keyasint"`
	EndTime      *time.Time          `cbor:"9,keyasint"`
}
