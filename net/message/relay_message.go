package message

import (
	"fmt"

	"github.com/xmrbtcswap/swapd/common/vcbor"
)

// RelayBroadcastRequest asks a discovered relayer peer to broadcast an
// already fully-signed Bitcoin transaction on the sender's behalf, for a
// peer that lacks direct node access. The relayer validates ExpectedOutpoint
// and ExpectedLocktime against its own template for the swap before
// forwarding SignedTx to its node (relayer/validate.go).
type RelayBroadcastRequest struct {
	SignedTx         []byte `cbor:"1,keyasint" validate:"required"`
	ExpectedOutpoint []byte `cbor:"2,keyasint" validate:"required,len=36"` // 32-byte txid + 4-byte vout, little-endian
	ExpectedLocktime uint32 `cbor:"3,keyasint"`
}

// RelayBroadcastResponse carries the txid the relayer's node accepted.
type RelayBroadcastResponse struct {
	TxID []byte `cbor:"1,keyasint" validate:"required,len=32"`
}

// String implements fmt.Stringer.
func (m *RelayBroadcastRequest) String() string {
	return fmt.Sprintf("RelayBroadcastRequest ExpectedOutpoint=%x ExpectedLocktime=%d",
		m.ExpectedOutpoint, m.ExpectedLocktime)
}

// Encode implements common.Message.
func (m *RelayBroadcastRequest) Encode() ([]byte, error) {
	b, err := vcbor.MarshalStruct(m)
	if err != nil {
		return nil, err
	}
	return append([]byte{RelayBroadcastRequestType}, b...), nil
}

// Type implements common.Message.
func (m *RelayBroadcastRequest) Type() byte {
	return RelayBroadcastRequestType
}

// String implements fmt.Stringer.
func (m *RelayBroadcastResponse) String() string {
	return fmt.Sprintf("RelayBroadcastResponse TxID=%x", m.TxID)
}

// Encode implements common.Message.
func (m *RelayBroadcastResponse) Encode() ([]byte, error) {
	b, err := vcbor.MarshalStruct(m)
	if err != nil {
		return nil, err
	}
	return append([]byte{RelayBroadcastResponseType}, b...), nil
}

// Type implements common.Message.
func (m *RelayBroadcastResponse) Type() byte {
	return RelayBroadcastResponseType
}
