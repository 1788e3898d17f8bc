// Package message provides the types exchanged between two swapd instances
// during negotiation and key/signature exchange (§4.C). Every message is a
// 1-byte type tag followed by a CBOR-encoded body; DecodeMessage reverses
// Encode(). Struct-tag validation runs both ways via common/vcbor, so a
// malformed peer message never reaches the protocol layer half-populated.
package message

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/xmrbtcswap/swapd/common"
	"github.com/xmrbtcswap/swapd/common/types"
	"github.com/xmrbtcswap/swapd/common/vcbor"
	"github.com/xmrbtcswap/swapd/crypto/adaptor"
	"github.com/xmrbtcswap/swapd/crypto/moneroc"
	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
)

// Identifiers for our p2p message types. The first byte of a message has
// the identifier below telling us which type to decode the CBOR body as.
const (
	Unknown byte = iota // occupies the uninitialized value
	SwapRequestType
	SwapResponseType
	BobKeysType
	AliceKeysAndSignaturesType
	LockProofType
	TransferProofType
	EncryptedSignatureType
	RelayBroadcastRequestType
	RelayBroadcastResponseType
)

// TypeToString converts a message type into a string.
func TypeToString(t byte) string {
	switch t {
	case SwapRequestType:
		return "SwapRequest"
	case SwapResponseType:
		return "SwapResponse"
	case BobKeysType:
		return "BobKeysMessage"
	case AliceKeysAndSignaturesType:
		return "AliceKeysAndSignaturesMessage"
	case LockProofType:
		return "LockProofMessage"
	case TransferProofType:
		return "TransferProofMessage"
	case EncryptedSignatureType:
		return "EncryptedSignatureMessage"
	case RelayBroadcastRequestType:
		return "RelayBroadcastRequest"
	case RelayBroadcastResponseType:
		return "RelayBroadcastResponse"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// DecodeMessage decodes the given bytes into a Message.
func DecodeMessage(b []byte) (common.Message, error) {
	// 1-byte type followed by at least 1 byte of CBOR body.
	if len(b) < 2 {
		return nil, errors.New("invalid message bytes")
	}

	msgType := b[0]
	body := b[1:]
	var msg common.Message

	switch msgType {
	case SwapRequestType:
		msg = new(SwapRequest)
	case SwapResponseType:
		msg = new(SwapResponse)
	case BobKeysType:
		msg = new(BobKeysMessage)
	case AliceKeysAndSignaturesType:
		msg = new(AliceKeysAndSignaturesMessage)
	case LockProofType:
		msg = new(LockProofMessage)
	case TransferProofType:
		msg = new(TransferProofMessage)
	case EncryptedSignatureType:
		msg = new(EncryptedSignatureMessage)
	case RelayBroadcastRequestType:
		msg = new(RelayBroadcastRequest)
	case RelayBroadcastResponseType:
		msg = new(RelayBroadcastResponse)
	default:
		return nil, fmt.Errorf("invalid message type=%d", msgType)
	}

	if err := vcbor.UnmarshalStruct(body, msg); err != nil {
		return nil, fmt.Errorf("failed to decode %s message: %w", TypeToString(msg.Type()), err)
	}

	return msg, nil
}

// SwapRequest is Bob's opening message to Alice, step 1 of negotiation
// (§4.C): "Bob -> Alice: Request(amounts)".
type SwapRequest struct {
	BTCAmount *apd.Decimal `cbor:"1,keyasint" validate:"required"`
	XMRAmount *apd.Decimal `cbor:"2,keyasint" validate:"required"`
}

// String implements fmt.Stringer.
func (m *SwapRequest) String() string {
	return fmt.Sprintf("SwapRequest BTCAmount=%s XMRAmount=%s", m.BTCAmount, m.XMRAmount)
}

// Encode implements common.Message.
func (m *SwapRequest) Encode() ([]byte, error) {
	b, err := vcbor.MarshalStruct(m)
	if err != nil {
		return nil, err
	}
	return append([]byte{SwapRequestType}, b...), nil
}

// Type implements common.Message.
func (m *SwapRequest) Type() byte {
	return SwapRequestType
}

// SwapResponse is Alice's reply to a SwapRequest, step 2 of negotiation:
// "Alice -> Bob: AcceptOrDecline(amounts, s0_alice_material)". SwapID is
// the material that correlates every later message in the exchange to this
// negotiation round (it is Alice's Started{s0}, handed to Bob so both
// parties key their state by the same identifier). BitcoinPublicKey is
// Alice's ephemeral 2-of-2 lock key `a`, generated at accept time and sent
// here (rather than alongside her key-split material in Message1) since
// Bob needs it to build tx_lock's script tree before he can sign
// tx_cancel/tx_refund for Message2.
type SwapResponse struct {
	Accepted         bool                 `cbor:"1,keyasint"`
	SwapID           types.SwapID         `cbor:"2,keyasint" validate:"required_if=Accepted true"`
	BTCAmount        *apd.Decimal         `cbor:"3,keyasint" validate:"required_if=Accepted true"`
	XMRAmount        *apd.Decimal         `cbor:"4,keyasint" validate:"required_if=Accepted true"`
	BitcoinPublicKey *secp256k1.PublicKey `cbor:"5,keyasint" validate:"required_if=Accepted true"`
}

// String implements fmt.Stringer.
func (m *SwapResponse) String() string {
	return fmt.Sprintf("SwapResponse Accepted=%t SwapID=%s BTCAmount=%s XMRAmount=%s",
		m.Accepted, m.SwapID, m.BTCAmount, m.XMRAmount)
}

// Encode implements common.Message.
func (m *SwapResponse) Encode() ([]byte, error) {
	b, err := vcbor.MarshalStruct(m)
	if err != nil {
		return nil, err
	}
	return append([]byte{SwapResponseType}, b...), nil
}

// Type implements common.Message.
func (m *SwapResponse) Type() byte {
	return SwapResponseType
}

// BobKeysMessage is Message0 (§4.C): "Bob -> Alice: Message0(bob_keys,
// dleq_b)". BitcoinPublicKey is Bob's ephemeral 2-of-2 lock key `b`;
// Secp256k1PublicKey/PublicSpendKey/DLEqProof are his key-split half
// (§4.A); PrivateViewKey is sent in the clear since view keys are not
// secret (§3).
type BobKeysMessage struct {
	SwapID             types.SwapID           `cbor:"1,keyasint" validate:"required"`
	BitcoinPublicKey   *secp256k1.PublicKey   `cbor:"2,keyasint" validate:"required"`
	PublicSpendKey     *moneroc.PublicSpendKey `cbor:"3,keyasint" validate:"required"`
	PrivateViewKey     *moneroc.PrivateViewKey `cbor:"4,keyasint" validate:"required"`
	DLEqProof          []byte                 `cbor:"5,keyasint" validate:"required"`
	Secp256k1PublicKey *secp256k1.PublicKey   `cbor:"6,keyasint" validate:"required"`
}

// String implements fmt.Stringer.
func (m *BobKeysMessage) String() string {
	return fmt.Sprintf("BobKeysMessage SwapID=%s BitcoinPublicKey=%s PublicSpendKey=%s Secp256k1PublicKey=%s",
		m.SwapID, m.BitcoinPublicKey, m.PublicSpendKey, m.Secp256k1PublicKey)
}

// Encode implements common.Message.
func (m *BobKeysMessage) Encode() ([]byte, error) {
	b, err := vcbor.MarshalStruct(m)
	if err != nil {
		return nil, err
	}
	return append([]byte{BobKeysType}, b...), nil
}

// Type implements common.Message.
func (m *BobKeysMessage) Type() byte {
	return BobKeysType
}

// AliceKeysAndSignaturesMessage is Message1 (§4.C): "Alice -> Bob:
// Message1(alice_keys, dleq_a, tx_cancel_sig_alice, tx_punish_sig_alice)".
// The two signatures let Bob verify and countersign tx_cancel, and hold
// Alice's punish-path signature in escrow until punish_timelock expires.
// PayoutAddress is the destination Alice commits both tx_redeem and
// tx_punish to; Bob needs it to compute the same tx_redeem sighash his
// encrypted signature (Message3) ultimately commits to.
type AliceKeysAndSignaturesMessage struct {
	SwapID             types.SwapID            `cbor:"1,keyasint" validate:"required"`
	BitcoinPublicKey   *secp256k1.PublicKey    `cbor:"2,keyasint" validate:"required"`
	PublicSpendKey     *moneroc.PublicSpendKey `cbor:"3,keyasint" validate:"required"`
	PrivateViewKey     *moneroc.PrivateViewKey `cbor:"4,keyasint" validate:"required"`
	DLEqProof          []byte                  `cbor:"5,keyasint" validate:"required"`
	Secp256k1PublicKey *secp256k1.PublicKey    `cbor:"6,keyasint" validate:"required"`
	CancelSig          *adaptor.Signature      `cbor:"7,keyasint" validate:"required"`
	PunishSig          *adaptor.Signature      `cbor:"8,keyasint" validate:"required"`
	PayoutAddress      []byte                  `cbor:"9,keyasint" validate:"required"`
}

// String implements fmt.Stringer.
func (m *AliceKeysAndSignaturesMessage) String() string {
	return fmt.Sprintf("AliceKeysAndSignaturesMessage SwapID=%s BitcoinPublicKey=%s PublicSpendKey=%s Secp256k1PublicKey=%s",
		m.SwapID, m.BitcoinPublicKey, m.PublicSpendKey, m.Secp256k1PublicKey)
}

// Encode implements common.Message.
func (m *AliceKeysAndSignaturesMessage) Encode() ([]byte, error) {
	b, err := vcbor.MarshalStruct(m)
	if err != nil {
		return nil, err
	}
	return append([]byte{AliceKeysAndSignaturesType}, b...), nil
}

// Type implements common.Message.
func (m *AliceKeysAndSignaturesMessage) Type() byte {
	return AliceKeysAndSignaturesType
}

// LockProofMessage is Message2 (§4.C): "Bob -> Alice:
// Message2(tx_lock_psbt_signed_partial, tx_refund_sig_bob,
// tx_cancel_sig_bob)". LockTxPSBT is the serialized tx_lock Bob's wallet
// funded, not yet broadcast; Bob broadcasts it himself once negotiation
// completes, and Alice only reads the lock outpoint from it.
type LockProofMessage struct {
	SwapID     types.SwapID      `cbor:"1,keyasint" validate:"required"`
	LockTxPSBT []byte            `cbor:"2,keyasint" validate:"required"`
	RefundSig  *adaptor.Signature `cbor:"3,keyasint" validate:"required"`
	CancelSig  *adaptor.Signature `cbor:"4,keyasint" validate:"required"`
}

// String implements fmt.Stringer.
func (m *LockProofMessage) String() string {
	return fmt.Sprintf("LockProofMessage SwapID=%s", m.SwapID)
}

// Encode implements common.Message.
func (m *LockProofMessage) Encode() ([]byte, error) {
	b, err := vcbor.MarshalStruct(m)
	if err != nil {
		return nil, err
	}
	return append([]byte{LockProofType}, b...), nil
}

// Type implements common.Message.
func (m *LockProofMessage) Type() byte {
	return LockProofType
}

// TransferProofMessage carries the Monero-side attestation of payment
// (§Glossary "Transfer proof") over the `/swapd/transfer_proof/1.0.0`
// protocol: "Alice -> Bob: she has locked XMR to the shared address".
type TransferProofMessage struct {
	SwapID   types.SwapID `cbor:"1,keyasint" validate:"required"`
	TxHash   string       `cbor:"2,keyasint" validate:"required"`
	KeyImage string       `cbor:"3,keyasint" validate:"required"`
}

// String implements fmt.Stringer.
func (m *TransferProofMessage) String() string {
	return fmt.Sprintf("TransferProofMessage SwapID=%s TxHash=%s", m.SwapID, m.TxHash)
}

// Encode implements common.Message.
func (m *TransferProofMessage) Encode() ([]byte, error) {
	b, err := vcbor.MarshalStruct(m)
	if err != nil {
		return nil, err
	}
	return append([]byte{TransferProofType}, b...), nil
}

// Type implements common.Message.
func (m *TransferProofMessage) Type() byte {
	return TransferProofType
}

// EncryptedSignatureMessage is Message3 (§4.C), sent over the
// `/swapd/encrypted_signature/1.0.0` protocol only after Alice has
// observed tx_lock confirmed and XMR locked: "Bob -> Alice:
// Message3(enc_sig_redeem)" (Bob's redeem-leaf cosignature, adaptor-encrypted
// under Alice's own key-split point so that only she can decrypt it, and so
// that publishing the decrypted signature on tx_redeem hands Bob her secret
// back).
type EncryptedSignatureMessage struct {
	SwapID types.SwapID      `cbor:"1,keyasint" validate:"required"`
	EncSig *adaptor.EncryptedSignature `cbor:"2,keyasint" validate:"required"`
}

// String implements fmt.Stringer.
func (m *EncryptedSignatureMessage) String() string {
	return fmt.Sprintf("EncryptedSignatureMessage SwapID=%s", m.SwapID)
}

// Encode implements common.Message.
func (m *EncryptedSignatureMessage) Encode() ([]byte, error) {
	b, err := vcbor.MarshalStruct(m)
	if err != nil {
		return nil, err
	}
	return append([]byte{EncryptedSignatureType}, b...), nil
}

// Type implements common.Message.
func (m *EncryptedSignatureMessage) Type() byte {
	return EncryptedSignatureType
}
