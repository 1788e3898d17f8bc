// Package bob drives Bob's side of a swap: he offers BTC for XMR, funds
// tx_lock himself, and races to recover Alice's key-split secret once she
// redeems (§3, §4.A). Grounded on the shape of protocol/alice, mirrored from
// the taker's perspective: where Alice answers a SwapRequest as
// net.MakerHandler, Bob originates one and drives the exchange himself, the
// way the teacher's protocol/xmrtaker mirrors protocol/xmrmaker.
package bob

import (
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/cockroachdb/apd/v3"

	"github.com/xmrbtcswap/swapd/bitcoin"
	"github.com/xmrbtcswap/swapd/crypto/adaptor"
	"github.com/xmrbtcswap/swapd/crypto/moneroc"
	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
	"github.com/xmrbtcswap/swapd/net"
	"github.com/xmrbtcswap/swapd/protocol"
)

// State is the tagged union of every state Bob's swap driver can be in
// (§4.F). Each concrete type carries exactly the fields needed to resume
// from that point; Channel fields are excluded from persistence (see
// MarshalState) since a libp2p substream cannot survive a restart.
type State interface {
	isBobState()
}

// Material is the negotiated, persistable core shared by every state from
// Negotiated onward: both parties' key-split halves, the amounts agreed to,
// and the timelock parameters this swap runs under.
type Material struct {
	SwapID    [16]byte
	PeerID    peer.ID
	BTCAmount *apd.Decimal
	XMRAmount *apd.Decimal

	CancelTimelock uint32
	PunishTimelock uint32

	// Own key-split half, generated before SwapRequest is sent.
	Own *protocol.KeysAndProof
	// BobLockKey is Bob's own ephemeral secp256k1 keypair for the
	// tx_lock/tx_cancel/tx_refund 2-of-2, distinct from the key-split
	// secret for the same reason Alice's AliceLockKey is.
	BobLockKey *secp256k1.PrivateKey
	// BobRefundAddr is the destination Bob commits to for tx_refund's
	// output, chosen once at Started and reused at RefundSig time, for the
	// same reason Alice's PunishAddr is fixed early.
	BobRefundAddr []byte

	// Alice's verified key-split half and ephemeral lock key, learned
	// across SwapResponse (BitcoinPublicKey) and Message1 (the rest).
	AliceSecp256k1PublicKey *secp256k1.PublicKey
	AlicePublicSpendKey     *moneroc.PublicSpendKey
	AlicePrivateViewKey     *moneroc.PrivateViewKey
	AliceBitcoinPublicKey   *secp256k1.PublicKey
	// AlicePayoutAddr is the destination Alice commits tx_redeem (and her
	// own tx_punish) to, learned from Message1's PayoutAddress field; Bob
	// needs it to compute the same tx_redeem sighash his Message3
	// encrypted signature has to commit to.
	AlicePayoutAddr []byte

	LockTree   *bitcoin.LockScriptTree
	CancelTree *bitcoin.CancelScriptTree

	// LockTxBytes is Bob's funded, unbroadcast tx_lock, fixed as soon as
	// FundLockTx returns (segwit txids never depend on witness data, so
	// the outpoint below is already final). Kept around so handleNegotiated
	// can broadcast the exact transaction every signature was computed
	// against.
	LockTxBytes  []byte
	LockOutpoint *bitcoin.LockedOutpoint

	// LockConfirmHeight/CancelConfirmHeight are the chain heights observed
	// once tx_lock/tx_cancel reached their required confirmations.
	LockConfirmHeight   uint32
	CancelConfirmHeight uint32

	// CancelSig/RefundSig are Bob's own adaptor-free signatures over
	// tx_cancel's cancel leaf and tx_cancel's refund leaf, computed once
	// tx_lock's outpoint is known and handed to Alice in Message2 so she
	// can countersign the cancel path and, in the worst case, broadcast
	// tx_refund on Bob's behalf.
	CancelSig *adaptor.Signature
	RefundSig *adaptor.Signature
	// AliceCancelSig is Alice's own signature share over tx_cancel, from
	// Message1, needed alongside CancelSig to satisfy the cancel leaf.
	AliceCancelSig *adaptor.Signature
	// AlicePunishSig is Alice's pre-committed signature over tx_punish's
	// punish leaf, from Message1. Bob never broadcasts it himself (only
	// Alice's key can satisfy that leaf); it is kept purely so Bob can
	// confirm at negotiation time that Alice has already committed to a
	// valid punish signature under the agreed terms.
	AlicePunishSig *adaptor.Signature

	// RedeemEncSig is Bob's own adaptor-encrypted commitment to his
	// tx_redeem cosignature, adaptor point = Alice's key-split point, sent
	// once the XMR leg confirms (EncSigSent). Bob cannot decrypt it himself;
	// once Alice's decrypted signature appears on tx_redeem, he recovers
	// her key-split secret from the pair via crypto/adaptor.Recover.
	RedeemEncSig *adaptor.EncryptedSignature
}

// Channel is the live substream Bob negotiates over. Volatile: resuming a
// persisted state always finds this nil.
type Channel struct {
	Stream *net.Stream
}

// Started is the initial state: Bob has generated his key-split half and
// his ephemeral Bitcoin lock key, sent SwapRequest, and received Alice's
// accepting SwapResponse (which already carries her lock pubkey, letting
// Bob build tx_lock's script tree without waiting on anything further).
type Started struct {
	SwapID                [16]byte
	BTCAmount             *apd.Decimal
	XMRAmount             *apd.Decimal
	Own                   *protocol.KeysAndProof
	BobLockKey            *secp256k1.PrivateKey
	AliceBitcoinPublicKey *secp256k1.PublicKey
}

// Negotiated is reached once key exchange (Message0/Message1/Message2) has
// completed; tx_lock is funded but not yet broadcast.
type Negotiated struct {
	*Material
	Channel *Channel
}

// BtcLocked is reached once tx_lock has the required confirmations; Bob is
// waiting for Alice's transfer proof.
type BtcLocked struct {
	*Material
	Channel *Channel
}

// XmrLockProofReceived is reached once Alice's transfer proof has arrived;
// Bob is waiting for the XMR transfer itself to reach the required
// confirmations on the jointly-derived address.
type XmrLockProofReceived struct {
	*Material
	Channel  *Channel
	TxHash   string
	KeyImage string
}

// XmrLocked is reached once the XMR transfer has the required
// confirmations; Bob is ready to send his encrypted redeem signature.
type XmrLocked struct {
	*Material
}

// EncSigSent is reached once Bob's encrypted redeem signature (Message3)
// has been sent; Bob now races Alice's tx_redeem against the cancel
// timelock (§4.F race semantics).
type EncSigSent struct {
	*Material
}

// BtcRedeemed is reached once tx_redeem has been observed confirmed and
// Bob has attempted to recover Alice's key-split secret from its witness.
// SpendKey is nil if recovery failed (Alice's signature never made it to
// Message3's adaptor pair, or the witness was malformed); the swap still
// resolved on the Bitcoin side either way.
type BtcRedeemed struct {
	*Material
	SpendKey *moneroc.PrivateSpendKey
}

// XmrRedeemed is terminal: Bob reconstructed the combined Monero spend key
// and swept the originally-locked XMR to a wallet he controls.
type XmrRedeemed struct{}

// CancelTimelockExpired is reached when cancel_timelock matures before
// Bob observes tx_redeem or tx_cancel.
type CancelTimelockExpired struct {
	*Material
}

// BtcCancelled is reached once tx_cancel has been observed confirmed,
// whether broadcast by Bob or by Alice.
type BtcCancelled struct {
	*Material
	CancelTxid [32]byte
}

// BtcRefunded is terminal: Bob's tx_refund confirmed, returning his BTC.
type BtcRefunded struct{}

// BtcPunished is terminal: Alice's tx_punish confirmed before Bob's
// tx_refund did.
type BtcPunished struct{}

// SafelyAborted is terminal: no irreversible on-chain action occurred.
type SafelyAborted struct{}

func (Started) isBobState()               {}
func (Negotiated) isBobState()            {}
func (BtcLocked) isBobState()             {}
func (XmrLockProofReceived) isBobState()  {}
func (XmrLocked) isBobState()             {}
func (EncSigSent) isBobState()            {}
func (BtcRedeemed) isBobState()           {}
func (XmrRedeemed) isBobState()           {}
func (CancelTimelockExpired) isBobState() {}
func (BtcCancelled) isBobState()          {}
func (BtcRefunded) isBobState()           {}
func (BtcPunished) isBobState()           {}
func (SafelyAborted) isBobState()         {}

// IsTerminal reports whether s is one of the four states §8 invariant 1
// requires every execution to end in exactly one of.
func IsTerminal(s State) bool {
	switch s.(type) {
	case XmrRedeemed, BtcRefunded, BtcPunished, SafelyAborted:
		return true
	default:
		return false
	}
}
