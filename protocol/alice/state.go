// Package alice drives Alice's side of a swap: she offers XMR for BTC, and
// holds the initial redeem secret s0 that both curves' key-split halves are
// derived from (§3, §4.A). Grounded on the shape of the teacher's
// protocol/xmrmaker package (the XMR-offering role there too), with the
// Ethereum contract/watcher machinery replaced by Taproot tx_lock/tx_cancel
// construction (bitcoin package) and the flat swapState struct regrouped
// into the tagged-union states spec.md §4.E asks for.
package alice

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

// State is the tagged union of every state Alice's swap driver can be in
// (§4.E). Each concrete type carries exactly the fields needed to resume
// from that point; Channel fields are excluded from persistence (see
// MarshalState) since a libp2p substream cannot survive a restart.
type State interface {
	isAliceState()
}

// Material is the negotiated, persistable core shared by every state from
// Negotiated onward: both parties' key-split halves, the amounts agreed to,
// and the timelock parameters this swap runs under. It is Alice's s3.
type Material struct {
	SwapID    [16]byte
	PeerID    peer.ID
	BTCAmount *apd.Decimal
	XMRAmount *apd.Decimal

	CancelTimelock uint32
	PunishTimelock uint32

	// Own key-split half (s0 in spec terms), generated at Started.
	Own *protocol.KeysAndProof
	// AliceLockKey is Alice's own ephemeral secp256k1 keypair for the
	// tx_lock/tx_cancel/tx_punish 2-of-2, distinct from the key-split
	// secret so that publishing a Bitcoin signature never reveals Own's
	// scalar.
	AliceLockKey *secp256k1.PrivateKey
	// Bob's verified key-split half.
	BobSecp256k1PublicKey *secp256k1.PublicKey
	BobPublicSpendKey     *moneroc.PublicSpendKey
	BobPrivateViewKey     *moneroc.PrivateViewKey
	// Bob's ephemeral 2-of-2 lock key.
	BobBitcoinPublicKey *secp256k1.PublicKey

	LockTree   *bitcoin.LockScriptTree
	CancelTree *bitcoin.CancelScriptTree

	// LockOutpoint is derived from Bob's tx_lock bytes as soon as they
	// arrive, since a segwit txid never depends on witness data.
	LockOutpoint *bitcoin.LockedOutpoint
	// LockConfirmHeight/CancelConfirmHeight are the chain heights observed
	// once tx_lock/tx_cancel reached their required confirmations, the
	// basis each relative timelock counts forward from.
	LockConfirmHeight   uint32
	CancelConfirmHeight uint32

	// CancelSig/PunishSig are Alice's own adaptor-free signatures over
	// tx_cancel/tx_punish, handed to Bob in Message1 so he can countersign
	// the cancel path in advance.
	CancelSig *adaptor.Signature
	PunishSig *adaptor.Signature
	// BobCancelSig is Bob's own signature share over tx_cancel, received in
	// Message2, needed alongside CancelSig to satisfy tx_lock's 2-of-2
	// cancel leaf.
	BobCancelSig *adaptor.Signature
	// RefundSig is Bob's plain pre-signature share over tx_refund, received
	// in Message2, letting Alice broadcast tx_refund on Bob's behalf if he
	// never does so himself.
	RefundSig *adaptor.Signature
	// RefundEncSig is Bob's adaptor-encrypted commitment to that same
	// tx_refund signature, adaptor point = his own key-split point, sent
	// once tx_cancel confirms (§4.E BtcCancelled). Alice cannot decrypt it
	// herself, but once Bob's real tx_refund signature appears on-chain she
	// recovers his key-split secret from the pair via crypto/adaptor.Recover.
	RefundEncSig *adaptor.EncryptedSignature

	// PunishAddr is the destination Alice commits to for tx_punish's output
	// at key-exchange time, when PunishSig is first produced, since that
	// signature already commits to a specific output script.
	PunishAddr []byte
}

// Channel is the live substream Alice replies to Bob on. Volatile: resuming
// a persisted state always finds this nil (§4.E Negotiated/BtcLocked with
// channel=None transitions).
type Channel struct {
	Stream *net.Stream
}

// Started is the initial state: Alice has generated her key-split half and
// her ephemeral Bitcoin lock key, accepted Bob's SwapRequest, and is
// waiting for his Message0/Message2 reply. AliceLockKey is generated here
// rather than at Negotiated since its pubkey must reach Bob (via
// SwapResponse) before he can build tx_lock's script tree.
type Started struct {
	SwapID       [16]byte
	BTCAmount    *apd.Decimal
	XMRAmount    *apd.Decimal
	Own          *protocol.KeysAndProof
	AliceLockKey *secp256k1.PrivateKey
}

// Negotiated is reached once key exchange (Message0/Message1) has
// completed; Alice is waiting for tx_lock to confirm.
type Negotiated struct {
	*Material
	Channel *Channel
}

// BtcLocked is reached once tx_lock has the required confirmations; Alice
// is waiting for Bob's transfer proof and for the XMR transfer to confirm.
type BtcLocked struct {
	*Material
	Channel *Channel
}

// XmrLocked is reached once the XMR transfer has the required
// confirmations; Alice now races waiting for enc_sig against the cancel
// timelock (§4.E race semantics).
type XmrLocked struct {
	*Material
}

// EncSigLearned is reached once Bob's encrypted redeem signature for
// tx_redeem has arrived; Alice attempts to decrypt and broadcast it.
type EncSigLearned struct {
	*Material
	EncSig *adaptor.EncryptedSignature
}

// BtcRedeemed is terminal: Alice successfully redeemed BTC via tx_redeem.
type BtcRedeemed struct{}

// CancelTimelockExpired is reached when cancel_timelock matures before
// enc_sig arrived (or redeem failed to build), or from EncSigLearned if
// decryption/broadcast of tx_redeem fails.
type CancelTimelockExpired struct {
	*Material
}

// BtcCancelled is reached once Alice has published tx_cancel.
type BtcCancelled struct {
	*Material
	CancelTxid [32]byte
}

// BtcPunishable is reached once punish_timelock has started counting and
// tx_refund has not yet been observed.
type BtcPunishable struct {
	*Material
	CancelTxid [32]byte
}

// BtcRefunded is reached once Bob's tx_refund is observed confirmed,
// revealing s_B and letting Alice recover the full spend key s = s_A + s_B.
type BtcRefunded struct {
	*Material
	SpendKey *moneroc.PrivateSpendKey
}

// BtcPunished is terminal: tx_punish confirmed before any tx_refund.
type BtcPunished struct{}

// XmrRefunded is terminal: Alice loaded the recovery wallet for the
// recombined (s, v) and swept the originally-locked XMR back to herself.
type XmrRefunded struct{}

// SafelyAborted is terminal: no irreversible on-chain action occurred.
type SafelyAborted struct{}

func (Started) isAliceState()               {}
func (Negotiated) isAliceState()            {}
func (BtcLocked) isAliceState()             {}
func (XmrLocked) isAliceState()             {}
func (EncSigLearned) isAliceState()         {}
func (BtcRedeemed) isAliceState()           {}
func (CancelTimelockExpired) isAliceState() {}
func (BtcCancelled) isAliceState()          {}
func (BtcPunishable) isAliceState()         {}
func (BtcRefunded) isAliceState()           {}
func (BtcPunished) isAliceState()           {}
func (XmrRefunded) isAliceState()           {}
func (SafelyAborted) isAliceState()         {}

// IsTerminal reports whether s is one of the four states §8 invariant 1
// requires every execution to end in exactly one of.
func IsTerminal(s State) bool {
	switch s.(type) {
	case BtcRedeemed, BtcPunished, XmrRefunded, SafelyAborted:
		return true
	default:
		return false
	}
}
