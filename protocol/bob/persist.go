package bob

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
	"github.com/fxamacker/cbor/v2"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/xmrbtcswap/swapd/bitcoin"
	"github.com/xmrbtcswap/swapd/crypto/adaptor"
	"github.com/xmrbtcswap/swapd/crypto/moneroc"
	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
	"github.com/xmrbtcswap/swapd/protocol"
)

// kind tags which concrete State a persisted record holds, since CBOR has
// no native notion of a Go interface value.
type kind byte

const (
	kindStarted kind = iota
	kindNegotiated
	kindBtcLocked
	kindXmrLockProofReceived
	kindXmrLocked
	kindEncSigSent
	kindBtcRedeemed
	kindXmrRedeemed
	kindCancelTimelockExpired
	kindBtcCancelled
	kindBtcRefunded
	kindBtcPunished
	kindSafelyAborted
)

// wireMaterial is Material minus its Channel-adjacent and re-derivable
// fields (LockTree/CancelTree are rebuilt from the pubkeys below, since
// they are a pure function of them and contain unexported fields that cbor
// cannot round-trip).
type wireMaterial struct {
	SwapID    [16]byte     `cbor:"1,keyasint"`
	PeerID    string       `cbor:"2,keyasint"`
	BTCAmount *apd.Decimal `cbor:"3,keyasint"`
	XMRAmount *apd.Decimal `cbor:"4,keyasint"`

	CancelTimelock uint32 `cbor:"5,keyasint"`
	PunishTimelock uint32 `cbor:"6,keyasint"`

	OwnSpendKeyScalar [32]byte `cbor:"7,keyasint"`
	OwnViewKeyScalar  [32]byte `cbor:"8,keyasint"`
	BobLockKeyScalar  [32]byte `cbor:"9,keyasint"`
	BobRefundAddr     []byte   `cbor:"10,keyasint,omitempty"`

	AliceSecp256k1PublicKey *secp256k1.PublicKey    `cbor:"11,keyasint"`
	AlicePublicSpendKey     *moneroc.PublicSpendKey `cbor:"12,keyasint"`
	AlicePrivateViewKey     *moneroc.PrivateViewKey `cbor:"13,keyasint"`
	AliceBitcoinPublicKey   *secp256k1.PublicKey    `cbor:"14,keyasint"`
	AlicePayoutAddr         []byte                  `cbor:"15,keyasint,omitempty"`

	LockTxBytes  []byte                  `cbor:"16,keyasint,omitempty"`
	LockOutpoint *bitcoin.LockedOutpoint `cbor:"17,keyasint,omitempty"`

	CancelSig      *adaptor.Signature          `cbor:"18,keyasint,omitempty"`
	RefundSig      *adaptor.Signature          `cbor:"19,keyasint,omitempty"`
	AliceCancelSig *adaptor.Signature          `cbor:"20,keyasint,omitempty"`
	AlicePunishSig *adaptor.Signature          `cbor:"21,keyasint,omitempty"`
	RedeemEncSig   *adaptor.EncryptedSignature `cbor:"22,keyasint,omitempty"`

	LockConfirmHeight   uint32 `cbor:"23,keyasint,omitempty"`
	CancelConfirmHeight uint32 `cbor:"24,keyasint,omitempty"`
}

func (m *Material) toWire() *wireMaterial {
	return &wireMaterial{
		SwapID:                  m.SwapID,
		PeerID:                  m.PeerID.String(),
		BTCAmount:               m.BTCAmount,
		XMRAmount:               m.XMRAmount,
		CancelTimelock:          m.CancelTimelock,
		PunishTimelock:          m.PunishTimelock,
		OwnSpendKeyScalar:       m.Own.PrivateKeyPair.SpendKey().Bytes(),
		OwnViewKeyScalar:        m.Own.PrivateKeyPair.ViewKey().Bytes(),
		BobLockKeyScalar:        m.BobLockKey.Scalar(),
		BobRefundAddr:           m.BobRefundAddr,
		AliceSecp256k1PublicKey: m.AliceSecp256k1PublicKey,
		AlicePublicSpendKey:     m.AlicePublicSpendKey,
		AlicePrivateViewKey:     m.AlicePrivateViewKey,
		AliceBitcoinPublicKey:   m.AliceBitcoinPublicKey,
		AlicePayoutAddr:         m.AlicePayoutAddr,
		LockTxBytes:             m.LockTxBytes,
		LockOutpoint:            m.LockOutpoint,
		CancelSig:               m.CancelSig,
		RefundSig:               m.RefundSig,
		AliceCancelSig:          m.AliceCancelSig,
		AlicePunishSig:          m.AlicePunishSig,
		RedeemEncSig:            m.RedeemEncSig,
		LockConfirmHeight:       m.LockConfirmHeight,
		CancelConfirmHeight:     m.CancelConfirmHeight,
	}
}

func (w *wireMaterial) toMaterial() (*Material, error) {
	peerID, err := peer.Decode(w.PeerID)
	if err != nil {
		return nil, fmt.Errorf("bob: decoding peer id: %w", err)
	}

	sk, err := moneroc.NewPrivateSpendKeyFromCanonicalScalar(w.OwnSpendKeyScalar)
	if err != nil {
		return nil, fmt.Errorf("bob: restoring spend key: %w", err)
	}
	vk, err := moneroc.NewPrivateViewKeyFromCanonicalScalar(w.OwnViewKeyScalar)
	if err != nil {
		return nil, fmt.Errorf("bob: restoring view key: %w", err)
	}
	privKeyPair := moneroc.NewPrivateKeyPair(sk, vk)

	own := &protocol.KeysAndProof{
		PrivateKeyPair:     privKeyPair,
		PublicKeyPair:      privKeyPair.PublicKeyPair(),
		Secp256k1PublicKey: secp256k1.PrivateKeyFromScalar(w.OwnSpendKeyScalar).Public(),
	}

	m := &Material{
		SwapID:                  w.SwapID,
		PeerID:                  peerID,
		BTCAmount:               w.BTCAmount,
		XMRAmount:               w.XMRAmount,
		CancelTimelock:          w.CancelTimelock,
		PunishTimelock:          w.PunishTimelock,
		Own:                     own,
		BobLockKey:              secp256k1.PrivateKeyFromScalar(w.BobLockKeyScalar),
		BobRefundAddr:           w.BobRefundAddr,
		AliceSecp256k1PublicKey: w.AliceSecp256k1PublicKey,
		AlicePublicSpendKey:     w.AlicePublicSpendKey,
		AlicePrivateViewKey:     w.AlicePrivateViewKey,
		AliceBitcoinPublicKey:   w.AliceBitcoinPublicKey,
		AlicePayoutAddr:         w.AlicePayoutAddr,
		LockTxBytes:             w.LockTxBytes,
		LockOutpoint:            w.LockOutpoint,
		CancelSig:               w.CancelSig,
		RefundSig:               w.RefundSig,
		AliceCancelSig:          w.AliceCancelSig,
		AlicePunishSig:          w.AlicePunishSig,
		RedeemEncSig:            w.RedeemEncSig,
		LockConfirmHeight:       w.LockConfirmHeight,
		CancelConfirmHeight:     w.CancelConfirmHeight,
	}
	m.buildTrees()
	return m, nil
}

// buildTrees (re)derives LockTree/CancelTree from the pubkeys and
// timelocks, which fully determine them. Called both right after
// negotiation and after restoring a persisted Material.
func (m *Material) buildTrees() {
	if m.AliceBitcoinPublicKey == nil {
		return
	}
	m.LockTree = bitcoin.NewLockScriptTree(m.AliceBitcoinPublicKey, m.BobLockKey.Public(), m.CancelTimelock)
	m.CancelTree = bitcoin.NewCancelScriptTree(m.AliceBitcoinPublicKey, m.BobLockKey.Public(), m.PunishTimelock)
}

type wireState struct {
	Kind          kind          `cbor:"1,keyasint"`
	Started       *wireStarted  `cbor:"2,keyasint,omitempty"`
	Material      *wireMaterial `cbor:"3,keyasint,omitempty"`
	TxHash        string        `cbor:"4,keyasint,omitempty"`
	KeyImage      string        `cbor:"5,keyasint,omitempty"`
	CancelTxid    [32]byte      `cbor:"6,keyasint,omitempty"`
	SpendKeyBytes []byte        `cbor:"7,keyasint,omitempty"`
}

type wireStarted struct {
	SwapID    [16]byte     `cbor:"1,keyasint"`
	BTCAmount *apd.Decimal `cbor:"2,keyasint"`
	XMRAmount *apd.Decimal `cbor:"3,keyasint"`

	OwnSpendKeyScalar     [32]byte             `cbor:"4,keyasint"`
	OwnViewKeyScalar      [32]byte             `cbor:"5,keyasint"`
	BobLockKeyScalar      [32]byte             `cbor:"6,keyasint"`
	AliceBitcoinPublicKey *secp256k1.PublicKey `cbor:"7,keyasint"`
}

// MarshalState encodes s for storage in the backend's StateStore, dropping
// volatile fields (the live substream Channel) that cannot survive a
// restart.
func MarshalState(s State) ([]byte, error) {
	w := new(wireState)

	switch st := s.(type) {
	case Started:
		w.Kind = kindStarted
		w.Started = &wireStarted{
			SwapID:                st.SwapID,
			BTCAmount:             st.BTCAmount,
			XMRAmount:             st.XMRAmount,
			OwnSpendKeyScalar:     st.Own.PrivateKeyPair.SpendKey().Bytes(),
			OwnViewKeyScalar:      st.Own.PrivateKeyPair.ViewKey().Bytes(),
			BobLockKeyScalar:      st.BobLockKey.Scalar(),
			AliceBitcoinPublicKey: st.AliceBitcoinPublicKey,
		}
	case Negotiated:
		w.Kind, w.Material = kindNegotiated, st.Material.toWire()
	case BtcLocked:
		w.Kind, w.Material = kindBtcLocked, st.Material.toWire()
	case XmrLockProofReceived:
		w.Kind, w.Material = kindXmrLockProofReceived, st.Material.toWire()
		w.TxHash, w.KeyImage = st.TxHash, st.KeyImage
	case XmrLocked:
		w.Kind, w.Material = kindXmrLocked, st.Material.toWire()
	case EncSigSent:
		w.Kind, w.Material = kindEncSigSent, st.Material.toWire()
	case BtcRedeemed:
		w.Kind, w.Material = kindBtcRedeemed, st.Material.toWire()
		if st.SpendKey != nil {
			b := st.SpendKey.Bytes()
			w.SpendKeyBytes = b[:]
		}
	case XmrRedeemed:
		w.Kind = kindXmrRedeemed
	case CancelTimelockExpired:
		w.Kind, w.Material = kindCancelTimelockExpired, st.Material.toWire()
	case BtcCancelled:
		w.Kind, w.Material, w.CancelTxid = kindBtcCancelled, st.Material.toWire(), st.CancelTxid
	case BtcRefunded:
		w.Kind = kindBtcRefunded
	case BtcPunished:
		w.Kind = kindBtcPunished
	case SafelyAborted:
		w.Kind = kindSafelyAborted
	default:
		return nil, fmt.Errorf("bob: unknown state type %T", s)
	}

	return cbor.Marshal(w)
}

// UnmarshalState reverses MarshalState. Every state restored this way has
// Channel == nil, which the runner's own transition logic uses to decide
// whether to fall through to SafelyAborted (§4.E).
func UnmarshalState(data []byte) (State, error) {
	w := new(wireState)
	if err := cbor.Unmarshal(data, w); err != nil {
		return nil, fmt.Errorf("bob: decoding state: %w", err)
	}

	switch w.Kind {
	case kindStarted:
		sk, err := moneroc.NewPrivateSpendKeyFromCanonicalScalar(w.Started.OwnSpendKeyScalar)
		if err != nil {
			return nil, err
		}
		vk, err := moneroc.NewPrivateViewKeyFromCanonicalScalar(w.Started.OwnViewKeyScalar)
		if err != nil {
			return nil, err
		}
		privKeyPair := moneroc.NewPrivateKeyPair(sk, vk)
		own := &protocol.KeysAndProof{
			PrivateKeyPair:     privKeyPair,
			PublicKeyPair:      privKeyPair.PublicKeyPair(),
			Secp256k1PublicKey: secp256k1.PrivateKeyFromScalar(w.Started.OwnSpendKeyScalar).Public(),
		}
		return Started{
			SwapID:                w.Started.SwapID,
			BTCAmount:             w.Started.BTCAmount,
			XMRAmount:             w.Started.XMRAmount,
			Own:                   own,
			BobLockKey:            secp256k1.PrivateKeyFromScalar(w.Started.BobLockKeyScalar),
			AliceBitcoinPublicKey: w.Started.AliceBitcoinPublicKey,
		}, nil
	case kindNegotiated:
		m, err := w.Material.toMaterial()
		if err != nil {
			return nil, err
		}
		return Negotiated{Material: m}, nil
	case kindBtcLocked:
		m, err := w.Material.toMaterial()
		if err != nil {
			return nil, err
		}
		return BtcLocked{Material: m}, nil
	case kindXmrLockProofReceived:
		m, err := w.Material.toMaterial()
		if err != nil {
			return nil, err
		}
		return XmrLockProofReceived{Material: m, TxHash: w.TxHash, KeyImage: w.KeyImage}, nil
	case kindXmrLocked:
		m, err := w.Material.toMaterial()
		if err != nil {
			return nil, err
		}
		return XmrLocked{Material: m}, nil
	case kindEncSigSent:
		m, err := w.Material.toMaterial()
		if err != nil {
			return nil, err
		}
		return EncSigSent{Material: m}, nil
	case kindBtcRedeemed:
		m, err := w.Material.toMaterial()
		if err != nil {
			return nil, err
		}
		if len(w.SpendKeyBytes) == 0 {
			return BtcRedeemed{Material: m, SpendKey: nil}, nil
		}
		var b [32]byte
		copy(b[:], w.SpendKeyBytes)
		sk, err := moneroc.NewPrivateSpendKeyFromCanonicalScalar(b)
		if err != nil {
			return nil, err
		}
		return BtcRedeemed{Material: m, SpendKey: sk}, nil
	case kindXmrRedeemed:
		return XmrRedeemed{}, nil
	case kindCancelTimelockExpired:
		m, err := w.Material.toMaterial()
		if err != nil {
			return nil, err
		}
		return CancelTimelockExpired{Material: m}, nil
	case kindBtcCancelled:
		m, err := w.Material.toMaterial()
		if err != nil {
			return nil, err
		}
		return BtcCancelled{Material: m, CancelTxid: w.CancelTxid}, nil
	case kindBtcRefunded:
		return BtcRefunded{}, nil
	case kindBtcPunished:
		return BtcPunished{}, nil
	case kindSafelyAborted:
		return SafelyAborted{}, nil
	default:
		return nil, fmt.Errorf("bob: unknown persisted state kind %d", w.Kind)
	}
}
