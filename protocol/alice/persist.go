package alice

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
	kindXmrLocked
	kindEncSigLearned
	kindBtcRedeemed
	kindCancelTimelockExpired
	kindBtcCancelled
	kindBtcPunishable
	kindBtcRefunded
	kindBtcPunished
	kindXmrRefunded
	kindSafelyAborted
)

// wireMaterial is Material minus its Channel-adjacent and re-derivable
// fields (LockTree/CancelTree are rebuilt from the pubkeys below, since
// they are a pure function of them and contain unexported fields that
// cbor cannot round-trip).
type wireMaterial struct {
	SwapID    [16]byte     `cbor:"1,keyasint"`
	PeerID    string       `cbor:"2,keyasint"`
	BTCAmount *apd.Decimal `cbor:"3,keyasint"`
	XMRAmount *apd.Decimal `cbor:"4,keyasint"`

	CancelTimelock uint32 `cbor:"5,keyasint"`
	PunishTimelock uint32 `cbor:"6,keyasint"`

	OwnSpendKeyScalar [32]byte `cbor:"7,keyasint"`
	OwnViewKeyScalar  [32]byte `cbor:"8,keyasint"`
	AliceLockKeyScalar [32]byte `cbor:"9,keyasint"`

	BobSecp256k1PublicKey *secp256k1.PublicKey    `cbor:"10,keyasint"`
	BobPublicSpendKey     *moneroc.PublicSpendKey `cbor:"11,keyasint"`
	BobPrivateViewKey     *moneroc.PrivateViewKey `cbor:"12,keyasint"`
	BobBitcoinPublicKey   *secp256k1.PublicKey    `cbor:"13,keyasint"`

	LockOutpoint *bitcoin.LockedOutpoint `cbor:"14,keyasint,omitempty"`

	CancelSig    *adaptor.Signature          `cbor:"15,keyasint,omitempty"`
	PunishSig    *adaptor.Signature          `cbor:"16,keyasint,omitempty"`
	RefundSig    *adaptor.Signature          `cbor:"17,keyasint,omitempty"`
	BobCancelSig *adaptor.Signature          `cbor:"18,keyasint,omitempty"`
	RefundEncSig *adaptor.EncryptedSignature `cbor:"19,keyasint,omitempty"`
	PunishAddr   []byte                      `cbor:"20,keyasint,omitempty"`

	LockConfirmHeight   uint32 `cbor:"21,keyasint,omitempty"`
	CancelConfirmHeight uint32 `cbor:"22,keyasint,omitempty"`
}

func (m *Material) toWire() (*wireMaterial, error) {
	spendScalar := m.Own.PrivateKeyPair.SpendKey().Bytes()
	viewScalar := m.Own.PrivateKeyPair.ViewKey().Bytes()
	lockScalar := m.AliceLockKey.Scalar()

	return &wireMaterial{
		SwapID:             m.SwapID,
		PeerID:             m.PeerID.String(),
		BTCAmount:          m.BTCAmount,
		XMRAmount:          m.XMRAmount,
		CancelTimelock:     m.CancelTimelock,
		PunishTimelock:     m.PunishTimelock,
		OwnSpendKeyScalar:  spendScalar,
		OwnViewKeyScalar:   viewScalar,
		AliceLockKeyScalar: lockScalar,
		BobSecp256k1PublicKey: m.BobSecp256k1PublicKey,
		BobPublicSpendKey:     m.BobPublicSpendKey,
		BobPrivateViewKey:     m.BobPrivateViewKey,
		BobBitcoinPublicKey:   m.BobBitcoinPublicKey,
		LockOutpoint:          m.LockOutpoint,
		CancelSig:             m.CancelSig,
		PunishSig:             m.PunishSig,
		RefundSig:             m.RefundSig,
		BobCancelSig:          m.BobCancelSig,
		RefundEncSig:          m.RefundEncSig,
		PunishAddr:            m.PunishAddr,
		LockConfirmHeight:     m.LockConfirmHeight,
		CancelConfirmHeight:   m.CancelConfirmHeight,
	}, nil
}

func (w *wireMaterial) toMaterial() (*Material, error) {
	peerID, err := peer.Decode(w.PeerID)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding peer id: %w", err)
	}

	sk, err := moneroc.NewPrivateSpendKeyFromCanonicalScalar(w.OwnSpendKeyScalar)
	if err != nil {
		return nil, fmt.Errorf("alice: restoring spend key: %w", err)
	}
	vk, err := moneroc.NewPrivateViewKeyFromCanonicalScalar(w.OwnViewKeyScalar)
	if err != nil {
		return nil, fmt.Errorf("alice: restoring view key: %w", err)
	}
	privKeyPair := moneroc.NewPrivateKeyPair(sk, vk)

	own := &protocol.KeysAndProof{
		PrivateKeyPair:     privKeyPair,
		PublicKeyPair:      privKeyPair.PublicKeyPair(),
		Secp256k1PublicKey: secp256k1.PrivateKeyFromScalar(w.OwnSpendKeyScalar).Public(),
	}

	m := &Material{
		SwapID:                w.SwapID,
		PeerID:                peerID,
		BTCAmount:             w.BTCAmount,
		XMRAmount:             w.XMRAmount,
		CancelTimelock:        w.CancelTimelock,
		PunishTimelock:        w.PunishTimelock,
		Own:                   own,
		AliceLockKey:          secp256k1.PrivateKeyFromScalar(w.AliceLockKeyScalar),
		BobSecp256k1PublicKey: w.BobSecp256k1PublicKey,
		BobPublicSpendKey:     w.BobPublicSpendKey,
		BobPrivateViewKey:     w.BobPrivateViewKey,
		BobBitcoinPublicKey:   w.BobBitcoinPublicKey,
		LockOutpoint:          w.LockOutpoint,
		CancelSig:             w.CancelSig,
		PunishSig:             w.PunishSig,
		RefundSig:             w.RefundSig,
		BobCancelSig:          w.BobCancelSig,
		RefundEncSig:          w.RefundEncSig,
		PunishAddr:            w.PunishAddr,
		LockConfirmHeight:     w.LockConfirmHeight,
		CancelConfirmHeight:   w.CancelConfirmHeight,
	}
	m.buildTrees()
	return m, nil
}

// buildTrees (re)derives LockTree/CancelTree from the pubkeys and
// timelocks, which fully determine them. Called both right after
// negotiation and after restoring a persisted Material.
func (m *Material) buildTrees() {
	if m.BobBitcoinPublicKey == nil {
		return
	}
	m.LockTree = bitcoin.NewLockScriptTree(m.AliceLockKey.Public(), m.BobBitcoinPublicKey, m.CancelTimelock)
	m.CancelTree = bitcoin.NewCancelScriptTree(m.AliceLockKey.Public(), m.BobBitcoinPublicKey, m.PunishTimelock)
}

type wireState struct {
	Kind          kind          `cbor:"1,keyasint"`
	Started       *wireStarted  `cbor:"2,keyasint,omitempty"`
	Material      *wireMaterial `cbor:"3,keyasint,omitempty"`
	EncSig        *adaptor.EncryptedSignature `cbor:"4,keyasint,omitempty"`
	CancelTxid    [32]byte      `cbor:"5,keyasint,omitempty"`
	SpendKeyBytes []byte        `cbor:"6,keyasint,omitempty"`
}

type wireStarted struct {
	SwapID    [16]byte     `cbor:"1,keyasint"`
	BTCAmount *apd.Decimal `cbor:"2,keyasint"`
	XMRAmount *apd.Decimal `cbor:"3,keyasint"`

	OwnSpendKeyScalar  [32]byte `cbor:"4,keyasint"`
	OwnViewKeyScalar   [32]byte `cbor:"5,keyasint"`
	AliceLockKeyScalar [32]byte `cbor:"6,keyasint"`
}

// MarshalState encodes s for storage in db.Store, dropping volatile fields
// (the live substream Channel) that cannot survive a restart.
func MarshalState(s State) ([]byte, error) {
	w := new(wireState)

	switch st := s.(type) {
	case Started:
		w.Kind = kindStarted
		w.Started = &wireStarted{
			SwapID:             st.SwapID,
			BTCAmount:          st.BTCAmount,
			XMRAmount:          st.XMRAmount,
			OwnSpendKeyScalar:  st.Own.PrivateKeyPair.SpendKey().Bytes(),
			OwnViewKeyScalar:   st.Own.PrivateKeyPair.ViewKey().Bytes(),
			AliceLockKeyScalar: st.AliceLockKey.Scalar(),
		}
	case Negotiated:
		wm, err := st.Material.toWire()
		if err != nil {
			return nil, err
		}
		w.Kind, w.Material = kindNegotiated, wm
	case BtcLocked:
		wm, err := st.Material.toWire()
		if err != nil {
			return nil, err
		}
		w.Kind, w.Material = kindBtcLocked, wm
	case XmrLocked:
		wm, err := st.Material.toWire()
		if err != nil {
			return nil, err
		}
		w.Kind, w.Material = kindXmrLocked, wm
	case EncSigLearned:
		wm, err := st.Material.toWire()
		if err != nil {
			return nil, err
		}
		w.Kind, w.Material, w.EncSig = kindEncSigLearned, wm, st.EncSig
	case BtcRedeemed:
		w.Kind = kindBtcRedeemed
	case CancelTimelockExpired:
		wm, err := st.Material.toWire()
		if err != nil {
			return nil, err
		}
		w.Kind, w.Material = kindCancelTimelockExpired, wm
	case BtcCancelled:
		wm, err := st.Material.toWire()
		if err != nil {
			return nil, err
		}
		w.Kind, w.Material, w.CancelTxid = kindBtcCancelled, wm, st.CancelTxid
	case BtcPunishable:
		wm, err := st.Material.toWire()
		if err != nil {
			return nil, err
		}
		w.Kind, w.Material, w.CancelTxid = kindBtcPunishable, wm, st.CancelTxid
	case BtcRefunded:
		wm, err := st.Material.toWire()
		if err != nil {
			return nil, err
		}
		w.Kind, w.Material = kindBtcRefunded, wm
		if st.SpendKey != nil {
			b := st.SpendKey.Bytes()
			w.SpendKeyBytes = b[:]
		}
	case BtcPunished:
		w.Kind = kindBtcPunished
	case XmrRefunded:
		w.Kind = kindXmrRefunded
	case SafelyAborted:
		w.Kind = kindSafelyAborted
	default:
		return nil, fmt.Errorf("alice: unknown state type %T", s)
	}

	return cbor.Marshal(w)
}

// UnmarshalState reverses MarshalState. Every state restored this way has
// Channel == nil, which the runner's own transition logic uses to decide
// whether to fall through to SafelyAborted (§4.E).
func UnmarshalState(data []byte) (State, error) {
	w := new(wireState)
	if err := cbor.Unmarshal(data, w); err != nil {
		return nil, fmt.Errorf("alice: decoding state: %w", err)
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
			SwapID:       w.Started.SwapID,
			BTCAmount:    w.Started.BTCAmount,
			XMRAmount:    w.Started.XMRAmount,
			Own:          own,
			AliceLockKey: secp256k1.PrivateKeyFromScalar(w.Started.AliceLockKeyScalar),
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
	case kindXmrLocked:
		m, err := w.Material.toMaterial()
		if err != nil {
			return nil, err
		}
		return XmrLocked{Material: m}, nil
	case kindEncSigLearned:
		m, err := w.Material.toMaterial()
		if err != nil {
			return nil, err
		}
		return EncSigLearned{Material: m, EncSig: w.EncSig}, nil
	case kindBtcRedeemed:
		return BtcRedeemed{}, nil
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
	case kindBtcPunishable:
		m, err := w.Material.toMaterial()
		if err != nil {
			return nil, err
		}
		return BtcPunishable{Material: m, CancelTxid: w.CancelTxid}, nil
	case kindBtcRefunded:
		m, err := w.Material.toMaterial()
		if err != nil {
			return nil, err
		}
		if len(w.SpendKeyBytes) == 0 {
			return BtcRefunded{Material: m, SpendKey: nil}, nil
		}
		var b [32]byte
		copy(b[:], w.SpendKeyBytes)
		sk, err := moneroc.NewPrivateSpendKeyFromCanonicalScalar(b)
		if err != nil {
			return nil, err
		}
		return BtcRefunded{Material: m, SpendKey: sk}, nil
	case kindBtcPunished:
		return BtcPunished{}, nil
	case kindXmrRefunded:
		return XmrRefunded{}, nil
	case kindSafelyAborted:
		return SafelyAborted{}, nil
	default:
		return nil, fmt.Errorf("alice: unknown persisted state kind %d", w.Kind)
	}
}
