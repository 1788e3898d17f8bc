package alice

import (
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/xmrbtcswap/swapd/crypto/moneroc"
	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
	"github.com/xmrbtcswap/swapd/protocol"
)

func testPeerID(t *testing.T) peer.ID {
	t.Helper()
	priv, _, err := crypto.GenerateEd25519Key(nil)
	require.NoError(t, err)
	id, err := peer.IDFromPrivateKey(priv)
	require.NoError(t, err)
	return id
}

func testMaterial(t *testing.T) *Material {
	t.Helper()

	own, err := protocol.GenerateKeysAndProof()
	require.NoError(t, err)

	bobOwn, err := protocol.GenerateKeysAndProof()
	require.NoError(t, err)

	bobLockKey, err := secp256k1.NewPrivateKey()
	require.NoError(t, err)
	aliceLockKey, err := secp256k1.NewPrivateKey()
	require.NoError(t, err)

	m := &Material{
		SwapID:                [16]byte{1, 2, 3},
		PeerID:                testPeerID(t),
		BTCAmount:             apd.New(1, -3),
		XMRAmount:             apd.New(2, -2),
		CancelTimelock:        72,
		PunishTimelock:        72,
		Own:                   own,
		AliceLockKey:          aliceLockKey,
		BobSecp256k1PublicKey: bobOwn.Secp256k1PublicKey,
		BobPublicSpendKey:     bobOwn.PublicKeyPair.SpendKey(),
		BobPrivateViewKey:     bobOwn.PrivateKeyPair.ViewKey(),
		BobBitcoinPublicKey:   bobLockKey.Public(),
		PunishAddr:            []byte{0xde, 0xad, 0xbe, 0xef},
		LockConfirmHeight:     100,
		CancelConfirmHeight:   200,
	}
	m.buildTrees()
	return m
}

func TestMarshalUnmarshalState_Negotiated(t *testing.T) {
	m := testMaterial(t)
	orig := Negotiated{Material: m}

	data, err := MarshalState(orig)
	require.NoError(t, err)

	restored, err := UnmarshalState(data)
	require.NoError(t, err)

	got, ok := restored.(Negotiated)
	require.True(t, ok)
	require.Equal(t, m.SwapID, got.SwapID)
	require.Equal(t, m.PeerID, got.PeerID)
	require.Equal(t, 0, m.BTCAmount.Cmp(got.BTCAmount))
	require.Equal(t, 0, m.XMRAmount.Cmp(got.XMRAmount))
	require.Equal(t, m.CancelTimelock, got.CancelTimelock)
	require.Equal(t, m.PunishTimelock, got.PunishTimelock)
	require.Equal(t, m.Own.PrivateKeyPair.SpendKey().Bytes(), got.Own.PrivateKeyPair.SpendKey().Bytes())
	require.Equal(t, m.AliceLockKey.Scalar(), got.AliceLockKey.Scalar())
	require.Equal(t, m.PunishAddr, got.PunishAddr)
	require.Equal(t, m.LockConfirmHeight, got.LockConfirmHeight)
	require.Equal(t, m.CancelConfirmHeight, got.CancelConfirmHeight)

	// trees are re-derived rather than persisted, so they must come back
	// populated and pointing at the same output key.
	require.NotNil(t, got.LockTree)
	require.NotNil(t, got.CancelTree)
	wantKey, wantOdd := m.LockTree.OutputKey()
	gotKey, gotOdd := got.LockTree.OutputKey()
	require.Equal(t, wantOdd, gotOdd)
	require.True(t, wantKey.IsEqual(gotKey))
	require.True(t, m.CancelTree.OutputKey().IsEqual(got.CancelTree.OutputKey()))
}

func TestMarshalUnmarshalState_BtcRefunded(t *testing.T) {
	m := testMaterial(t)

	t.Run("with recovered spend key", func(t *testing.T) {
		sk, err := moneroc.NewPrivateSpendKeyFromCanonicalScalar([32]byte{7, 7, 7})
		require.NoError(t, err)
		orig := BtcRefunded{Material: m, SpendKey: sk}

		data, err := MarshalState(orig)
		require.NoError(t, err)

		restored, err := UnmarshalState(data)
		require.NoError(t, err)

		got, ok := restored.(BtcRefunded)
		require.True(t, ok)
		require.NotNil(t, got.SpendKey)
		require.Equal(t, sk.Bytes(), got.SpendKey.Bytes())
	})

	// Bob can broadcast tx_refund without ever sending RefundEncSig, in which
	// case recoverRefundSpendKey fails and handleBtcPunishable checkpoints a
	// BtcRefunded with no spend key before handleBtcRefunded gets a chance to
	// route it to SafelyAborted. That checkpoint must round-trip cleanly.
	t.Run("without recovered spend key", func(t *testing.T) {
		orig := BtcRefunded{Material: m, SpendKey: nil}

		data, err := MarshalState(orig)
		require.NoError(t, err)

		restored, err := UnmarshalState(data)
		require.NoError(t, err)

		got, ok := restored.(BtcRefunded)
		require.True(t, ok)
		require.Nil(t, got.SpendKey)
	})
}

func TestMarshalUnmarshalState_Terminal(t *testing.T) {
	for _, s := range []State{BtcRedeemed{}, BtcPunished{}, XmrRefunded{}, SafelyAborted{}} {
		data, err := MarshalState(s)
		require.NoError(t, err)

		restored, err := UnmarshalState(data)
		require.NoError(t, err)
		require.IsType(t, s, restored)
		require.True(t, IsTerminal(restored))
	}
}

func TestMarshalUnmarshalState_BtcCancelled(t *testing.T) {
	m := testMaterial(t)
	orig := BtcCancelled{Material: m, CancelTxid: [32]byte{9, 9, 9}}

	data, err := MarshalState(orig)
	require.NoError(t, err)

	restored, err := UnmarshalState(data)
	require.NoError(t, err)

	got, ok := restored.(BtcCancelled)
	require.True(t, ok)
	require.Equal(t, orig.CancelTxid, got.CancelTxid)
	require.Equal(t, m.SwapID, got.SwapID)
}
