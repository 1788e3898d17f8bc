package bob

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

	aliceOwn, err := protocol.GenerateKeysAndProof()
	require.NoError(t, err)

	bobLockKey, err := secp256k1.NewPrivateKey()
	require.NoError(t, err)
	aliceLockKey, err := secp256k1.NewPrivateKey()
	require.NoError(t, err)

	m := &Material{
		SwapID:                  [16]byte{4, 5, 6},
		PeerID:                  testPeerID(t),
		BTCAmount:               apd.New(1, -3),
		XMRAmount:               apd.New(2, -2),
		CancelTimelock:          72,
		PunishTimelock:          144,
		Own:                     own,
		BobLockKey:              bobLockKey,
		BobRefundAddr:           []byte{0xca, 0xfe, 0xba, 0xbe},
		AliceSecp256k1PublicKey: aliceOwn.Secp256k1PublicKey,
		AlicePublicSpendKey:     aliceOwn.PublicKeyPair.SpendKey(),
		AlicePrivateViewKey:     aliceOwn.PrivateKeyPair.ViewKey(),
		AliceBitcoinPublicKey:   aliceLockKey.Public(),
		AlicePayoutAddr:         []byte{0xde, 0xad, 0xbe, 0xef},
		LockConfirmHeight:       50,
		CancelConfirmHeight:     150,
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
	require.Equal(t, m.BobLockKey.Scalar(), got.BobLockKey.Scalar())
	require.Equal(t, m.BobRefundAddr, got.BobRefundAddr)
	require.Equal(t, m.AlicePayoutAddr, got.AlicePayoutAddr)
	require.Equal(t, m.LockConfirmHeight, got.LockConfirmHeight)
	require.Equal(t, m.CancelConfirmHeight, got.CancelConfirmHeight)

	require.NotNil(t, got.LockTree)
	require.NotNil(t, got.CancelTree)
	wantKey, wantOdd := m.LockTree.OutputKey()
	gotKey, gotOdd := got.LockTree.OutputKey()
	require.Equal(t, wantOdd, gotOdd)
	require.True(t, wantKey.IsEqual(gotKey))
	require.True(t, m.CancelTree.OutputKey().IsEqual(got.CancelTree.OutputKey()))
}

func TestMarshalUnmarshalState_XmrLockProofReceived(t *testing.T) {
	m := testMaterial(t)
	orig := XmrLockProofReceived{Material: m, TxHash: "deadbeef", KeyImage: "cafebabe"}

	data, err := MarshalState(orig)
	require.NoError(t, err)

	restored, err := UnmarshalState(data)
	require.NoError(t, err)

	got, ok := restored.(XmrLockProofReceived)
	require.True(t, ok)
	require.Equal(t, orig.TxHash, got.TxHash)
	require.Equal(t, orig.KeyImage, got.KeyImage)
	require.Equal(t, m.SwapID, got.SwapID)
}

func TestMarshalUnmarshalState_BtcRedeemed(t *testing.T) {
	m := testMaterial(t)

	t.Run("with recovered spend key", func(t *testing.T) {
		sk, err := moneroc.NewPrivateSpendKeyFromCanonicalScalar([32]byte{7, 7, 7})
		require.NoError(t, err)
		orig := BtcRedeemed{Material: m, SpendKey: sk}

		data, err := MarshalState(orig)
		require.NoError(t, err)

		restored, err := UnmarshalState(data)
		require.NoError(t, err)

		got, ok := restored.(BtcRedeemed)
		require.True(t, ok)
		require.NotNil(t, got.SpendKey)
		require.Equal(t, sk.Bytes(), got.SpendKey.Bytes())
	})

	t.Run("without recovered spend key", func(t *testing.T) {
		orig := BtcRedeemed{Material: m, SpendKey: nil}

		data, err := MarshalState(orig)
		require.NoError(t, err)

		restored, err := UnmarshalState(data)
		require.NoError(t, err)

		got, ok := restored.(BtcRedeemed)
		require.True(t, ok)
		require.Nil(t, got.SpendKey)
	})
}

func TestMarshalUnmarshalState_Terminal(t *testing.T) {
	for _, s := range []State{XmrRedeemed{}, BtcRefunded{}, BtcPunished{}, SafelyAborted{}} {
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
	orig := BtcCancelled{Material: m, CancelTxid: [32]byte{1, 1, 1}}

	data, err := MarshalState(orig)
	require.NoError(t, err)

	restored, err := UnmarshalState(data)
	require.NoError(t, err)

	got, ok := restored.(BtcCancelled)
	require.True(t, ok)
	require.Equal(t, orig.CancelTxid, got.CancelTxid)
	require.Equal(t, m.SwapID, got.SwapID)
}
