package bob

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/xmrbtcswap/swapd/bitcoin"
	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
)

func testTrees(t *testing.T) (*bitcoin.LockScriptTree, *bitcoin.CancelScriptTree) {
	t.Helper()
	alice, err := secp256k1.NewPrivateKey()
	require.NoError(t, err)
	bobKey, err := secp256k1.NewPrivateKey()
	require.NoError(t, err)

	lockTree := bitcoin.NewLockScriptTree(alice.Public(), bobKey.Public(), 72)
	cancelTree := bitcoin.NewCancelScriptTree(alice.Public(), bobKey.Public(), 144)
	return lockTree, cancelTree
}

func TestLockOutpointOf_FindsMatchingOutput(t *testing.T) {
	lockTree, _ := testTrees(t)
	outputKey, _ := lockTree.OutputKey()
	require.NotNil(t, outputKey)
	wantScript, err := txscript.PayToTaprootScript(outputKey)
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	// a change output ahead of the swap output, the shape a real wallet's
	// funding pass can produce.
	tx.AddTxOut(&wire.TxOut{Value: 4000, PkScript: []byte{0x00, 0x14}})
	tx.AddTxOut(&wire.TxOut{Value: 100000, PkScript: wantScript})

	outpoint, err := lockOutpointOf(tx, lockTree)
	require.NoError(t, err)
	require.Equal(t, uint32(1), outpoint.Index)
	require.Equal(t, int64(100000), outpoint.Value)
	require.Equal(t, tx.TxHash(), outpoint.Hash)
}

func TestLockOutpointOf_NoMatchingOutput(t *testing.T) {
	lockTree, _ := testTrees(t)

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(&wire.TxOut{Value: 100000, PkScript: []byte{0x00, 0x14}})

	_, err := lockOutpointOf(tx, lockTree)
	require.Error(t, err)
}

func TestSpendsToCancelTree(t *testing.T) {
	_, cancelTree := testTrees(t)
	cancelScript, err := txscript.PayToTaprootScript(cancelTree.OutputKey())
	require.NoError(t, err)

	cancelTx := wire.NewMsgTx(2)
	cancelTx.AddTxOut(&wire.TxOut{Value: 99000, PkScript: cancelScript})

	m := &Material{CancelTree: cancelTree}

	isCancel, err := spendsToCancelTree(m, cancelTx)
	require.NoError(t, err)
	require.True(t, isCancel)

	redeemTx := wire.NewMsgTx(2)
	redeemTx.AddTxOut(&wire.TxOut{Value: 99000, PkScript: []byte{0x00, 0x14, 0x01}})

	isCancel, err = spendsToCancelTree(m, redeemTx)
	require.NoError(t, err)
	require.False(t, isCancel)
}

func TestPrecomputedCancelOutpoint_Deterministic(t *testing.T) {
	_, cancelTree := testTrees(t)

	lockOutpoint := bitcoin.LockedOutpoint{
		Hash:  [32]byte{1, 2, 3},
		Index: 0,
		Value: 100000,
	}
	m := &Material{
		LockOutpoint:   &lockOutpoint,
		CancelTree:     cancelTree,
		CancelTimelock: 72,
	}

	a := precomputedCancelOutpoint(m)
	b := precomputedCancelOutpoint(m)
	require.Equal(t, a, b)
	require.Equal(t, lockOutpoint.Value-defaultFeePerTx, a.Value)
}
