package bitcoin

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/xmrbtcswap/swapd/crypto/adaptor"
	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
)

func TestBuildLockTxOutputIsTaproot(t *testing.T) {
	alice, bob := twoTestKeys(t)
	tree := NewLockScriptTree(alice, bob, 144)

	tx, err := BuildLockTx(tree, 100_000)
	require.NoError(t, err)
	require.Len(t, tx.TxOut, 1)
	require.True(t, txscript.IsPayToTaproot(tx.TxOut[0].PkScript))
}

func TestBuildCancelTxSetsRelativeTimelock(t *testing.T) {
	alice, bob := twoTestKeys(t)
	cancelTree := NewCancelScriptTree(alice, bob, 144)

	lock := LockedOutpoint{Hash: chainhash.Hash{1}, Index: 0, Value: 100_000}
	tx := BuildCancelTx(lock, cancelTree, 72, 500)

	require.Len(t, tx.TxIn, 1)
	require.Equal(t, uint32(72), tx.TxIn[0].Sequence)
	require.Equal(t, int64(99_500), tx.TxOut[0].Value)
}

func TestRedeemWitnessAssemblesFourElements(t *testing.T) {
	alicePriv, err := secp256k1.NewPrivateKey()
	require.NoError(t, err)
	bobPriv, err := secp256k1.NewPrivateKey()
	require.NoError(t, err)

	tree := NewLockScriptTree(alicePriv.Public(), bobPriv.Public(), 144)
	outputKey, _ := tree.OutputKey()
	pkScript, err := txscript.PayToTaprootScript(outputKey)
	require.NoError(t, err)

	lockTx := wire.NewMsgTx(2)
	lockTx.AddTxOut(wire.NewTxOut(100_000, pkScript))

	redeemTx := BuildRedeemTx(LockedOutpoint{Hash: chainhash.Hash{2}, Index: 0, Value: 100_000}, pkScript, 500)

	sighash, err := TapLeafSighash(redeemTx, lockTx.TxOut[0], tree.RedeemLeaf.Script)
	require.NoError(t, err)

	aliceSig, err := adaptor.Sign(alicePriv, sighash)
	require.NoError(t, err)
	bobSig, err := adaptor.Sign(bobPriv, sighash)
	require.NoError(t, err)

	witness, err := RedeemWitness(tree, aliceSig, bobSig)
	require.NoError(t, err)
	require.Len(t, witness, 4)
}
