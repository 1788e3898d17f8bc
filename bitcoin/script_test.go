package bitcoin

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
)

func twoTestKeys(t *testing.T) (*secp256k1.PublicKey, *secp256k1.PublicKey) {
	t.Helper()
	a, err := secp256k1.NewPrivateKey()
	require.NoError(t, err)
	b, err := secp256k1.NewPrivateKey()
	require.NoError(t, err)
	return a.Public(), b.Public()
}

func TestLockScriptTreeOutputKeyDeterministic(t *testing.T) {
	alice, bob := twoTestKeys(t)

	tree1 := NewLockScriptTree(alice, bob, 144)
	tree2 := NewLockScriptTree(alice, bob, 144)

	key1, parity1 := tree1.OutputKey()
	key2, parity2 := tree2.OutputKey()

	require.True(t, key1.IsEqual(key2))
	require.Equal(t, parity1, parity2)
}

func TestLockScriptTreeControlBlockCoversBothLeaves(t *testing.T) {
	alice, bob := twoTestKeys(t)
	tree := NewLockScriptTree(alice, bob, 144)

	_, err := tree.ControlBlock(tree.RedeemLeaf)
	require.NoError(t, err)

	_, err = tree.ControlBlock(tree.CancelLeaf)
	require.NoError(t, err)
}

func TestCancelScriptTreeControlBlockCoversBothLeaves(t *testing.T) {
	alice, bob := twoTestKeys(t)
	tree := NewCancelScriptTree(alice, bob, 144)

	_, err := tree.ControlBlock(tree.RefundLeaf)
	require.NoError(t, err)

	_, err = tree.ControlBlock(tree.PunishLeaf)
	require.NoError(t, err)
}

func TestLockAndCancelOutputKeysDiffer(t *testing.T) {
	alice, bob := twoTestKeys(t)

	lockTree := NewLockScriptTree(alice, bob, 144)
	cancelTree := NewCancelScriptTree(alice, bob, 144)

	lockKey, _ := lockTree.OutputKey()
	cancelKey := cancelTree.OutputKey()

	require.False(t, lockKey.IsEqual(cancelKey))
}
