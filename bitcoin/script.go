// Package bitcoin builds and watches the five transactions that make up a
// swap's Bitcoin leg (§4.B, §4.D): tx_lock, tx_cancel, tx_refund, tx_redeem,
// tx_punish. Every output is a Taproot (segwit v1) output so that the
// adaptor-decrypted signatures produced by crypto/adaptor — Schnorr
// signatures whose challenge hashes the compressed R and P rather than
// following BIP340, so they verify only against swapd's own transcript —
// are carried as witness data; the teacher's
// Ethereum-contract escrow has no Bitcoin analog, so this package is new,
// built on btcsuite/btcd/txscript the way mewmix builds on ethclient/abigen.
package bitcoin

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"

	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
)

// LockScriptTree describes the Taproot tree backing a tx_lock output: the
// key path is never used directly (no known discrete log bridges both
// leaves' keys at once), so every spend goes through a tapscript leaf.
type LockScriptTree struct {
	RedeemLeaf txscript.TapLeaf // 2-of-2: immediate redeem (Bob's sig is adaptor-decrypted by Alice)
	CancelLeaf txscript.TapLeaf // 2-of-2 + relative cancel_timelock
	tree       *txscript.IndexedTapScriptTree
	internal   *btcec.PublicKey
}

// CancelScriptTree describes the Taproot tree backing a tx_cancel output.
type CancelScriptTree struct {
	RefundLeaf txscript.TapLeaf // Bob alone, adaptor-decrypted from Alice
	PunishLeaf txscript.TapLeaf // Alice alone, after relative punish_timelock
	tree       *txscript.IndexedTapScriptTree
	internal   *btcec.PublicKey
}

func multisigLeaf(a, b *secp256k1.PublicKey) txscript.TapLeaf {
	builder := txscript.NewScriptBuilder()
	builder.AddData(a.BTCEC().SerializeCompressed()[1:]) // x-only pubkey
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddData(b.BTCEC().SerializeCompressed()[1:])
	builder.AddOp(txscript.OP_CHECKSIG)
	script, err := builder.Script()
	if err != nil {
		panic(fmt.Sprintf("bitcoin: building multisig leaf: %v", err))
	}
	return txscript.NewBaseTapLeaf(script)
}

func singleSigLeaf(pub *secp256k1.PublicKey, relativeTimelock uint32) txscript.TapLeaf {
	builder := txscript.NewScriptBuilder()
	if relativeTimelock > 0 {
		builder.AddInt64(int64(relativeTimelock))
		builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
		builder.AddOp(txscript.OP_DROP)
	}
	builder.AddData(pub.BTCEC().SerializeCompressed()[1:])
	builder.AddOp(txscript.OP_CHECKSIG)
	script, err := builder.Script()
	if err != nil {
		panic(fmt.Sprintf("bitcoin: building single-sig leaf: %v", err))
	}
	return txscript.NewBaseTapLeaf(script)
}

// internalKeyNUMS is a nothing-up-my-sleeve internal key with unknown
// discrete log, used so the key-path spend of every Taproot output in this
// package is provably unusable and every spend must go through a tapscript
// leaf. This is the standard technique for script-path-only Taproot outputs.
var internalKeyNUMS = secp256k1.HashToPoint([]byte("swapd/bitcoin/taproot-internal-key")).BTCEC()

// NewLockScriptTree builds the tx_lock output's script tree from Alice's and
// Bob's secp256k1 keys and the configured cancel timelock.
func NewLockScriptTree(alice, bob *secp256k1.PublicKey, cancelTimelock uint32) *LockScriptTree {
	redeemLeaf := multisigLeaf(alice, bob)
	cancelLeaf := timelockedMultisigLeaf(alice, bob, cancelTimelock)
	tree := txscript.AssembleTaprootScriptTree(redeemLeaf, cancelLeaf)
	return &LockScriptTree{
		RedeemLeaf: redeemLeaf,
		CancelLeaf: cancelLeaf,
		tree:       tree,
		internal:   internalKeyNUMS,
	}
}

func timelockedMultisigLeaf(a, b *secp256k1.PublicKey, relativeTimelock uint32) txscript.TapLeaf {
	builder := txscript.NewScriptBuilder()
	builder.AddInt64(int64(relativeTimelock))
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(a.BTCEC().SerializeCompressed()[1:])
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddData(b.BTCEC().SerializeCompressed()[1:])
	builder.AddOp(txscript.OP_CHECKSIG)
	script, err := builder.Script()
	if err != nil {
		panic(fmt.Sprintf("bitcoin: building cancel leaf: %v", err))
	}
	return txscript.NewBaseTapLeaf(script)
}

// OutputKey returns the Taproot output key and parity bit for t's tree.
func (t *LockScriptTree) OutputKey() (*btcec.PublicKey, bool) {
	root := t.tree.RootNode.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(t.internal, root[:])
	return outputKey, outputKey.SerializeCompressed()[0] == secp256k1_0x03
}

// ControlBlock returns the control block proving leaf is part of t's tree.
func (t *LockScriptTree) ControlBlock(leaf txscript.TapLeaf) ([]byte, error) {
	return controlBlockFor(t.internal, t.tree, leaf)
}

// NewCancelScriptTree builds the tx_cancel output's script tree.
func NewCancelScriptTree(alice, bob *secp256k1.PublicKey, punishTimelock uint32) *CancelScriptTree {
	refundLeaf := singleSigLeaf(bob, 0)
	punishLeaf := singleSigLeaf(alice, punishTimelock)
	tree := txscript.AssembleTaprootScriptTree(refundLeaf, punishLeaf)
	return &CancelScriptTree{
		RefundLeaf: refundLeaf,
		PunishLeaf: punishLeaf,
		tree:       tree,
		internal:   internalKeyNUMS,
	}
}

// OutputKey returns the Taproot output key for t's tree.
func (t *CancelScriptTree) OutputKey() *btcec.PublicKey {
	root := t.tree.RootNode.TapHash()
	return txscript.ComputeTaprootOutputKey(t.internal, root[:])
}

// ControlBlock returns the control block proving leaf is part of t's tree.
func (t *CancelScriptTree) ControlBlock(leaf txscript.TapLeaf) ([]byte, error) {
	return controlBlockFor(t.internal, t.tree, leaf)
}

func controlBlockFor(internal *btcec.PublicKey, tree *txscript.IndexedTapScriptTree, leaf txscript.TapLeaf) ([]byte, error) {
	leafHash := leaf.TapHash()
	idx, ok := tree.LeafProofIndex[leafHash]
	if !ok {
		return nil, fmt.Errorf("bitcoin: leaf not part of tree")
	}
	proof := tree.LeafMerkleProofs[idx]
	root := tree.RootNode.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(internal, root[:])

	cb := proof.ToControlBlock(internal)
	cb.OutputKeyYIsOdd = outputKey.SerializeCompressed()[0] == secp256k1_0x03
	return cb.ToBytes()
}

const secp256k1_0x03 = 0x03
