package bitcoin

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// LockedOutpoint identifies the tx_lock UTXO funding a swap.
type LockedOutpoint struct {
	Hash  chainhash.Hash
	Index uint32
	Value int64
}

// BuildLockTx builds the transaction Bob broadcasts to fund the swap: a
// single Taproot output spendable only via NewLockScriptTree's leaves (§4.B,
// "tx_lock (BTC, 2-of-2 funded by Bob)"). The caller (bitcoin.Wallet) fills
// in the funding inputs and change output before signing.
func BuildLockTx(tree *LockScriptTree, value int64) (*wire.MsgTx, error) {
	outputKey, _ := tree.OutputKey()
	pkScript, err := txscript.PayToTaprootScript(outputKey)
	if err != nil {
		return nil, fmt.Errorf("bitcoin: building tx_lock output script: %w", err)
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(value, pkScript))
	return tx, nil
}

// BuildCancelTx spends a confirmed tx_lock output through the cancel leaf
// (2-of-2, valid only once relative cancelTimelock has matured) into a new
// Taproot output guarding the refund/punish branch (§4.B, "tx_cancel").
func BuildCancelTx(lock LockedOutpoint, cancelTree *CancelScriptTree, cancelTimelock uint32, fee int64) *wire.MsgTx {
	tx := wire.NewMsgTx(2)

	txIn := wire.NewTxIn(wire.NewOutPoint(&lock.Hash, lock.Index), nil, nil)
	txIn.Sequence = cancelTimelock
	tx.AddTxIn(txIn)

	outputKey := cancelTree.OutputKey()
	pkScript, err := txscript.PayToTaprootScript(outputKey)
	if err != nil {
		panic(fmt.Sprintf("bitcoin: building tx_cancel output script: %v", err))
	}
	tx.AddTxOut(wire.NewTxOut(lock.Value-fee, pkScript))
	return tx
}

// BuildRedeemTx spends a confirmed tx_lock output directly through the
// redeem leaf to Alice, bypassing cancel entirely (§4.B, "tx_redeem"). Valid
// at any time before tx_cancel confirms.
func BuildRedeemTx(lock LockedOutpoint, aliceAddr []byte, fee int64) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	txIn := wire.NewTxIn(wire.NewOutPoint(&lock.Hash, lock.Index), nil, nil)
	tx.AddTxIn(txIn)
	tx.AddTxOut(wire.NewTxOut(lock.Value-fee, aliceAddr))
	return tx
}

// BuildRefundTx spends a confirmed tx_cancel output through the refund leaf
// to Bob (§4.B, "tx_refund"). Valid immediately once tx_cancel confirms;
// races BuildPunishTx for the same UTXO.
func BuildRefundTx(cancel LockedOutpoint, bobAddr []byte, fee int64) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	txIn := wire.NewTxIn(wire.NewOutPoint(&cancel.Hash, cancel.Index), nil, nil)
	tx.AddTxIn(txIn)
	tx.AddTxOut(wire.NewTxOut(cancel.Value-fee, bobAddr))
	return tx
}

// BuildPunishTx spends a confirmed tx_cancel output through the punish leaf
// to Alice, once the relative punishTimelock atop tx_cancel's confirmation
// has matured (§4.B, "tx_punish"). Used when Bob goes silent after cancel
// instead of either redeeming or refunding.
func BuildPunishTx(cancel LockedOutpoint, punishTimelock uint32, aliceAddr []byte, fee int64) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	txIn := wire.NewTxIn(wire.NewOutPoint(&cancel.Hash, cancel.Index), nil, nil)
	txIn.Sequence = punishTimelock
	tx.AddTxIn(txIn)
	tx.AddTxOut(wire.NewTxOut(cancel.Value-fee, aliceAddr))
	return tx
}

// TapLeafSighash computes the BIP341 tapscript script-path sighash for
// spending prevOut (the single input at index 0) through leaf.
func TapLeafSighash(tx *wire.MsgTx, prevOut *wire.TxOut, leafScript []byte) ([32]byte, error) {
	fetcher := txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	leaf := txscript.NewBaseTapLeaf(leafScript)
	hash, err := txscript.CalcTapscriptSignaturehash(sigHashes, txscript.SigHashDefault, tx, 0, fetcher, leaf)
	if err != nil {
		return [32]byte{}, fmt.Errorf("bitcoin: computing tapscript sighash: %w", err)
	}

	var out [32]byte
	copy(out[:], hash)
	return out, nil
}
