package bitcoin

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/xmrbtcswap/swapd/crypto/adaptor"
	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
)

// Wallet is everything the alice/bob protocol state machines need from a
// Bitcoin backend: fund and broadcast the swap's five transactions, and
// observe chain height for timelock maturity (§4.D). Grounded on the shape
// of the teacher's Ethereum-side wallet seam (extethclient.EtherClient),
// generalised to UTXO semantics.
type Wallet interface {
	// FundLockTx adds inputs (and, if needed, a change output) to cover
	// value satoshis plus fee, signing its own inputs.
	FundLockTx(ctx context.Context, tx *wire.MsgTx, value, fee int64) error

	// Broadcast submits a fully-witnessed transaction to the network and
	// returns its txid.
	Broadcast(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error)

	// SignTapscript produces a Schnorr signature over tx's single input
	// spending prevOut through leafScript, under priv.
	SignTapscript(tx *wire.MsgTx, prevOut *wire.TxOut, leafScript []byte, priv *secp256k1.PrivateKey) (*adaptor.Signature, error)

	// BlockHeight returns the current chain tip height.
	BlockHeight(ctx context.Context) (uint32, error)

	// Confirmations returns how many blocks have confirmed txid, 0 if the
	// transaction is unconfirmed or unknown.
	Confirmations(ctx context.Context, txid chainhash.Hash) (uint32, error)

	// NewChangeAddress returns a fresh address controlled by this wallet,
	// used for refund/punish outputs that belong to the local party.
	NewChangeAddress(ctx context.Context) ([]byte, error)

	// WatchSpend blocks until outpoint is spent on chain and returns the
	// spending transaction, or returns ctx.Err() if ctx is cancelled first.
	// Used to observe whichever counterparty-broadcast transaction a race
	// (tx_redeem vs cancel_timelock, tx_refund vs punish_timelock) resolves
	// to, and to recover the witness data it carries.
	WatchSpend(ctx context.Context, outpoint wire.OutPoint) (*wire.MsgTx, error)
}
