package bitcoin

import (
	"context"
	"fmt"

	logging "github.com/ipfs/go-log"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/xmrbtcswap/swapd/common"
	"github.com/xmrbtcswap/swapd/crypto/adaptor"
	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
)

var log = logging.Logger("bitcoin")

// RPCConfig configures a connection to bitcoind's JSON-RPC interface.
type RPCConfig struct {
	Endpoint     string
	User         string
	Password     string
	ChainParams  *chaincfg.Params
	DisableTLS   bool
	TLSCertBytes []byte
}

// RPCWallet implements Wallet against a bitcoind full node over RPC,
// grounded on mewmix's extethclient wrapper around ethclient.Client: a thin
// struct holding a single long-lived client plus the chain params needed to
// interpret addresses and fee estimates.
type RPCWallet struct {
	client *rpcclient.Client
	params *chaincfg.Params
}

// NewRPCWallet dials bitcoind and returns a ready-to-use wallet.
func NewRPCWallet(cfg RPCConfig) (*RPCWallet, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Endpoint,
		User:         cfg.User,
		Pass:         cfg.Password,
		HTTPPostMode: true,
		DisableTLS:   cfg.DisableTLS,
		Certificates: cfg.TLSCertBytes,
	}

	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("bitcoin: connecting to node: %w", err)
	}

	params := cfg.ChainParams
	if params == nil {
		params = &chaincfg.RegressionNetParams
	}

	return &RPCWallet{client: client, params: params}, nil
}

// FundLockTx asks the node's wallet to add funding inputs and a change
// output to tx, then signs every input it contributed.
func (w *RPCWallet) FundLockTx(ctx context.Context, tx *wire.MsgTx, value, fee int64) error {
	if len(tx.TxOut) == 0 {
		return fmt.Errorf("bitcoin: tx has no lock output to fund")
	}

	funded, _, err := w.client.FundRawTransaction(tx, rpcclient.FundRawTransactionOpts{}, nil)
	if err != nil {
		return fmt.Errorf("bitcoin: funding tx_lock: %w", err)
	}

	signed, complete, err := w.client.SignRawTransactionWithWallet(funded)
	if err != nil {
		return fmt.Errorf("bitcoin: signing funded tx_lock: %w", err)
	}
	if !complete {
		return fmt.Errorf("bitcoin: wallet could not fully sign tx_lock inputs")
	}

	*tx = *signed
	return nil
}

// Broadcast submits tx to the network.
func (w *RPCWallet) Broadcast(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error) {
	hash, err := w.client.SendRawTransaction(tx, false)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("bitcoin: broadcasting tx: %w", err)
	}
	log.Infof("broadcast bitcoin tx %s", hash)
	return *hash, nil
}

// SignTapscript computes the tapscript sighash for tx's single input and
// produces a plain Schnorr signature under priv.
func (w *RPCWallet) SignTapscript(tx *wire.MsgTx, prevOut *wire.TxOut, leafScript []byte, priv *secp256k1.PrivateKey) (*adaptor.Signature, error) {
	sighash, err := TapLeafSighash(tx, prevOut, leafScript)
	if err != nil {
		return nil, err
	}
	return adaptor.Sign(priv, sighash)
}

// BlockHeight returns the current chain tip height.
func (w *RPCWallet) BlockHeight(ctx context.Context) (uint32, error) {
	height, err := w.client.GetBlockCount()
	if err != nil {
		return 0, fmt.Errorf("bitcoin: fetching block count: %w", err)
	}
	return uint32(height), nil
}

// Confirmations returns the confirmation count for txid, 0 if unknown.
func (w *RPCWallet) Confirmations(ctx context.Context, txid chainhash.Hash) (uint32, error) {
	tx, err := w.client.GetTransaction(&txid)
	if err != nil {
		return 0, nil
	}
	if tx.Confirmations < 0 {
		return 0, nil
	}
	return uint32(tx.Confirmations), nil
}

// WatchSpend polls for outpoint being spent: once its UTXO disappears, it
// scans blocks mined since the poll started for the transaction spending
// it. Grounded on bitcoin/watcher.go's existing height-polling shape;
// simpler than subscribing to ZMQ notifications, which original_source's
// node watcher does, but this daemon has no persistent subscription layer
// to hang that off of (Non-goal: block/mempool notification plumbing).
func (w *RPCWallet) WatchSpend(ctx context.Context, outpoint wire.OutPoint) (*wire.MsgTx, error) {
	startHeight, err := w.BlockHeight(ctx)
	if err != nil {
		return nil, err
	}

	for {
		out, err := w.client.GetTxOut(&outpoint.Hash, outpoint.Index, true)
		if err != nil {
			return nil, fmt.Errorf("bitcoin: checking utxo %s:%d: %w", outpoint.Hash, outpoint.Index, err)
		}
		if out == nil {
			break // spent
		}
		if err := common.SleepWithContext(ctx, blockSleepDuration); err != nil {
			return nil, err
		}
	}

	height, err := w.BlockHeight(ctx)
	if err != nil {
		return nil, err
	}

	for h := startHeight; h <= height; h++ {
		blockHash, err := w.client.GetBlockHash(int64(h))
		if err != nil {
			return nil, fmt.Errorf("bitcoin: fetching block hash at height %d: %w", h, err)
		}
		block, err := w.client.GetBlock(blockHash)
		if err != nil {
			return nil, fmt.Errorf("bitcoin: fetching block %s: %w", blockHash, err)
		}
		for _, tx := range block.Transactions {
			for _, in := range tx.TxIn {
				if in.PreviousOutPoint == outpoint {
					return tx, nil
				}
			}
		}
	}

	return nil, fmt.Errorf("bitcoin: outpoint %s:%d spent but spending tx not found in scanned range", outpoint.Hash, outpoint.Index)
}

// NewChangeAddress returns the pkScript of a fresh address from the node's
// wallet, of whatever address type the node uses by default.
func (w *RPCWallet) NewChangeAddress(ctx context.Context) ([]byte, error) {
	addr, err := w.client.GetNewAddress("")
	if err != nil {
		return nil, fmt.Errorf("bitcoin: requesting change address: %w", err)
	}

	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("bitcoin: building pkscript for change address: %w", err)
	}
	return script, nil
}
