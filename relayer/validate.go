// Package relayer lets a peer without direct Bitcoin node access ask a
// discovered relayer peer to broadcast an already fully-signed transaction
// on its behalf. Unlike the gas-subsidized EVM relay this is modelled on,
// there is no fee market to front here: the signed transaction already pays
// its own fee out of its own inputs, so the relayer's only job is to check
// the transaction actually matches the swap it claims to belong to before
// forwarding it to its node.
package relayer

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/xmrbtcswap/swapd/net/message"
)

// validateBroadcastRequest parses req.SignedTx and checks that it spends
// exactly req's expected outpoint with the expected nSequence value, so a
// relayer never forwards a transaction for an unrelated swap or one that
// tries to bypass a cancel/punish timelock (§4.D "transaction broadcast
// relay").
func validateBroadcastRequest(req *message.RelayBroadcastRequest) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(req.SignedTx)); err != nil {
		return nil, fmt.Errorf("relayer: invalid signed transaction: %w", err)
	}

	if len(tx.TxIn) != 1 {
		return nil, fmt.Errorf("relayer: expected exactly one input, got %d", len(tx.TxIn))
	}

	in := tx.TxIn[0]
	wantOutpoint, err := outpointFromBytes(req.ExpectedOutpoint)
	if err != nil {
		return nil, err
	}
	if in.PreviousOutPoint != *wantOutpoint {
		return nil, fmt.Errorf("relayer: transaction does not spend the expected outpoint")
	}

	if in.Sequence != req.ExpectedLocktime {
		return nil, fmt.Errorf("relayer: unexpected nSequence %d, want %d", in.Sequence, req.ExpectedLocktime)
	}

	return tx, nil
}

func outpointFromBytes(b []byte) (*wire.OutPoint, error) {
	if len(b) != 36 {
		return nil, fmt.Errorf("relayer: expected outpoint must be 36 bytes, got %d", len(b))
	}
	var hash chainhash.Hash
	copy(hash[:], b[:32])
	return &wire.OutPoint{
		Hash:  hash,
		Index: binary.LittleEndian.Uint32(b[32:36]),
	}, nil
}
