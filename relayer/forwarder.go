package relayer

import (
	"context"
	"fmt"

	logging "github.com/ipfs/go-log"

	"github.com/xmrbtcswap/swapd/bitcoin"
	"github.com/xmrbtcswap/swapd/net/message"
)

var log = logging.Logger("relayer")

// Forward validates req against its own node, then broadcasts the signed
// transaction and returns the txid to hand back to the requesting peer.
func Forward(ctx context.Context, w bitcoin.Wallet, req *message.RelayBroadcastRequest) (*message.RelayBroadcastResponse, error) {
	tx, err := validateBroadcastRequest(req)
	if err != nil {
		return nil, err
	}

	txid, err := w.Broadcast(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("relayer: broadcast failed: %w", err)
	}

	log.Infof("relayed transaction %s", txid)

	return &message.RelayBroadcastResponse{TxID: txid[:]}, nil
}
