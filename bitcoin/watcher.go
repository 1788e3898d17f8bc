package bitcoin

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/xmrbtcswap/swapd/common"
)

// blockSleepDuration is how long WaitForConfirmations sleeps between height
// checks, grounded on monero.blockSleepDuration's poll-loop shape.
var blockSleepDuration = time.Second * 10

// WaitForConfirmations blocks until txid has at least required confirmations.
func WaitForConfirmations(ctx context.Context, w Wallet, txid chainhash.Hash, required uint32) error {
	for {
		confs, err := w.Confirmations(ctx, txid)
		if err != nil {
			return fmt.Errorf("bitcoin: checking confirmations for %s: %w", txid, err)
		}
		if confs >= required {
			return nil
		}

		if err := common.SleepWithContext(ctx, blockSleepDuration); err != nil {
			return err
		}
	}
}

// WaitForRelativeTimelock blocks until blocksToWait blocks have passed since
// confirmHeight, the height at which the output being timelocked confirmed.
// Used to know when tx_cancel or tx_punish becomes broadcastable (§4.D).
func WaitForRelativeTimelock(ctx context.Context, w Wallet, confirmHeight uint32, blocksToWait uint32) error {
	target := confirmHeight + blocksToWait
	for {
		height, err := w.BlockHeight(ctx)
		if err != nil {
			return fmt.Errorf("bitcoin: checking block height: %w", err)
		}
		if height >= target {
			return nil
		}

		if err := common.SleepWithContext(ctx, blockSleepDuration); err != nil {
			return err
		}
	}
}
