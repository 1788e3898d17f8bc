package monero

import (
	"context"
	"fmt"
	"time"

	"github.com/xmrbtcswap/swapd/common"
)

// blockSleepDuration is how long WaitForBlocks sleeps between height checks,
// the same poll-loop shape bitcoin.WaitForConfirmations and
// bitcoin.WaitForRelativeTimelock use on the Bitcoin side.
var blockSleepDuration = time.Second * 10

// WaitForBlocks blocks until the wallet's chain view has advanced by count
// blocks past its height at call time, returning the height reached. Used
// after locking XMR to let the lock transaction accumulate the confirmation
// depth the swap's config requires before moving state forward (§4.B).
func WaitForBlocks(ctx context.Context, client WalletClient, count int) (uint64, error) {
	start, err := client.getChainHeight()
	if err != nil {
		return 0, fmt.Errorf("monero: checking chain height: %w", err)
	}
	target := start + uint64(count)
	lastLogged := start

	for {
		height, err := client.getChainHeight()
		if err != nil {
			return 0, fmt.Errorf("monero: checking chain height: %w", err)
		}

		if height >= target {
			// the wallet's own view may lag the daemon's; force it current
			// before handing the height back to the caller.
			if err := client.refresh(); err != nil {
				return 0, fmt.Errorf("monero: refreshing wallet: %w", err)
			}
			return height, nil
		}

		if height > lastLogged {
			log.Debugf("waiting for height %d, currently at %d", target, height)
			lastLogged = height
		}

		if err := common.SleepWithContext(ctx, blockSleepDuration); err != nil {
			return 0, err
		}
	}
}
