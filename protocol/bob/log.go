package bob

import (
	"time"

	logging "github.com/ipfs/go-log"
)

var log = logging.Logger("bob")

// xmrPollInterval is how often awaitXMRLocked rechecks the joint address's
// balance, grounded on bitcoin.blockSleepDuration's poll-loop shape.
const xmrPollInterval = time.Second * 10
