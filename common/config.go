package common

import "time"

// Config holds the tunable parameters of a swap, fixed for all swaps this
// daemon instance drives (§6).
type Config struct {
	Env Environment

	// BitcoinConfirmations is the number of confirmations tx_lock must reach
	// before either party treats BTC as locked.
	BitcoinConfirmations uint32
	// MoneroConfirmations is the number of confirmations the XMR transfer
	// must reach before either party treats XMR as locked.
	MoneroConfirmations uint32
	// CancelTimelock is the relative block delay, measured from tx_lock's
	// confirmation, after which tx_cancel becomes valid.
	CancelTimelock uint32
	// PunishTimelock is the relative block delay, measured from tx_cancel's
	// confirmation, after which tx_punish becomes valid.
	PunishTimelock uint32
	// MoneroMaxFinalityTime bounds how long Alice waits for the XMR transfer
	// to reach MoneroConfirmations before giving up on the happy path.
	MoneroMaxFinalityTime time.Duration
}

// ConfigDefaultsForEnv returns the default Config for the given network.
// cancel_timelock < punish_timelock always holds (§3 invariant).
func ConfigDefaultsForEnv(env Environment) *Config {
	switch env {
	case Mainnet:
		return &Config{
			Env:                   env,
			BitcoinConfirmations:  3,
			MoneroConfirmations:   15,
			CancelTimelock:        72,  // ~12h at 10 min/block
			PunishTimelock:        144, // ~24h
			MoneroMaxFinalityTime: time.Hour,
		}
	case Stagenet:
		return &Config{
			Env:                   env,
			BitcoinConfirmations:  1,
			MoneroConfirmations:   5,
			CancelTimelock:        12,
			PunishTimelock:        24,
			MoneroMaxFinalityTime: 20 * time.Minute,
		}
	case Development:
		return &Config{
			Env:                   env,
			BitcoinConfirmations:  1,
			MoneroConfirmations:   1,
			CancelTimelock:        5,
			PunishTimelock:        10,
			MoneroMaxFinalityTime: time.Minute,
		}
	default:
		panic("unknown environment")
	}
}
