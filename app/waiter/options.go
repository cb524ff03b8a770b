package waiter

import (
	"os"
)

// Option adjusts NewWaiter's behavior.
type Option func(*waiterCfg)

// WithSignals replaces the default shutdown signals (Interrupt and
// SIGTERM).
func WithSignals(signals ...os.Signal) Option {
	return func(cfg *waiterCfg) {
		cfg.signals = signals
	}
}
