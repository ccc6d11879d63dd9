package ledger

import (
	"time"

	"github.com/okian/usagedash/pkg/logger"
)

// Option applies a configuration option to the Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithNameSource overrides where display names come from, typically a cached
// directory in front of the store.
func WithNameSource(n NameSource) Option {
	return func(r *Reconciler) {
		if n != nil {
			r.names = n
		}
	}
}

// WithProbeDates sets how many dates the fallback series probes.
func WithProbeDates(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.probeDates = n
		}
	}
}

// WithClock sets the time source used for all-time fallback windows.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}
