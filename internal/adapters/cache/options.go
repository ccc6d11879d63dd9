package cache

import (
	"time"

	"github.com/okian/usagedash/pkg/logger"
)

type options struct {
	ttl         time.Duration
	size        int
	loadTimeout time.Duration
	logger      logger.Logger
}

func defaultOptions() options {
	return options{
		ttl:         5 * time.Minute,
		size:        512,
		loadTimeout: 2 * time.Minute,
		logger:      logger.Nop(),
	}
}

// Option configures a Cache or Directory.
type Option func(*options)

// WithTTL sets how long entries live.
func WithTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// WithMaxEntries caps the number of entries.
func WithMaxEntries(n int) Option {
	return func(o *options) { o.size = n }
}

// WithLoadTimeout bounds a shared load, which outlives the caller that
// started it.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.loadTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
