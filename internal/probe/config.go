// Package probe exercises a running usage service over HTTP and checks the
// invariants every usage response must satisfy.
package probe

import (
	"fmt"
	"time"

	"github.com/okian/usagedash/pkg/logger"
)

// Config holds configuration for a probe run.
type Config struct {
	BaseURL string        // Base URL of the service
	Token   string        // Bearer token, empty when auth is disabled
	Sources []string      // Sources to query
	Windows []string      // Window names: 1h, 24h, 7d, 30d, all
	Org     string        // Optional organization filter
	TopN    int           // Expected cap on telemetry organization lists
	Workers int           // Concurrent requests
	Timeout time.Duration // Per-request timeout
	Verbose bool          // Log every case
	Logger  logger.Logger // nil discards
}

// Validate checks the configuration before any request is sent.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case len(c.Sources) == 0:
		return fmt.Errorf("%w: at least one source is required", ErrInvalidConfig)
	case len(c.Windows) == 0:
		return fmt.Errorf("%w: at least one window is required", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	case c.TopN < 1:
		return fmt.Errorf("%w: top must be at least 1", ErrInvalidConfig)
	}
	for _, w := range c.Windows {
		if _, ok := windowSpans[w]; !ok && w != allWindow {
			return fmt.Errorf("%w: unknown window %q", ErrInvalidConfig, w)
		}
	}
	return nil
}

// Result is the outcome of one probe case.
type Result struct {
	Case        Case
	RequestID   string
	Status      int
	Duration    time.Duration
	Source      string
	Granularity string
	Points      int
	Orgs        int
	Violations  []string
	Err         error
}

// OK reports whether the case passed.
func (r Result) OK() bool { return r.Err == nil && len(r.Violations) == 0 }

// Report summarizes a probe run.
type Report struct {
	RunID    string
	Results  []Result
	Failed   int
	Duration time.Duration
}
