package repository

import "github.com/okian/usagedash/pkg/logger"

// Tables names the ledger tables. Names are interpolated into SQL and must
// be validated identifiers.
type Tables struct {
	Requests   string
	CurrentKey string
	LegacyKey  string
	Orgs       string
}

// DefaultTables returns the production table names.
func DefaultTables() Tables {
	return Tables{
		Requests:   "api_request_logs",
		CurrentKey: "api_keys",
		LegacyKey:  "legacy_api_keys",
		Orgs:       "organizations",
	}
}

// Option applies a configuration option to the PostgresStore.
type Option func(*PostgresStore)

// WithTables overrides table names. Empty fields keep their defaults.
func WithTables(t Tables) Option {
	return func(s *PostgresStore) {
		if t.Requests != "" {
			s.tables.Requests = t.Requests
		}
		if t.CurrentKey != "" {
			s.tables.CurrentKey = t.CurrentKey
		}
		if t.LegacyKey != "" {
			s.tables.LegacyKey = t.LegacyKey
		}
		if t.Orgs != "" {
			s.tables.Orgs = t.Orgs
		}
	}
}

// WithMaxConns caps the pool size.
func WithMaxConns(n int32) Option {
	return func(s *PostgresStore) {
		if n > 0 {
			s.maxConns = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *PostgresStore) {
		if l != nil {
			s.logger = l
		}
	}
}
