// Package ledger reconciles the request-log ledger into a per-organization
// usage breakdown.
//
// The ledger is exact but can be far larger than one request can scan. Below
// ExhaustiveThreshold rows every matching row is read. Above it the newest
// rows are sampled and counts are scaled up to the authoritative total, then
// the whole breakdown is renormalized if the sampled organization mix drifts
// too far from that total.
package ledger

import (
	"context"
	"time"

	"github.com/okian/usagedash/internal/domain/bucket"
	"github.com/okian/usagedash/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Sampling policy. These values are observed behavior; changing them changes
// every downstream estimate.
const (
	ExhaustiveThreshold = 50_000
	SampleRatio         = 0.1
	MinSampleSize       = 5_000
	MaxSampleSize       = 20_000
	ReconcileTolerance  = 0.10
)

// Query selects ledger rows. Empty KeyIDs and KeyPrefixes select every key.
type Query struct {
	Window        model.Window
	KeyIDs        []string // key_id IN (...)
	KeyPrefixes   []string // key_id LIKE 'p%' OR ...
	ExcludeKeyIDs []string // key_id NOT IN (...)

	// Shared is set when the key predicates can also select rows that
	// resolve to another organization. Stores ignore it; callers must
	// re-attribute matching rows through the KeyIndex.
	Shared bool
}

// Filtered reports whether the query restricts keys.
func (q Query) Filtered() bool {
	return len(q.KeyIDs) > 0 || len(q.KeyPrefixes) > 0
}

// Row is one request-log entry.
type Row struct {
	KeyID          string
	CreatedAt      time.Time
	Cost           decimal.Decimal
	Tokens         int64
	TokensReported bool
}

// EffectiveTokens mirrors model.TelemetryEvent.EffectiveTokens for ledger rows.
func (r Row) EffectiveTokens() int64 {
	return model.TelemetryEvent{
		Cost:           r.Cost,
		TokenCount:     r.Tokens,
		TokensReported: r.TokensReported,
	}.EffectiveTokens()
}

// Store is the relational interface to the ledger.
type Store interface {
	// CountRequests returns the exact number of rows matching q.
	CountRequests(ctx context.Context, q Query) (int64, error)

	// ScanRequests returns rows matching q, newest first. limit <= 0 means
	// no limit.
	ScanRequests(ctx context.Context, q Query, limit int) ([]Row, error)

	// KeyRegistry lists every key of one registry table.
	KeyRegistry(ctx context.Context, src model.RegistrySource) ([]model.RegistryEntry, error)

	// AggregateSeries groups matching rows by bucket start in SQL.
	AggregateSeries(ctx context.Context, q Query, g bucket.Granularity) ([]model.TimeBucket, error)

	NameSource
}

// NameSource resolves organization ids to display names.
type NameSource interface {
	OrganizationNames(ctx context.Context) (map[string]string, error)
}
