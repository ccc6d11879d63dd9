// Package service composes the telemetry and ledger sources into the usage
// responses served by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/usagedash/internal/adapters/cache"
	"github.com/okian/usagedash/internal/adapters/telemetry"
	"github.com/okian/usagedash/internal/domain/bucket"
	"github.com/okian/usagedash/internal/domain/ledger"
	"github.com/okian/usagedash/internal/domain/model"
	"github.com/okian/usagedash/internal/domain/types"
	"github.com/okian/usagedash/pkg/logger"
	"github.com/okian/usagedash/pkg/metrics"
)

// EventSource fetches raw telemetry events for a window.
type EventSource interface {
	FetchEvents(ctx context.Context, w model.Window, f telemetry.Filter) ([]model.TelemetryEvent, error)
}

// LedgerSource reconciles request-log usage. *ledger.Reconciler implements it.
type LedgerSource interface {
	Index(ctx context.Context) (*ledger.KeyIndex, error)
	ReconcileWith(ctx context.Context, ix *ledger.KeyIndex, w model.Window, orgFilter string) (ledger.Result, error)
	Series(ctx context.Context, ix *ledger.KeyIndex, w model.Window, orgFilter string, g bucket.Granularity) ([]model.TimeBucket, error)
	ProbeSeries(ctx context.Context, ix *ledger.KeyIndex, w model.Window, orgFilter string) ([]model.TimeBucket, error)
}

// Invalidator drops cached state.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// UsageQuery selects the usage to report.
type UsageQuery struct {
	Window    model.Window
	OrgFilter string
	// Source is the preferred source; empty selects the service default.
	Source model.Source
	// Relative names a window that ends at request time, such as "days=7".
	// It replaces the window in the cache key so repeats within the cache
	// TTL are served from cache.
	Relative string
}

func (q UsageQuery) cacheKey(src model.Source) string {
	window := q.Window.Key()
	if q.Relative != "" {
		window = "rel:" + q.Relative
	}
	return string(src) + "|" + window + "|" + q.OrgFilter
}

// Service answers dashboard usage queries.
type Service struct {
	mu sync.RWMutex

	// Sources
	telemetry EventSource
	ledger    LedgerSource
	names     ledger.NameSource

	// Caches
	responses   *cache.Cache[types.UsageResponse]
	invalidates []Invalidator
	cacheTTL    time.Duration
	cacheSize   int

	// Configuration
	defaultSource model.Source
	topN          int
	minOrgEvents  int

	// State
	started   bool
	requests  atomic.Int64
	fallbacks atomic.Int64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithTelemetry sets the telemetry event source.
func WithTelemetry(src EventSource) Option {
	return func(s *Service) { s.telemetry = src }
}

// WithLedger sets the ledger source.
func WithLedger(src LedgerSource) Option {
	return func(s *Service) { s.ledger = src }
}

// WithNames sets the organization display-name lookup used for telemetry
// organizations.
func WithNames(n ledger.NameSource) Option {
	return func(s *Service) { s.names = n }
}

// WithCache configures the response cache. A zero ttl or size disables it.
func WithCache(ttl time.Duration, size int) Option {
	return func(s *Service) {
		s.cacheTTL = ttl
		s.cacheSize = size
	}
}

// WithInvalidator registers additional state dropped by InvalidateCache.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) {
		if inv != nil {
			s.invalidates = append(s.invalidates, inv)
		}
	}
}

// WithDefaultSource sets the source used when a query names none.
func WithDefaultSource(src model.Source) Option {
	return func(s *Service) {
		if src != "" {
			s.defaultSource = src
		}
	}
}

// WithTopOrganizations caps the telemetry organizations list.
func WithTopOrganizations(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.topN = n
		}
	}
}

// WithMinOrgEvents sets the minimum events for a telemetry organization to be listed.
func WithMinOrgEvents(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.minOrgEvents = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		cacheTTL:      5 * time.Minute,
		cacheSize:     512,
		defaultSource: model.SourceTelemetry,
		topN:          10,
		minOrgEvents:  2,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start validates the configured sources and prepares the caches.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.telemetry == nil && s.ledger == nil {
		return ErrNoSource
	}

	s.responses = cache.New[types.UsageResponse]("responses",
		cache.WithTTL(s.cacheTTL),
		cache.WithMaxEntries(s.cacheSize),
		cache.WithLogger(s.logger))

	s.started = true
	s.logger.Info(ctx, "usage service started",
		logger.Bool("telemetry", s.telemetry != nil),
		logger.Bool("ledger", s.ledger != nil),
		logger.String("defaultSource", string(s.defaultSource)),
		logger.Duration("cacheTTL", s.cacheTTL),
	)
	return nil
}

// Stop marks the service stopped. Sources are owned and closed by the caller.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "usage service stopped")
}

func (s *Service) available(src model.Source) bool {
	switch src {
	case model.SourceTelemetry:
		return s.telemetry != nil
	case model.SourceLedger:
		return s.ledger != nil
	}
	return false
}

// GetUsage returns the summary, organization list and chart series for q.
// When the preferred source fails the other configured source is used; an
// error is returned only when every source fails.
func (s *Service) GetUsage(ctx context.Context, q UsageQuery) (types.UsageResponse, error) {
	s.mu.RLock()
	started, responses := s.started, s.responses
	s.mu.RUnlock()
	if !started {
		return types.UsageResponse{}, ErrNotStarted
	}
	s.requests.Add(1)

	primary := q.Source
	if primary == "" {
		primary = s.defaultSource
	}
	order := []model.Source{primary, primary.Other()}

	var errs []error
	for i, src := range order {
		if !s.available(src) {
			continue
		}
		resp, hit, err := responses.GetOrLoad(ctx, q.cacheKey(src), func(ctx context.Context) (types.UsageResponse, error) {
			return s.compute(ctx, src, q)
		})
		if err == nil {
			if i > 0 {
				s.fallbacks.Add(1)
				metrics.RecordFallback("source_" + string(src))
				s.logger.Warn(ctx, "usage served by fallback source",
					logger.String("preferred", string(primary)),
					logger.String("source", string(src)),
					logger.Error(errors.Join(errs...)))
			}
			s.logger.Debug(ctx, "usage served",
				logger.String("source", string(src)),
				logger.Bool("cached", hit),
				logger.String("window", q.Window.Key()))
			return resp, nil
		}
		if ctx.Err() != nil {
			return types.UsageResponse{}, ctx.Err()
		}
		s.logger.Warn(ctx, "usage source failed",
			logger.String("source", string(src)),
			logger.Error(err))
		metrics.RecordErrorByComponent("service", "source_"+string(src))
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return types.UsageResponse{}, ErrNoSource
	}
	return types.UsageResponse{}, fmt.Errorf("%w: %w", ErrSourcesFailed, errors.Join(errs...))
}

func (s *Service) compute(ctx context.Context, src model.Source, q UsageQuery) (types.UsageResponse, error) {
	if src == model.SourceLedger {
		return s.ledgerUsage(ctx, q)
	}
	return s.telemetryUsage(ctx, q)
}

// GetChart returns only the chart series for q.
func (s *Service) GetChart(ctx context.Context, q UsageQuery) ([]types.ChartPoint, error) {
	resp, err := s.GetUsage(ctx, q)
	if err != nil {
		return nil, err
	}
	return resp.ChartData, nil
}

// GetOrganizations returns only the organization list for q.
func (s *Service) GetOrganizations(ctx context.Context, q UsageQuery) ([]types.OrganizationRow, error) {
	resp, err := s.GetUsage(ctx, q)
	if err != nil {
		return nil, err
	}
	return resp.Organizations, nil
}

// InvalidateCache drops cached responses and every registered cache.
func (s *Service) InvalidateCache(ctx context.Context) {
	s.mu.RLock()
	responses := s.responses
	s.mu.RUnlock()

	if responses != nil {
		responses.Invalidate(ctx)
	}
	for _, inv := range s.invalidates {
		inv.Invalidate(ctx)
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sources []string
	for _, src := range []model.Source{model.SourceTelemetry, model.SourceLedger} {
		if s.available(src) {
			sources = append(sources, string(src))
		}
	}
	return map[string]any{
		"started":       s.started,
		"sources":       sources,
		"defaultSource": string(s.defaultSource),
		"cacheTTL":      s.cacheTTL.String(),
		"cacheSize":     s.cacheSize,
		"requests":      s.requests.Load(),
		"fallbacks":     s.fallbacks.Load(),
	}
}

func chartPoints(series []model.TimeBucket) []types.ChartPoint {
	out := make([]types.ChartPoint, len(series))
	for i, b := range series {
		out[i] = types.ChartPoint{
			Timestamp: b.Start,
			Count:     b.EventCount,
			Cost:      types.DisplayCost(b.TotalCost),
			Tokens:    b.TotalTokens,
		}
	}
	return out
}
