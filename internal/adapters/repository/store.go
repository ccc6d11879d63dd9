// Package repository implements the ledger store on Postgres.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okian/usagedash/internal/domain/bucket"
	"github.com/okian/usagedash/internal/domain/ledger"
	"github.com/okian/usagedash/internal/domain/model"
	"github.com/okian/usagedash/pkg/logger"
	"github.com/okian/usagedash/pkg/metrics"
	"github.com/shopspring/decimal"
)

// querier is the subset of pgxpool.Pool the store uses.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a ledger.Store backed by a pgx pool.
type PostgresStore struct {
	db       querier
	pool     *pgxpool.Pool
	tables   Tables
	maxConns int32
	logger   logger.Logger
}

var _ ledger.Store = (*PostgresStore)(nil)

// New connects to dsn and verifies the connection.
func New(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	if dsn == "" {
		return nil, ErrNotConfigured
	}
	s := newStore(opts...)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parse dsn: %w", ErrConnect, err)
	}
	cfg.MaxConns = s.maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrConnect, err)
	}

	s.pool = pool
	s.db = pool
	s.logger.Info(ctx, "ledger store connected",
		logger.String("requests_table", s.tables.Requests),
		logger.Int("max_conns", int(s.maxConns)))
	return s, nil
}

func newStore(opts ...Option) *PostgresStore {
	s := &PostgresStore{
		tables:   DefaultTables(),
		maxConns: 8,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return ErrNotConfigured
	}
	return s.pool.Ping(ctx)
}

func observe(op string, start time.Time, err error) {
	metrics.RecordLedgerQuery(op, err, float64(time.Since(start).Milliseconds()))
}

// CountRequests implements ledger.Store.
func (s *PostgresStore) CountRequests(ctx context.Context, q ledger.Query) (n int64, err error) {
	start := time.Now()
	defer func() { observe("count", start, err) }()

	st := countStatement(s.tables.Requests, q)
	err = s.db.QueryRow(ctx, st.sql, st.args...).Scan(&n)
	return n, err
}

// ScanRequests implements ledger.Store.
func (s *PostgresStore) ScanRequests(ctx context.Context, q ledger.Query, limit int) (out []ledger.Row, err error) {
	start := time.Now()
	defer func() { observe("scan", start, err) }()

	st := scanStatement(s.tables.Requests, q, limit)
	rows, err := s.db.Query(ctx, st.sql, st.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if limit > 0 {
		out = make([]ledger.Row, 0, limit)
	}
	for rows.Next() {
		var (
			r      ledger.Row
			cost   string
			tokens *int64
		)
		if err := rows.Scan(&r.KeyID, &r.CreatedAt, &cost, &tokens); err != nil {
			return nil, err
		}
		if r.Cost, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("parse cost %q: %w", cost, err)
		}
		if tokens != nil {
			r.Tokens, r.TokensReported = *tokens, true
		}
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// KeyRegistry implements ledger.Store.
func (s *PostgresStore) KeyRegistry(ctx context.Context, src model.RegistrySource) (out []model.RegistryEntry, err error) {
	start := time.Now()
	defer func() { observe("registry_"+src.String(), start, err) }()

	table := s.tables.CurrentKey
	if src == model.RegistryLegacy {
		table = s.tables.LegacyKey
	}
	st := registryStatement(table)
	rows, err := s.db.Query(ctx, st.sql)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.RegistryEntry, error) {
		var e model.RegistryEntry
		err := row.Scan(&e.KeyID, &e.OrgID, &e.KeyLabel)
		return e, err
	})
}

// OrganizationNames implements ledger.NameSource.
func (s *PostgresStore) OrganizationNames(ctx context.Context) (out map[string]string, err error) {
	start := time.Now()
	defer func() { observe("org_names", start, err) }()

	st := orgNamesStatement(s.tables.Orgs)
	rows, err := s.db.Query(ctx, st.sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out = make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

// AggregateSeries implements ledger.Store.
func (s *PostgresStore) AggregateSeries(ctx context.Context, q ledger.Query, g bucket.Granularity) (out []model.TimeBucket, err error) {
	start := time.Now()
	defer func() { observe("series", start, err) }()

	st := seriesStatement(s.tables.Requests, q, g)
	rows, err := s.db.Query(ctx, st.sql, st.args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.TimeBucket, error) {
		var (
			b    model.TimeBucket
			cost string
		)
		if err := row.Scan(&b.Start, &b.EventCount, &cost, &b.TotalTokens); err != nil {
			return b, err
		}
		b.Start = b.Start.UTC()
		c, err := decimal.NewFromString(cost)
		b.TotalCost = c
		return b, err
	})
}
