package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/okian/usagedash/internal/domain/bucket"
	"github.com/okian/usagedash/internal/domain/model"
	"github.com/okian/usagedash/pkg/logger"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	probeConcurrency   = 4
	allTimeProbeWindow = 30 * 24 * time.Hour
)

// Series returns the gap-filled usage series for w aggregated in SQL. When
// the filter's key predicates are shared with other organizations, rows are
// re-attributed: exhaustively when the ledger is small, otherwise by scaling
// the SQL series with the sampled share owned by orgFilter.
func (r *Reconciler) Series(ctx context.Context, ix *KeyIndex, w model.Window, orgFilter string, g bucket.Granularity) ([]model.TimeBucket, error) {
	q, ok := ix.QueryFor(w, orgFilter)
	if !ok {
		return bucket.Fill(nil, w, g), nil
	}

	share := 1.0
	if q.Shared {
		total, err := r.store.CountRequests(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("%w: count: %w", ErrSeriesUnavailable, err)
		}
		owned, kept, complete, err := r.ownedRows(ctx, ix, q, orgFilter, total)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %w", ErrSeriesUnavailable, err)
		}
		if complete {
			return bucket.Aggregate(rowEvents(owned, orgFilter), w, g), nil
		}
		share = kept
	}

	raw, err := r.store.AggregateSeries(ctx, q, g)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregate: %w", ErrSeriesUnavailable, err)
	}
	return scaleSeries(bucket.Fill(raw, w, g), share), nil
}

func rowEvents(rows []Row, orgID string) []model.AttributedEvent {
	return lo.Map(rows, func(row Row, _ int) model.AttributedEvent {
		return model.AttributedEvent{
			TelemetryEvent: model.TelemetryEvent{
				Timestamp:      row.CreatedAt,
				Cost:           row.Cost,
				TokenCount:     row.Tokens,
				TokensReported: row.TokensReported,
			},
			OrgID: orgID,
		}
	})
}

func scaleSeries(series []model.TimeBucket, share float64) []model.TimeBucket {
	if share == 1 {
		return series
	}
	k := decimal.NewFromFloat(share)
	for i := range series {
		series[i].EventCount = int64(math.Round(float64(series[i].EventCount) * share))
		series[i].TotalTokens = int64(math.Round(float64(series[i].TotalTokens) * share))
		series[i].TotalCost = series[i].TotalCost.Mul(k)
	}
	return series
}

// ProbeSeries is the low-fidelity series: it counts rows on a bounded set of
// evenly spaced days instead of aggregating the whole window. Only request
// counts are known for probed days; cost and tokens stay zero. Days whose
// probe fails are omitted.
func (r *Reconciler) ProbeSeries(ctx context.Context, ix *KeyIndex, w model.Window, orgFilter string) ([]model.TimeBucket, error) {
	if w.AllTime {
		now := r.now().UTC()
		w = model.Window{From: now.Add(-allTimeProbeWindow), To: now}
	}
	days := ProbeDays(w, r.probeDates)

	q, ok := ix.QueryFor(w, orgFilter)
	if !ok {
		out := make([]model.TimeBucket, len(days))
		for i, d := range days {
			out[i] = model.TimeBucket{Start: d, TotalCost: decimal.Zero}
		}
		return out, nil
	}

	var (
		mu     sync.Mutex
		counts = make(map[int]int64, len(days))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for i, day := range days {
		g.Go(func() error {
			dq := q
			dq.Window = clip(model.Window{From: day, To: bucket.Day.Next(day)}, w)
			n, err := r.store.CountRequests(gctx, dq)
			if err == nil && q.Shared && n > 0 {
				var share float64
				if _, share, _, err = r.ownedRows(gctx, ix, dq, orgFilter, n); err == nil {
					n = int64(math.Round(float64(n) * share))
				}
			}
			if err != nil {
				r.logger.Warn(ctx, "ledger probe failed",
					logger.Time("day", day),
					logger.Error(err))
				return nil
			}
			mu.Lock()
			counts[i] = n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(counts) == 0 && len(days) > 0 {
		return nil, fmt.Errorf("%w: every probe failed", ErrSeriesUnavailable)
	}
	out := make([]model.TimeBucket, 0, len(counts))
	for i, day := range days {
		if n, ok := counts[i]; ok {
			out = append(out, model.TimeBucket{Start: day, EventCount: n, TotalCost: decimal.Zero})
		}
	}
	return out, nil
}

// ProbeDays picks at most n evenly spaced day starts covering w, always
// including the first and last day.
func ProbeDays(w model.Window, n int) []time.Time {
	all := bucket.Day.Keys(w.From, w.To.Add(-time.Nanosecond))
	if n <= 0 || len(all) <= n {
		return all
	}
	if n == 1 {
		return all[:1]
	}
	out := make([]time.Time, 0, n)
	last := -1
	for i := 0; i < n; i++ {
		idx := int(math.Round(float64(i) * float64(len(all)-1) / float64(n-1)))
		if idx == last {
			continue
		}
		out = append(out, all[idx])
		last = idx
	}
	return out
}

func clip(day, w model.Window) model.Window {
	if day.From.Before(w.From) {
		day.From = w.From
	}
	if day.To.After(w.To) {
		day.To = w.To
	}
	return day
}
