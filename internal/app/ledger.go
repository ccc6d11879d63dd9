package service

import (
	"context"

	"github.com/okian/usagedash/internal/domain/bucket"
	"github.com/okian/usagedash/internal/domain/ledger"
	"github.com/okian/usagedash/internal/domain/model"
	"github.com/okian/usagedash/internal/domain/types"
	"github.com/okian/usagedash/pkg/logger"
	"github.com/okian/usagedash/pkg/metrics"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

func (s *Service) ledgerUsage(ctx context.Context, q UsageQuery) (types.UsageResponse, error) {
	ix, err := s.ledger.Index(ctx)
	if err != nil {
		s.logger.Warn(ctx, "key registries unavailable", logger.Error(err))
		metrics.RecordFallback("key_registry")
		ix = ledger.NewKeyIndex(nil, nil, nil)
	}

	g := bucket.SelectGranularity(q.Window)
	var (
		res    ledger.Result
		series []model.TimeBucket
	)
	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		res, err = s.ledger.ReconcileWith(ectx, ix, q.Window, q.OrgFilter)
		return err
	})
	eg.Go(func() error {
		series, g = s.ledgerSeries(ectx, ix, q, g)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return types.UsageResponse{}, err
	}

	cost := decimal.Zero
	for _, o := range res.Organizations {
		cost = cost.Add(o.Cost)
	}
	tokens := lo.SumBy(res.Organizations, func(o model.OrganizationUsage) float64 { return o.Tokens })

	return types.UsageResponse{
		Summary: types.Summary{
			TotalCost:     types.DisplayCost(cost),
			TotalTraces:   res.TotalCount,
			TotalRequests: float64(res.TotalCount),
			TotalTokens:   tokens,
		},
		Organizations: lo.Map(res.Organizations, func(o model.OrganizationUsage, _ int) types.OrganizationRow {
			return types.OrganizationRow{
				OrgID:      o.OrgID,
				Name:       o.DisplayName,
				Requests:   o.RequestCount,
				Cost:       types.DisplayCost(o.Cost),
				Tokens:     o.Tokens,
				Registered: o.Registered,
			}
		}),
		ChartData:     chartPoints(series),
		Granularity:   g.String(),
		Source:        string(model.SourceLedger),
		Sampled:       res.Sampled,
		ScalingFactor: res.ScalingFactor,
	}, nil
}

// ledgerSeries degrades from SQL aggregation to day probes to an empty
// series. It returns the granularity actually used.
func (s *Service) ledgerSeries(ctx context.Context, ix *ledger.KeyIndex, q UsageQuery, g bucket.Granularity) ([]model.TimeBucket, bucket.Granularity) {
	series, err := s.ledger.Series(ctx, ix, q.Window, q.OrgFilter, g)
	if err == nil {
		return series, g
	}
	if ctx.Err() != nil {
		return nil, g
	}
	s.logger.Warn(ctx, "ledger series aggregation failed, probing sample days", logger.Error(err))
	metrics.RecordFallback("ledger_series")

	series, err = s.ledger.ProbeSeries(ctx, ix, q.Window, q.OrgFilter)
	if err == nil {
		return series, bucket.Day
	}
	s.logger.Warn(ctx, "ledger series probes failed", logger.Error(err))
	metrics.RecordFallback("ledger_series_empty")
	return bucket.Fill(nil, q.Window, g), g
}
