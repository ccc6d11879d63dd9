package service

import (
	"context"
	"sort"

	"github.com/okian/usagedash/internal/adapters/telemetry"
	"github.com/okian/usagedash/internal/domain/attribution"
	"github.com/okian/usagedash/internal/domain/bucket"
	"github.com/okian/usagedash/internal/domain/model"
	"github.com/okian/usagedash/internal/domain/types"
	"github.com/okian/usagedash/pkg/logger"
	"github.com/okian/usagedash/pkg/metrics"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type orgRollup struct {
	orgID  string
	events int64
	cost   decimal.Decimal
	tokens int64
}

func (s *Service) telemetryUsage(ctx context.Context, q UsageQuery) (types.UsageResponse, error) {
	events, err := s.telemetry.FetchEvents(ctx, q.Window, telemetry.Filter{})
	if err != nil {
		return types.UsageResponse{}, err
	}

	attributed := attribution.ResolveAll(events, metrics.RecordAttribution)
	if q.OrgFilter != "" {
		attributed = lo.Filter(attributed, func(e model.AttributedEvent, _ int) bool {
			return e.OrgID == q.OrgFilter
		})
	}

	g := bucket.SelectGranularity(q.Window)
	series := bucket.Aggregate(attributed, q.Window, g)

	// totals keep Unknown and pseudo-organizations
	count, cost, tokens := int64(len(attributed)), decimal.Zero, int64(0)
	for _, e := range attributed {
		cost = cost.Add(e.Cost)
		tokens += e.EffectiveTokens()
	}

	return types.UsageResponse{
		Summary: types.Summary{
			TotalCost:     types.DisplayCost(cost),
			TotalTraces:   count,
			TotalRequests: float64(count),
			TotalTokens:   float64(tokens),
		},
		Organizations: s.topOrganizations(ctx, attributed),
		ChartData:     chartPoints(series),
		Granularity:   g.String(),
		Source:        string(model.SourceTelemetry),
		ScalingFactor: 1,
	}, nil
}

// topOrganizations rolls events up per organization and keeps the most
// active listable ones.
func (s *Service) topOrganizations(ctx context.Context, events []model.AttributedEvent) []types.OrganizationRow {
	acc := make(map[string]*orgRollup)
	for _, e := range events {
		r, ok := acc[e.OrgID]
		if !ok {
			r = &orgRollup{orgID: e.OrgID, cost: decimal.Zero}
			acc[e.OrgID] = r
		}
		r.events++
		r.cost = r.cost.Add(e.Cost)
		r.tokens += e.EffectiveTokens()
	}

	rollups := lo.Filter(lo.Values(acc), func(r *orgRollup, _ int) bool {
		return r.events >= int64(s.minOrgEvents) && attribution.IsListable(r.orgID)
	})
	sort.Slice(rollups, func(i, j int) bool {
		a, b := rollups[i], rollups[j]
		if a.events != b.events {
			return a.events > b.events
		}
		if c := a.cost.Cmp(b.cost); c != 0 {
			return c > 0
		}
		return a.orgID < b.orgID
	})
	if len(rollups) > s.topN {
		rollups = rollups[:s.topN]
	}

	names := s.organizationNames(ctx)
	return lo.Map(rollups, func(r *orgRollup, _ int) types.OrganizationRow {
		name := names[r.orgID]
		if name == "" {
			name = r.orgID
		}
		return types.OrganizationRow{
			OrgID:      r.orgID,
			Name:       name,
			Requests:   float64(r.events),
			Cost:       types.DisplayCost(r.cost),
			Tokens:     float64(r.tokens),
			Registered: true,
		}
	})
}

func (s *Service) organizationNames(ctx context.Context) map[string]string {
	if s.names == nil {
		return nil
	}
	names, err := s.names.OrganizationNames(ctx)
	if err != nil {
		s.logger.Warn(ctx, "organization names unavailable", logger.Error(err))
		metrics.RecordFallback("org_names")
		return nil
	}
	return names
}
