package probe

import (
	"fmt"
	"time"

	"github.com/okian/usagedash/internal/domain/bucket"
	"github.com/okian/usagedash/internal/domain/model"
	"github.com/okian/usagedash/internal/domain/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Verify returns every invariant resp violates for c.
func Verify(c Case, resp types.UsageResponse, topN int) []string {
	var v []string
	add := func(format string, args ...any) { v = append(v, fmt.Sprintf(format, args...)) }

	switch model.Source(resp.Source) {
	case model.SourceTelemetry, model.SourceLedger:
	default:
		add("unknown source %q", resp.Source)
	}

	s := resp.Summary
	if s.TotalCost < 0 || s.TotalTraces < 0 || s.TotalRequests < 0 || s.TotalTokens < 0 {
		add("negative summary totals %+v", s)
	}
	if resp.ScalingFactor < 1 {
		add("scaling factor %.4f below 1", resp.ScalingFactor)
	}
	if resp.Sampled && resp.Source != string(model.SourceLedger) {
		add("sampled response from %s", resp.Source)
	}

	v = append(v, verifyOrganizations(c, resp, topN)...)
	v = append(v, verifySeries(c, resp)...)
	return v
}

func verifyOrganizations(c Case, resp types.UsageResponse, topN int) []string {
	var v []string
	orgs := resp.Organizations
	if resp.Source == string(model.SourceTelemetry) && len(orgs) > topN {
		v = append(v, fmt.Sprintf("%d organizations listed, cap is %d", len(orgs), topN))
	}
	for i := 1; i < len(orgs); i++ {
		if orgs[i].Requests > orgs[i-1].Requests {
			v = append(v, fmt.Sprintf("organizations not ordered by requests at %d", i))
			break
		}
	}
	if c.Org != "" {
		if stray, ok := lo.Find(orgs, func(o types.OrganizationRow) bool { return o.OrgID != c.Org }); ok {
			v = append(v, fmt.Sprintf("organization %q listed under filter %q", stray.OrgID, c.Org))
		}
	}
	if dups := lo.FindDuplicatesBy(orgs, func(o types.OrganizationRow) string { return o.OrgID }); len(dups) > 0 {
		v = append(v, fmt.Sprintf("organization %q listed twice", dups[0].OrgID))
	}
	return v
}

func verifySeries(c Case, resp types.UsageResponse) []string {
	g, err := bucket.ParseGranularity(resp.Granularity)
	if err != nil {
		return []string{err.Error()}
	}

	var v []string
	want := bucket.SelectGranularity(c.Window)
	// the ledger degrades to day probes
	probed := resp.Source == string(model.SourceLedger) && g == bucket.Day
	if g != want && !probed {
		v = append(v, fmt.Sprintf("granularity %s, want %s", g, want))
	}

	series := lo.Map(resp.ChartData, func(p types.ChartPoint, _ int) model.TimeBucket {
		return model.TimeBucket{Start: p.Timestamp, EventCount: p.Count, TotalCost: decimal.NewFromFloat(p.Cost), TotalTokens: p.Tokens}
	})
	if lo.SomeBy(series, func(b model.TimeBucket) bool { return b.EventCount < 0 || b.TotalTokens < 0 }) {
		v = append(v, "negative bucket values")
	}

	if probed && g != want {
		return v
	}
	if !bucket.Contiguous(series, g) {
		v = append(v, "series is not gap-free and ascending")
	}
	if !c.Window.AllTime {
		first := g.Truncate(c.Window.From)
		last := g.Truncate(c.Window.To.Add(-time.Nanosecond))
		if n := len(g.Keys(first, last)); len(series) != n {
			v = append(v, fmt.Sprintf("%d buckets, want %d", len(series), n))
		} else if n > 0 && !series[0].Start.Equal(first) {
			v = append(v, fmt.Sprintf("first bucket %s, want %s", series[0].Start.Format(time.RFC3339), first.Format(time.RFC3339)))
		}
	}
	return v
}
