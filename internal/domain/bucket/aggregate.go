package bucket

import (
	"time"

	"github.com/okian/usagedash/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Aggregate groups events into buckets of width g over w and fills every
// empty bucket with zeros, so the result is a gap-free ascending series.
// Events outside w are dropped. Cost sums are exact; nothing is rounded.
//
// For a bounded window the keys run from Truncate(w.From) to
// Truncate(w.To - 1ns). For an all-time window they span the first and last
// observed bucket.
func Aggregate(events []model.AttributedEvent, w model.Window, g Granularity) []model.TimeBucket {
	acc := make(map[int64]*model.TimeBucket, len(events))
	var first, last time.Time

	for i := range events {
		e := &events[i]
		ts := e.Timestamp.UTC()
		if !w.Contains(ts) {
			continue
		}
		key := g.Truncate(ts)
		b, ok := acc[key.UnixNano()]
		if !ok {
			b = &model.TimeBucket{Start: key, TotalCost: decimal.Zero}
			acc[key.UnixNano()] = b
		}
		b.EventCount++
		b.TotalCost = b.TotalCost.Add(e.Cost)
		b.TotalTokens += e.EffectiveTokens()

		if first.IsZero() || key.Before(first) {
			first = key
		}
		if key.After(last) {
			last = key
		}
	}

	keys := seriesKeys(w, g, first, last)
	out := make([]model.TimeBucket, len(keys))
	for i, k := range keys {
		if b, ok := acc[k.UnixNano()]; ok {
			out[i] = *b
			continue
		}
		out[i] = model.TimeBucket{Start: k, TotalCost: decimal.Zero}
	}
	return out
}

// Fill gap-fills a series aggregated elsewhere (e.g. by SQL). Buckets are
// re-keyed with g; duplicates are merged and out-of-window buckets dropped.
func Fill(buckets []model.TimeBucket, w model.Window, g Granularity) []model.TimeBucket {
	acc := make(map[int64]model.TimeBucket, len(buckets))
	var first, last time.Time

	for _, b := range buckets {
		key := g.Truncate(b.Start.UTC())
		if !w.AllTime && (key.Before(g.Truncate(w.From)) || key.After(g.Truncate(w.To.Add(-time.Nanosecond)))) {
			continue
		}
		cur, ok := acc[key.UnixNano()]
		if !ok {
			cur = model.TimeBucket{Start: key, TotalCost: decimal.Zero}
		}
		cur.EventCount += b.EventCount
		cur.TotalCost = cur.TotalCost.Add(b.TotalCost)
		cur.TotalTokens += b.TotalTokens
		acc[key.UnixNano()] = cur

		if first.IsZero() || key.Before(first) {
			first = key
		}
		if key.After(last) {
			last = key
		}
	}

	keys := seriesKeys(w, g, first, last)
	out := make([]model.TimeBucket, len(keys))
	for i, k := range keys {
		if b, ok := acc[k.UnixNano()]; ok {
			out[i] = b
			continue
		}
		out[i] = model.TimeBucket{Start: k, TotalCost: decimal.Zero}
	}
	return out
}

func seriesKeys(w model.Window, g Granularity, first, last time.Time) []time.Time {
	if w.AllTime {
		if first.IsZero() {
			return nil
		}
		return g.Keys(first, last)
	}
	return g.Keys(w.From, w.To.Add(-time.Nanosecond))
}

// Totals sums a series.
func Totals(series []model.TimeBucket) (count int64, cost decimal.Decimal, tokens int64) {
	cost = decimal.Zero
	for _, b := range series {
		count += b.EventCount
		cost = cost.Add(b.TotalCost)
		tokens += b.TotalTokens
	}
	return count, cost, tokens
}

// Contiguous reports whether every bucket starts exactly one step after the
// previous one.
func Contiguous(series []model.TimeBucket, g Granularity) bool {
	for i := 1; i < len(series); i++ {
		if !g.Next(series[i-1].Start).Equal(series[i].Start) {
			return false
		}
	}
	return true
}
