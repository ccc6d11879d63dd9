package ledger_test

import (
	"context"
	"strings"
	"sync"

	"github.com/okian/usagedash/internal/domain/bucket"
	"github.com/okian/usagedash/internal/domain/ledger"
	"github.com/okian/usagedash/internal/domain/model"
	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory ledger.Store. Rows are kept newest first.
type fakeStore struct {
	mu sync.Mutex

	current []model.RegistryEntry
	legacy  []model.RegistryEntry
	names   map[string]string
	rows    []ledger.Row
	series  []model.TimeBucket

	// totalOverride replaces the computed count when non-zero.
	totalOverride int64

	countErr    error
	scanErr     error
	registryErr error
	namesErr    error
	seriesErr   error
	// failCountFor makes CountRequests fail for queries starting at these days.
	failCountFor map[int64]bool

	countCalls int
	scanLimits []int
	queries    []ledger.Query
}

func (f *fakeStore) CountRequests(_ context.Context, q ledger.Query) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++
	f.queries = append(f.queries, q)
	if f.countErr != nil {
		return 0, f.countErr
	}
	if f.failCountFor[q.Window.From.Unix()] {
		return 0, context.DeadlineExceeded
	}
	if f.totalOverride > 0 {
		return f.totalOverride, nil
	}
	return int64(len(f.matching(q))), nil
}

func (f *fakeStore) ScanRequests(_ context.Context, q ledger.Query, limit int) ([]ledger.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanLimits = append(f.scanLimits, limit)
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	rows := f.matching(q)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeStore) KeyRegistry(_ context.Context, src model.RegistrySource) ([]model.RegistryEntry, error) {
	if f.registryErr != nil {
		return nil, f.registryErr
	}
	if src == model.RegistryCurrent {
		return f.current, nil
	}
	return f.legacy, nil
}

func (f *fakeStore) OrganizationNames(context.Context) (map[string]string, error) {
	if f.namesErr != nil {
		return nil, f.namesErr
	}
	return f.names, nil
}

func (f *fakeStore) AggregateSeries(_ context.Context, _ ledger.Query, _ bucket.Granularity) ([]model.TimeBucket, error) {
	if f.seriesErr != nil {
		return nil, f.seriesErr
	}
	return f.series, nil
}

func (f *fakeStore) matching(q ledger.Query) []ledger.Row {
	var out []ledger.Row
	for _, r := range f.rows {
		if !q.Window.AllTime && !q.Window.Contains(r.CreatedAt) {
			continue
		}
		if !keyMatches(q, r.KeyID) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func keyMatches(q ledger.Query, key string) bool {
	for _, x := range q.ExcludeKeyIDs {
		if x == key {
			return false
		}
	}
	if !q.Filtered() {
		return true
	}
	for _, k := range q.KeyIDs {
		if k == key {
			return true
		}
	}
	for _, p := range q.KeyPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func rowsFor(key string, n int, cost string) []ledger.Row {
	out := make([]ledger.Row, n)
	for i := range out {
		out[i] = ledger.Row{KeyID: key, Cost: decimal.RequireFromString(cost), Tokens: 10, TokensReported: true}
	}
	return out
}
