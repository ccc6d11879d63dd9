package ledger

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/usagedash/internal/domain/model"
	"github.com/okian/usagedash/pkg/logger"
	"github.com/okian/usagedash/pkg/metrics"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Result is a reconciled per-organization breakdown.
type Result struct {
	TotalCount    int64
	Organizations []model.OrganizationUsage
	ScalingFactor float64
	Sampled       bool
	SampleSize    int
	Renormalized  bool
}

// Reconciler builds organization breakdowns from a ledger Store.
type Reconciler struct {
	store      Store
	names      NameSource
	logger     logger.Logger
	probeDates int
	now        func() time.Time
}

// NewReconciler creates a Reconciler over store.
func NewReconciler(store Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:      store,
		names:      store,
		logger:     logger.Nop(),
		probeDates: 10,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SamplePlan returns how many rows to scan for total matching rows. A limit
// of zero means the scan is exhaustive.
func SamplePlan(total int64) (limit int, sampled bool) {
	if total <= ExhaustiveThreshold {
		return 0, false
	}
	size := int(math.Round(float64(total) * SampleRatio))
	return max(MinSampleSize, min(size, MaxSampleSize)), true
}

// Index loads both key registries and organization names concurrently.
func (r *Reconciler) Index(ctx context.Context) (*KeyIndex, error) {
	var (
		current, legacy []model.RegistryEntry
		names           map[string]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		current, err = r.store.KeyRegistry(gctx, model.RegistryCurrent)
		return err
	})
	g.Go(func() (err error) {
		legacy, err = r.store.KeyRegistry(gctx, model.RegistryLegacy)
		return err
	})
	g.Go(func() error {
		n, err := r.names.OrganizationNames(gctx)
		if err != nil {
			// names are cosmetic; ids still resolve
			r.logger.Warn(ctx, "organization names unavailable", logger.Error(err))
			metrics.RecordFallback("org_names")
			return nil
		}
		names = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewKeyIndex(current, legacy, names), nil
}

// Reconcile returns the organization breakdown for w, optionally restricted
// to one organization.
func (r *Reconciler) Reconcile(ctx context.Context, w model.Window, orgFilter string) (Result, error) {
	ix, err := r.Index(ctx)
	if err != nil {
		// without registries every key is reported as unregistered
		r.logger.Warn(ctx, "key registries unavailable", logger.Error(err))
		metrics.RecordFallback("key_registry")
		ix = NewKeyIndex(nil, nil, nil)
	}
	return r.ReconcileWith(ctx, ix, w, orgFilter)
}

// ReconcileWith reconciles using a prebuilt index.
func (r *Reconciler) ReconcileWith(ctx context.Context, ix *KeyIndex, w model.Window, orgFilter string) (Result, error) {
	empty := Result{ScalingFactor: 1, Organizations: []model.OrganizationUsage{}}

	q, ok := ix.QueryFor(w, orgFilter)
	if !ok {
		return empty, nil
	}

	total, err := r.store.CountRequests(ctx, q)
	if err != nil {
		return Result{}, fmt.Errorf("%w: count: %w", ErrLedgerUnavailable, err)
	}
	if total == 0 {
		return empty, nil
	}

	limit, sampled := SamplePlan(total)
	rows, err := r.store.ScanRequests(ctx, q, limit)
	if err != nil {
		return Result{}, fmt.Errorf("%w: scan: %w", ErrLedgerUnavailable, err)
	}

	res := Result{TotalCount: total, ScalingFactor: 1, Sampled: sampled}
	if sampled {
		res.SampleSize = len(rows)
		if res.SampleSize > 0 {
			res.ScalingFactor = float64(total) / float64(res.SampleSize)
		}
		metrics.RecordLedgerSampled()
	}
	metrics.UpdateLedgerScalingFactor(res.ScalingFactor)

	res.Organizations = breakdown(ix, rows, res.ScalingFactor, orgFilter)
	if orgFilter != "" {
		// the count covers every row the key predicates select
		res.TotalCount = int64(math.Round(sumRequests(res.Organizations)))
		return res, nil
	}
	res.Renormalized = renormalize(res.Organizations, total)
	if res.Renormalized {
		metrics.RecordLedgerRenormalized()
		r.logger.Debug(ctx, "ledger breakdown renormalized",
			logger.Int64("total", total),
			logger.Int("rows", len(rows)))
	}
	return res, nil
}

type orgAcc struct {
	mapping model.KeyMapping
	count   int64
	cost    decimal.Decimal
	tokens  int64
}

func breakdown(ix *KeyIndex, rows []Row, factor float64, orgFilter string) []model.OrganizationUsage {
	acc := make(map[string]*orgAcc)
	for _, row := range rows {
		m := ix.Lookup(row.KeyID)
		if orgFilter != "" && m.OrgID != orgFilter {
			continue
		}
		a, ok := acc[m.OrgID]
		if !ok {
			a = &orgAcc{mapping: m, cost: decimal.Zero}
			acc[m.OrgID] = a
		}
		a.count++
		a.cost = a.cost.Add(row.Cost)
		a.tokens += row.EffectiveTokens()
	}

	scale := decimal.NewFromFloat(factor)
	out := lo.MapToSlice(acc, func(id string, a *orgAcc) model.OrganizationUsage {
		return model.OrganizationUsage{
			OrgID:        id,
			DisplayName:  a.mapping.DisplayName,
			RequestCount: float64(a.count) * factor,
			Cost:         a.cost.Mul(scale),
			Tokens:       float64(a.tokens) * factor,
			Registered:   a.mapping.Registered,
		}
	})
	sortByRequests(out)
	return out
}

// renormalize scales every organization by total/sum once when the
// breakdown deviates from the authoritative total by more than
// ReconcileTolerance. It reports whether a correction was applied.
func renormalize(orgs []model.OrganizationUsage, total int64) bool {
	sum := sumRequests(orgs)
	if total <= 0 || sum <= 0 {
		return false
	}
	if math.Abs(sum-float64(total))/float64(total) <= ReconcileTolerance {
		return false
	}
	k := float64(total) / sum
	kd := decimal.NewFromFloat(k)
	for i := range orgs {
		orgs[i].RequestCount *= k
		orgs[i].Tokens *= k
		orgs[i].Cost = orgs[i].Cost.Mul(kd)
	}
	return true
}

func sumRequests(orgs []model.OrganizationUsage) float64 {
	return lo.SumBy(orgs, func(o model.OrganizationUsage) float64 { return o.RequestCount })
}

// ownedRows scans the rows matching q, sampled per SamplePlan(total), and
// keeps those that resolve to orgFilter. share is the kept fraction of the
// scanned rows; complete reports an exhaustive scan.
func (r *Reconciler) ownedRows(ctx context.Context, ix *KeyIndex, q Query, orgFilter string, total int64) (owned []Row, share float64, complete bool, err error) {
	limit, sampled := SamplePlan(total)
	rows, err := r.store.ScanRequests(ctx, q, limit)
	if err != nil {
		return nil, 0, false, err
	}
	owned = lo.Filter(rows, func(row Row, _ int) bool {
		return ix.Lookup(row.KeyID).OrgID == orgFilter
	})
	if len(rows) > 0 {
		share = float64(len(owned)) / float64(len(rows))
	}
	return owned, share, !sampled, nil
}

func sortByRequests(orgs []model.OrganizationUsage) {
	sort.Slice(orgs, func(i, j int) bool {
		if orgs[i].RequestCount != orgs[j].RequestCount {
			return orgs[i].RequestCount > orgs[j].RequestCount
		}
		return orgs[i].OrgID < orgs[j].OrgID
	})
}
