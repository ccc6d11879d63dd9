package cache

import (
	"context"

	"github.com/okian/usagedash/internal/domain/ledger"
)

const directoryKey = "organizations"

// Directory caches organization display names from a slower NameSource.
type Directory struct {
	source ledger.NameSource
	cache  *Cache[map[string]string]
}

var _ ledger.NameSource = (*Directory)(nil)

// NewDirectory wraps source. The entry bound option does not apply.
func NewDirectory(source ledger.NameSource, opts ...Option) *Directory {
	opts = append(opts, WithMaxEntries(1))
	return &Directory{
		source: source,
		cache:  New[map[string]string]("org_names", opts...),
	}
}

// OrganizationNames implements ledger.NameSource. Callers must not mutate
// the returned map.
func (d *Directory) OrganizationNames(ctx context.Context) (map[string]string, error) {
	names, _, err := d.cache.GetOrLoad(ctx, directoryKey, d.source.OrganizationNames)
	return names, err
}

// Invalidate forces the next lookup to reload.
func (d *Directory) Invalidate(ctx context.Context) { d.cache.Invalidate(ctx) }
