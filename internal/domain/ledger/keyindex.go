package ledger

import (
	"strings"

	"github.com/okian/usagedash/internal/domain/model"
	"github.com/samber/lo"
)

const (
	unregisteredPrefix = "unregistered-"
	minMutualPrefix    = 8
)

// prefixLengths are tried in order after an exact miss.
var prefixLengths = []int{32, 20, 12, 8} //nolint:gochecknoglobals // lookup order

// KeyIndex maps raw key identifiers to organizations. Registries may store
// full keys or key prefixes of any length, so lookups tolerate truncation on
// either side. It is built once per reconciliation and is read-only
// afterwards.
type KeyIndex struct {
	current map[string]model.KeyMapping
	legacy  map[string]model.KeyMapping
	ordered []indexedKey // current registry first
	byOrg   map[string][]string
}

type indexedKey struct {
	id      string
	mapping model.KeyMapping
}

// NewKeyIndex builds an index. Entries from current take precedence over
// legacy at every lookup stage. names maps org ids to display names.
func NewKeyIndex(current, legacy []model.RegistryEntry, names map[string]string) *KeyIndex {
	ix := &KeyIndex{
		current: make(map[string]model.KeyMapping, len(current)),
		legacy:  make(map[string]model.KeyMapping, len(legacy)),
		byOrg:   make(map[string][]string),
	}

	add := func(dst map[string]model.KeyMapping, src model.RegistrySource, entries []model.RegistryEntry) {
		for _, e := range entries {
			if e.KeyID == "" || e.OrgID == "" {
				continue
			}
			if _, dup := dst[e.KeyID]; dup {
				continue
			}
			m := model.KeyMapping{
				OrgID:       e.OrgID,
				DisplayName: displayName(names, e.OrgID),
				KeyLabel:    e.KeyLabel,
				Source:      src,
				Registered:  true,
			}
			dst[e.KeyID] = m
			ix.ordered = append(ix.ordered, indexedKey{id: e.KeyID, mapping: m})
		}
	}
	add(ix.current, model.RegistryCurrent, current)
	add(ix.legacy, model.RegistryLegacy, legacy)

	for _, k := range ix.ordered {
		if m, ok := ix.exact(k.id); ok && m.Source == k.mapping.Source {
			ix.byOrg[m.OrgID] = append(ix.byOrg[m.OrgID], k.id)
		}
	}
	return ix
}

func displayName(names map[string]string, orgID string) string {
	if n := names[orgID]; n != "" {
		return n
	}
	return orgID
}

// Size is the number of registry entries indexed across both registries.
func (ix *KeyIndex) Size() int { return len(ix.ordered) }

func (ix *KeyIndex) exact(raw string) (model.KeyMapping, bool) {
	if m, ok := ix.current[raw]; ok {
		return m, true
	}
	m, ok := ix.legacy[raw]
	return m, ok
}

// Lookup resolves raw: exact match, then the raw id truncated to 32, 20, 12
// and 8 characters matched against stored identifiers, then the stored
// identifier sharing the longest common prefix of at least 8 characters.
// Anything else maps to a synthetic unregistered org. The current registry
// wins over the legacy one at every stage.
func (ix *KeyIndex) Lookup(raw string) model.KeyMapping {
	if m, ok := ix.exact(raw); ok {
		return m
	}
	for _, n := range prefixLengths {
		if len(raw) <= n {
			continue
		}
		if m, ok := ix.exact(raw[:n]); ok {
			return m
		}
	}
	if m, ok := ix.mutualPrefix(raw); ok {
		return m
	}
	return Unregistered(raw)
}

func (ix *KeyIndex) mutualPrefix(raw string) (model.KeyMapping, bool) {
	best, bestLen := model.KeyMapping{}, 0
	for _, k := range ix.ordered {
		n := commonPrefixLen(raw, k.id)
		if n >= minMutualPrefix && n > bestLen {
			best, bestLen = k.mapping, n
		}
	}
	return best, bestLen > 0
}

func commonPrefixLen(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// Unregistered returns the synthetic mapping for a key no registry knows.
func Unregistered(raw string) model.KeyMapping {
	short := raw
	if len(short) > minMutualPrefix {
		short = short[:minMutualPrefix]
	}
	if short == "" {
		short = "none"
	}
	return model.KeyMapping{
		OrgID:       unregisteredPrefix + short,
		DisplayName: "Unregistered key " + short,
		Source:      model.RegistryNone,
	}
}

// IsUnregistered reports whether orgID is a synthetic unregistered id.
func IsUnregistered(orgID string) bool {
	return strings.HasPrefix(orgID, unregisteredPrefix)
}

// QueryFor turns an organization filter into a row query over w. The second
// result is false when no raw key can resolve to the organization.
//
// Lookup resolves by prefix, so a registered organization selects every key
// sharing the first 8 characters of one of its stored keys, plus its shorter
// keys verbatim. Stored keys of other organizations inside those prefixes are
// excluded, and when any exist the query is marked Shared.
func (ix *KeyIndex) QueryFor(w model.Window, orgFilter string) (Query, bool) {
	q := Query{Window: w}
	if orgFilter == "" {
		return q, true
	}
	if IsUnregistered(orgFilter) {
		return ix.unregisteredQuery(q, strings.TrimPrefix(orgFilter, unregisteredPrefix))
	}

	keys := ix.byOrg[orgFilter]
	if len(keys) == 0 {
		return q, false
	}
	for _, id := range keys {
		if len(id) < minMutualPrefix {
			q.KeyIDs = append(q.KeyIDs, id)
			continue
		}
		q.KeyPrefixes = append(q.KeyPrefixes, id[:minMutualPrefix])
	}
	q.KeyPrefixes = lo.Uniq(q.KeyPrefixes)

	for _, k := range ix.ordered {
		if len(k.id) < minMutualPrefix || !lo.Contains(q.KeyPrefixes, k.id[:minMutualPrefix]) {
			continue
		}
		if owner, _ := ix.exact(k.id); owner.OrgID != orgFilter {
			q.ExcludeKeyIDs = append(q.ExcludeKeyIDs, k.id)
			q.Shared = true
		}
	}
	q.ExcludeKeyIDs = lo.Uniq(q.ExcludeKeyIDs)
	return q, true
}

// unregisteredQuery selects the raw keys Unregistered maps to p. A short p
// is a whole raw key; an 8 character p is the prefix of every such key and
// is empty when any stored key shares it.
func (ix *KeyIndex) unregisteredQuery(q Query, p string) (Query, bool) {
	switch {
	case p == "" || p == "none" || len(p) > minMutualPrefix:
		return q, false
	case len(p) < minMutualPrefix:
		if _, ok := ix.exact(p); ok {
			return q, false
		}
		q.KeyIDs = []string{p}
		return q, true
	}
	for _, k := range ix.ordered {
		if strings.HasPrefix(k.id, p) {
			return q, false
		}
	}
	q.KeyPrefixes = []string{p}
	return q, true
}
