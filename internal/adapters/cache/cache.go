// Package cache provides TTL caches for computed dashboard responses and
// organization display names.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ammario/tlru"
	"github.com/okian/usagedash/pkg/logger"
	"github.com/okian/usagedash/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Cache is a size and TTL bounded cache whose misses are loaded at most once
// per key concurrently.
type Cache[V any] struct {
	name        string
	ttl         time.Duration
	size        int
	loadTimeout time.Duration
	logger      logger.Logger

	mu    sync.RWMutex
	store *tlru.Cache[string, V]
	group singleflight.Group
}

// New creates a cache reported under name in metrics. A zero size or ttl
// disables storage; concurrent loads are still collapsed.
func New[V any](name string, opts ...Option) *Cache[V] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := &Cache[V]{
		name:        name,
		ttl:         o.ttl,
		size:        o.size,
		loadTimeout: o.loadTimeout,
		logger:      o.logger.With(logger.String("cache", name)),
	}
	c.store = c.newStore()
	return c
}

func (c *Cache[V]) enabled() bool { return c.size > 0 && c.ttl > 0 }

func (c *Cache[V]) newStore() *tlru.Cache[string, V] {
	if !c.enabled() {
		return nil
	}
	return tlru.New[string](tlru.ConstantCost[V], c.size)
}

func (c *Cache[V]) current() *tlru.Cache[string, V] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	s := c.current()
	if s == nil {
		return zero, false
	}
	v, _, ok := s.Get(key)
	return v, ok
}

// GetOrLoad returns the cached value for key or calls load once for all
// concurrent callers of the same key. Failed loads are not cached. The
// boolean reports a cache hit.
//
// The shared load keeps ctx values but not its cancellation and is bounded
// by the load timeout instead; a caller whose ctx ends stops waiting with
// ctx.Err() while the others still receive the result.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		metrics.RecordCacheHit(c.name)
		return v, true, nil
	}
	metrics.RecordCacheMiss(c.name)

	// a load racing Invalidate fills the discarded store
	s := c.current()
	ch := c.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		v, err := load(lctx)
		if err != nil {
			return v, err
		}
		if s != nil {
			s.Set(key, v, c.ttl)
		}
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.logger.Debug(ctx, "joined in-flight load", logger.String("key", key))
		}
		v, _ := res.Val.(V)
		return v, false, res.Err
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	}
}

// Invalidate drops every entry.
func (c *Cache[V]) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.store = c.newStore()
	c.mu.Unlock()
	c.logger.Info(ctx, "cache invalidated")
}
