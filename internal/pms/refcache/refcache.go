// Package refcache is a TTL cache for low-volatility PMS reference data:
// providers, locations, and operatories. Patient-identifiable records have no
// way in — the cache exposes typed views for reference entities only, so the
// privacy invariant is structural rather than a convention.
package refcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/novadent/pms-adapter/internal/pms"
)

// DefaultTTL is how long reference data stays fresh.
const DefaultTTL = 5 * time.Minute

// defaultSize bounds each entity cache; reference data for one office is
// small, this just caps pathological key growth.
const defaultSize = 256

// EntityKind names the cacheable reference entity types.
type EntityKind string

const (
	KindProviders   EntityKind = "providers"
	KindLocations   EntityKind = "locations"
	KindOperatories EntityKind = "operatories"
)

// Cache holds reference data for a single adapter instance. Concurrent
// callers missing the same key single-flight the refetch: one vendor call,
// shared result.
type Cache struct {
	providers   *section[pms.Provider]
	locations   *section[pms.Location]
	operatories *section[pms.Operatory]
}

// New creates an empty cache. A non-positive ttl takes DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		providers:   newSection[pms.Provider](ttl),
		locations:   newSection[pms.Location](ttl),
		operatories: newSection[pms.Operatory](ttl),
	}
}

// Providers returns cached providers, fetching through fn on miss.
func (c *Cache) Providers(ctx context.Context, key string, fn func(context.Context) ([]pms.Provider, error)) ([]pms.Provider, error) {
	return c.providers.get(ctx, key, fn)
}

// Locations returns cached locations, fetching through fn on miss.
func (c *Cache) Locations(ctx context.Context, key string, fn func(context.Context) ([]pms.Location, error)) ([]pms.Location, error) {
	return c.locations.get(ctx, key, fn)
}

// Operatories returns cached operatories, fetching through fn on miss.
func (c *Cache) Operatories(ctx context.Context, key string, fn func(context.Context) ([]pms.Operatory, error)) ([]pms.Operatory, error) {
	return c.operatories.get(ctx, key, fn)
}

// InvalidateEntity drops every entry of one entity kind, forcing the next
// read to refetch before the TTL expires. The canonical operations never
// mutate reference data, so nothing calls this on the request path; it is
// the hook for operator-driven refreshes after a practice reconfigures
// providers, locations, or operatories upstream.
func (c *Cache) InvalidateEntity(kind EntityKind) {
	switch kind {
	case KindProviders:
		c.providers.purge()
	case KindLocations:
		c.locations.purge()
	case KindOperatories:
		c.operatories.purge()
	}
}

// section is one typed TTL store with single-flight refetch.
type section[T any] struct {
	lru   *expirable.LRU[string, []T]
	group singleflight.Group
}

func newSection[T any](ttl time.Duration) *section[T] {
	return &section[T]{
		lru: expirable.NewLRU[string, []T](defaultSize, nil, ttl),
	}
}

func (s *section[T]) get(ctx context.Context, key string, fn func(context.Context) ([]T, error)) ([]T, error) {
	if cached, ok := s.lru.Get(key); ok {
		return cached, nil
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		// Re-check: a completed flight may have filled the entry while this
		// caller was queueing.
		if cached, ok := s.lru.Get(key); ok {
			return cached, nil
		}
		fetched, err := fn(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.lru.Add(key, fetched)
		return fetched, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]T), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *section[T]) purge() {
	s.lru.Purge()
}
