// Package policy caches the per-host NEL policy and per-(host,group)
// endpoint lists advertised by servers, and parses the NEL / Report-To
// response headers that populate them.
package policy

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// capacity is the bounded size of each cache; inserting beyond it evicts the
// entry with the nearest expiration to make room.
const capacity = 50

// cache is a capacity-bounded, per-entry TTL cache shared by the policy and
// endpoint-group caches. It layers bounded-size, nearest-expiration eviction
// on top of patrickmn/go-cache, which already gives lazy TTL expiry and a
// background janitor sweep.
//
// All public operations run under a single mutex, so two goroutines never
// race on the count-then-insert eviction check.
type cache[T any] struct {
	mu    sync.Mutex
	inner *gocache.Cache
}

func newCache[T any]() *cache[T] {
	return &cache[T]{inner: gocache.New(gocache.NoExpiration, time.Minute)}
}

// insert replaces any prior entry for key, evicting the entry with the
// nearest expiration first if the cache is at capacity and key is new.
func (c *cache[T]) insert(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, found := c.inner.Get(key); !found && c.inner.ItemCount() >= capacity {
		c.evictNearestExpirationLocked()
	}
	c.inner.Set(key, value, ttl)
}

// remove deletes any entry for key.
func (c *cache[T]) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Delete(key)
}

// get returns a copy of the cached value, or false if absent or expired.
// The copy is shallow: for a slice T it shares the cached backing array, so
// callers that hand the result out copy it themselves (see Endpoints.Get). A panic inside the lookup (none expected in steady state, but
// guarded against the way a poisoned mutex would be treated upstream) is
// swallowed and reported as a cache miss rather than propagated.
func (c *cache[T]) get(key string) (value T, ok bool) {
	defer func() {
		if recover() != nil {
			var zero T
			value, ok = zero, false
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	raw, found := c.inner.Get(key)
	if !found {
		return value, false
	}
	return raw.(T), true
}

// evictNearestExpirationLocked removes the item with the soonest expiration
// time. Callers must hold c.mu.
func (c *cache[T]) evictNearestExpirationLocked() {
	var (
		victim  string
		soonest int64
		haveAny bool
	)
	for key, item := range c.inner.Items() {
		if item.Expiration == 0 {
			continue // Never expires: not a nearest-expiration candidate.
		}
		if !haveAny || item.Expiration < soonest {
			victim, soonest, haveAny = key, item.Expiration, true
		}
	}
	if haveAny {
		c.inner.Delete(victim)
		return
	}
	// All entries are eternal (shouldn't happen given insert always passes a
	// positive TTL): fall back to dropping an arbitrary entry to honor the
	// capacity bound.
	for key := range c.inner.Items() {
		c.inner.Delete(key)
		return
	}
}
