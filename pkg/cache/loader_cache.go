// Package cache provides a generic loader cache combining LRU storage with
// singleflight to coalesce concurrent loads for the same key.
package cache

import (
	"context"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// LoaderCache is a generic cache that loads values on miss via a callback and
// coalesces concurrent loads for the same key using singleflight. Without
// singleflight, a burst of N concurrent misses for the same key would trigger
// N loads; with it, one load runs and the rest wait for and share that result.
// Keys are converted to strings internally via keyToString for LRU and
// singleflight. Hit and miss counts are tracked so callers can expose cache
// effectiveness in stats without wrapping every call site.
type LoaderCache[K comparable, V any] struct {
	lru         *lru.Cache[string, V]
	group       singleflight.Group
	keyToString func(K) string
	hits        atomic.Uint64
	misses      atomic.Uint64
}

// NewLoaderCache creates a loader cache with the given max entries and key serializer.
func NewLoaderCache[K comparable, V any](maxEntries int, keyToString func(K) string) (*LoaderCache[K, V], error) {
	lruCache, err := lru.New[string, V](maxEntries)
	if err != nil {
		return nil, err
	}

	return &LoaderCache[K, V]{
		lru:         lruCache,
		keyToString: keyToString,
	}, nil
}

// Get returns the value for key, loading it via load on cache miss.
// On miss, Do(key, fn) ensures only one goroutine runs load() for that key;
// others block and receive the same result (cache stampede prevention).
func (c *LoaderCache[K, V]) Get(ctx context.Context, key K, load func(context.Context, K) (V, error)) (V, error) {
	v, _, err := c.GetWithStats(ctx, key, load)

	return v, err
}

// GetWithStats is like Get but also returns whether the value came from cache
// (hit) or was loaded (miss). Failed loads count as neither.
func (c *LoaderCache[K, V]) GetWithStats(ctx context.Context, key K, load func(context.Context, K) (V, error)) (V, bool, error) {
	keyStr := c.keyToString(key)
	if v, ok := c.lru.Get(keyStr); ok {
		c.hits.Add(1)

		return v, true, nil
	}

	val, err, _ := c.group.Do(keyStr, func() (any, error) {
		loaded, loadErr := load(ctx, key)
		if loadErr != nil {
			return zero[V](), loadErr
		}

		c.lru.Add(keyStr, loaded)

		return loaded, nil
	})
	if err != nil {
		return zero[V](), false, err
	}

	c.misses.Add(1)

	return val.(V), false, nil
}

func zero[V any]() (z V) { return z }

// Peek returns the cached value for key without loading on miss. A found
// value counts as a hit and a missing one as a miss; callers that Peek a
// whole batch and then load the misses in one round trip keep the stats
// consistent with Get.
func (c *LoaderCache[K, V]) Peek(key K) (V, bool) {
	v, ok := c.lru.Get(c.keyToString(key))
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}

	return v, ok
}

// Add stores a value for key directly (e.g. after a batched load).
func (c *LoaderCache[K, V]) Add(key K, value V) {
	c.lru.Add(c.keyToString(key), value)
}

// Stats returns the cumulative hit and miss counts.
func (c *LoaderCache[K, V]) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Invalidate removes the entry for key.
func (c *LoaderCache[K, V]) Invalidate(key K) {
	c.lru.Remove(c.keyToString(key))
}

// InvalidateAll removes all entries.
func (c *LoaderCache[K, V]) InvalidateAll() {
	c.lru.Purge()
}

// Len returns the number of entries in the cache.
func (c *LoaderCache[K, V]) Len() int {
	return c.lru.Len()
}
