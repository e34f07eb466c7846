package compactcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"compactcache/compact"
	"compactcache/store"

	"github.com/sirupsen/logrus"
)

// Cache is a threadsafe wrapper around the store backend, holding
// compact.Bytes values.
//
// The cache holds the sole release obligation for every owned buffer
// stored in it: values coming back from Get are independent clones, and
// eviction, replacement, Clear and Close release stored owned storage
// through the store's surrender hook.
type Cache struct {
	mu          sync.RWMutex
	store       store.Store
	opts        CacheOptions
	hits        int64
	misses      int64
	initialized int32
	closed      int32
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	MaxBytes        int64
	CleanupInterval time.Duration
	OnEvicted       func(key string, value store.Value)
}

// DefaultCacheOptions returns the default configuration.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{
		MaxBytes:        8 * 1024 * 1024,
		CleanupInterval: time.Minute,
	}
}

// NewCache builds a cache; the backend is created lazily on first use.
func NewCache(opts CacheOptions) *Cache {
	return &Cache{
		opts: opts,
	}
}

// ensureInitialized lazily creates the underlying store on first use.
func (c *Cache) ensureInitialized() {
	if atomic.LoadInt32(&c.initialized) == 1 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized == 0 {
		userHook := c.opts.OnEvicted
		c.store = store.NewStore(store.Options{
			MaxBytes:        c.opts.MaxBytes,
			CleanupInterval: c.opts.CleanupInterval,
			OnEvicted: func(key string, value store.Value) {
				if userHook != nil {
					userHook(key, value)
				}
				// The store drops its last reference here, so the
				// release obligation for owned storage ends with us.
				if bv, ok := value.(compact.Bytes); ok {
					bv.Release()
				}
			},
		})
		atomic.StoreInt32(&c.initialized, 1)
		logrus.Infof("cache initialized with max bytes %d", c.opts.MaxBytes)
	}
}

// Add stores a value. The cache takes over the release obligation for
// owned values; the caller must not release value after handing it in.
func (c *Cache) Add(key string, value compact.Bytes) {
	if atomic.LoadInt32(&c.closed) == 1 {
		logrus.Warnf("Attempted to add to a closed cache: %s", key)
		value.Release()
		return
	}
	c.ensureInitialized()
	if err := c.store.Set(key, value); err != nil {
		logrus.Warnf("Failed to add key %s to cache: %v", key, err)
		value.Release()
	}
}

// AddWithExpiration stores a value with a TTL derived from
// expirationTime. Ownership transfers as with Add.
func (c *Cache) AddWithExpiration(key string, value compact.Bytes, expirationTime time.Time) {
	if atomic.LoadInt32(&c.closed) == 1 {
		logrus.Warnf("Attempted to add to a closed cache: %s", key)
		value.Release()
		return
	}
	c.ensureInitialized()
	expiration := time.Until(expirationTime)
	if expiration <= 0 {
		logrus.Warnf("Attempted to add key %s with expiration in the past: %v", key, expirationTime)
		value.Release()
		return
	}
	if err := c.store.SetWithExpiration(key, value, expiration); err != nil {
		logrus.Warnf("Failed to add key %s to cache: %v", key, err)
		value.Release()
	}
}

// Get returns an independent clone of the cached value, tracking
// hit/miss metrics. Owned clones belong to the caller and should be
// released when no longer needed.
func (c *Cache) Get(ctx context.Context, key string) (value compact.Bytes, ok bool) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return compact.Bytes{}, false
	}
	if atomic.LoadInt32(&c.initialized) == 0 {
		atomic.AddInt64(&c.misses, 1)
		return compact.Bytes{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	val, ok := c.store.Get(key)
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return compact.Bytes{}, false
	}
	bv, ok := val.(compact.Bytes)
	if !ok {
		logrus.Warnf("Failed to assert value for key %s to compact.Bytes", key)
		atomic.AddInt64(&c.misses, 1)
		return compact.Bytes{}, false
	}
	atomic.AddInt64(&c.hits, 1)
	return bv.Clone(), true
}

// Delete removes a key, releasing its storage via the surrender hook.
func (c *Cache) Delete(key string) bool {
	if atomic.LoadInt32(&c.closed) == 1 || atomic.LoadInt32(&c.initialized) == 0 {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Delete(key)
}

// Clear drops every entry, releasing stored owned storage.
func (c *Cache) Clear() {
	if atomic.LoadInt32(&c.closed) == 1 || atomic.LoadInt32(&c.initialized) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Clear()

	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if atomic.LoadInt32(&c.closed) == 1 || atomic.LoadInt32(&c.initialized) == 0 {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Len()
}

// Close releases the underlying store and freezes the cache.
func (c *Cache) Close() {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		c.store.Close()
		c.store = nil
	}

	atomic.StoreInt32(&c.initialized, 0)
	logrus.Infof("cache closed,hits:%d,misses:%d", atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses))
}

// Stats exposes cache-level metrics and size.
func (c *Cache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"initialized": atomic.LoadInt32(&c.initialized) == 1,
		"hits":        atomic.LoadInt64(&c.hits),
		"misses":      atomic.LoadInt64(&c.misses),
		"closed":      atomic.LoadInt32(&c.closed) == 1,
	}
	if atomic.LoadInt32(&c.initialized) == 1 {
		stats["size"] = c.Len()

		totalRequests := atomic.LoadInt64(&c.hits) + atomic.LoadInt64(&c.misses)
		if totalRequests > 0 {
			stats["hit_rate"] = float64(atomic.LoadInt64(&c.hits)) / float64(totalRequests)
		} else {
			stats["hit_rate"] = 0.0
		}
	}
	return stats
}
