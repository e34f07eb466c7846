// Package store provides the cache backend used by Cache.
package store

import "time"

// Value reports its memory footprint for eviction accounting.
type Value interface {
	Len() int
}

// Store is the cache backend interface.
//
// A store owns the values handed to it: every value it drops (evicted,
// replaced, deleted or cleared) is surrendered to the OnEvicted hook
// exactly once, so callers can release value-owned resources there.
type Store interface {
	Get(key string) (Value, bool)

	// Set stores a value without expiration.
	Set(key string, value Value) error

	// SetWithExpiration stores a value with a TTL; zero means no expiry.
	SetWithExpiration(key string, value Value, expiration time.Duration) error

	Delete(key string) bool

	Clear()

	Len() int

	// Close stops background work and surrenders all remaining values.
	Close()
}

// Options configures a store backend.
type Options struct {
	MaxBytes        int64 // eviction budget, 0 disables size-based eviction
	CleanupInterval time.Duration
	OnEvicted       func(key string, value Value)
}

// NewOptions returns options with sane defaults.
func NewOptions() Options {
	return Options{
		MaxBytes:        8 * 1024 * 1024,
		CleanupInterval: time.Minute,
	}
}

// NewStore builds the LRU backend.
func NewStore(options Options) Store {
	return newLRUCache(options)
}
