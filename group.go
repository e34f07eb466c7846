package compactcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"compactcache/compact"
	"compactcache/singleflight"

	"github.com/sirupsen/logrus"
)

var (
	groupsMu sync.RWMutex
	groups   = make(map[string]*Group)
)

// ErrKeyRequired is returned for empty keys.
var ErrKeyRequired = errors.New("key is required")

// ErrValueRequired is returned for empty values.
var ErrValueRequired = errors.New("value is required")

// ErrGroupClosed is returned after a group has been closed.
var ErrGroupClosed = errors.New("group closed")

// Getter loads the value for a key on a cache miss.
type Getter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// GetterFunc adapts a function to the Getter interface.
type GetterFunc func(ctx context.Context, key string) ([]byte, error)

func (f GetterFunc) Get(ctx context.Context, key string) ([]byte, error) { return f(ctx, key) }

// Group is a cache namespace. Loaded and stored data is copied once and
// adopted as owned storage, so the cache keeps every release obligation
// and callers only ever see independent clones.
type Group struct {
	name       string
	getter     Getter
	mainCache  *Cache
	loader     *singleflight.Group
	expiration time.Duration // 0 means entries never expire
	closed     int32
	stats      groupStats
}

type groupStats struct {
	loads        int64
	localHits    int64
	localMisses  int64
	loaderHits   int64
	loaderErrors int64
	loadDuration int64
}

// GroupOption configures a Group.
type GroupOption func(*Group)

// WithExpiration sets the TTL applied to cached entries.
func WithExpiration(expiration time.Duration) GroupOption {
	return func(g *Group) {
		g.expiration = expiration
	}
}

// WithCacheOptions overrides the main cache configuration.
func WithCacheOptions(opts CacheOptions) GroupOption {
	return func(g *Group) {
		g.mainCache = NewCache(opts)
	}
}

// NewGroup creates and registers a named cache group.
func NewGroup(name string, cacheBytes int64, getter Getter, opts ...GroupOption) *Group {
	if getter == nil {
		panic("nil Getter")
	}
	cacheOpts := DefaultCacheOptions()
	cacheOpts.MaxBytes = cacheBytes
	g := &Group{
		name:      name,
		getter:    getter,
		mainCache: NewCache(cacheOpts),
		loader:    &singleflight.Group{},
	}

	for _, opt := range opts {
		opt(g)
	}

	groupsMu.Lock()
	defer groupsMu.Unlock()

	if _, dup := groups[name]; dup {
		panic("duplicate registration of group " + name)
	}

	groups[name] = g
	logrus.Infof("cache group %s created with cacheBytes= %d,expiration= %s", name, cacheBytes, g.expiration)
	return g
}

// GetGroup returns the group registered under name, or nil.
func GetGroup(name string) *Group {
	groupsMu.RLock()
	defer groupsMu.RUnlock()
	return groups[name]
}

// Get returns the value for key, loading it through the getter on a
// miss. The returned value is an independent clone owned by the caller;
// release it when done.
func (g *Group) Get(ctx context.Context, key string) (compact.Bytes, error) {
	if atomic.LoadInt32(&g.closed) == 1 {
		return compact.Bytes{}, ErrGroupClosed
	}
	if key == "" {
		return compact.Bytes{}, ErrKeyRequired
	}

	if v, ok := g.mainCache.Get(ctx, key); ok {
		atomic.AddInt64(&g.stats.localHits, 1)
		return v, nil
	}
	atomic.AddInt64(&g.stats.localMisses, 1)
	return g.load(ctx, key)
}

// Set stores a value under key. The bytes are copied once; value stays
// with the caller.
func (g *Group) Set(ctx context.Context, key string, value []byte) error {
	if atomic.LoadInt32(&g.closed) == 1 {
		return ErrGroupClosed
	}
	if key == "" {
		return ErrKeyRequired
	}
	if len(value) == 0 {
		return ErrValueRequired
	}

	bv, err := adoptCopy(value)
	if err != nil {
		return err
	}
	g.addToCache(key, bv)
	return nil
}

// Delete removes key from the cache.
func (g *Group) Delete(ctx context.Context, key string) error {
	if atomic.LoadInt32(&g.closed) == 1 {
		return ErrGroupClosed
	}
	if key == "" {
		return ErrKeyRequired
	}
	g.mainCache.Delete(key)
	return nil
}

// Clear drops every entry in the group.
func (g *Group) Clear() {
	if atomic.LoadInt32(&g.closed) == 1 {
		return
	}
	g.mainCache.Clear()
	logrus.Infof("cache group %s cleared", g.name)
}

// Close deregisters the group and releases its cache.
func (g *Group) Close() error {
	if !atomic.CompareAndSwapInt32(&g.closed, 0, 1) {
		return nil
	}

	if g.mainCache != nil {
		g.mainCache.Close()
	}

	groupsMu.Lock()
	defer groupsMu.Unlock()
	delete(groups, g.name)
	logrus.Infof("cache group %s closed", g.name)
	return nil
}

// load fetches the value through the singleflight loader so concurrent
// misses for one key trigger a single getter call.
func (g *Group) load(ctx context.Context, key string) (compact.Bytes, error) {
	startTime := time.Now()
	viewi, err := g.loader.Do(key, func() (interface{}, error) { return g.loadData(ctx, key) })

	atomic.AddInt64(&g.stats.loadDuration, time.Since(startTime).Nanoseconds())
	atomic.AddInt64(&g.stats.loads, 1)

	if err != nil {
		atomic.AddInt64(&g.stats.loaderErrors, 1)
		return compact.Bytes{}, err
	}

	// Every waiter shares one loaded value; each gets a private clone
	// and the cache adopts the loaded buffer itself.
	view := viewi.(compact.Bytes)
	return view.Clone(), nil
}

// loadData runs the getter and installs the result in the cache. Only
// one call per key runs at a time, guarded by the loader.
func (g *Group) loadData(ctx context.Context, key string) (interface{}, error) {
	bytes, err := g.getter.Get(ctx, key)
	if err != nil {
		return compact.Bytes{}, fmt.Errorf("getter failed: %v", err)
	}
	atomic.AddInt64(&g.stats.loaderHits, 1)

	bv, err := adoptCopy(bytes)
	if err != nil {
		return compact.Bytes{}, err
	}
	g.addToCache(key, bv)

	// The cache holds the release obligation for bv from here on. The
	// copy returned to waiters is only ever read and cloned, never
	// released.
	return bv, nil
}

// addToCache hands ownership of bv to the main cache.
func (g *Group) addToCache(key string, bv compact.Bytes) {
	if g.expiration > 0 {
		g.mainCache.AddWithExpiration(key, bv, time.Now().Add(g.expiration))
	} else {
		g.mainCache.Add(key, bv)
	}
}

// adoptCopy copies src into a fresh buffer and adopts it as owned
// storage, so the cache never references caller memory.
func adoptCopy(src []byte) (compact.Bytes, error) {
	buf := make([]byte, len(src))
	copy(buf, src)
	return compact.Own(buf)
}

// Stats reports group-level metrics.
func (g *Group) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"name":          g.name,
		"closed":        atomic.LoadInt32(&g.closed) == 1,
		"expiration":    g.expiration,
		"loads":         atomic.LoadInt64(&g.stats.loads),
		"local_hits":    atomic.LoadInt64(&g.stats.localHits),
		"local_misses":  atomic.LoadInt64(&g.stats.localMisses),
		"loader_hits":   atomic.LoadInt64(&g.stats.loaderHits),
		"loader_errors": atomic.LoadInt64(&g.stats.loaderErrors),
	}
	totalGets := atomic.LoadInt64(&g.stats.localHits) + atomic.LoadInt64(&g.stats.localMisses)
	if totalGets > 0 {
		stats["local_hit_rate"] = float64(atomic.LoadInt64(&g.stats.localHits)) / float64(totalGets)
	}

	totalLoads := atomic.LoadInt64(&g.stats.loaderHits) + atomic.LoadInt64(&g.stats.loaderErrors)
	if totalLoads > 0 {
		stats["loader_hit_rate"] = float64(atomic.LoadInt64(&g.stats.loaderHits)) / float64(totalLoads)
	}

	if g.mainCache != nil {
		for k, v := range g.mainCache.Stats() {
			stats["cache_"+k] = v
		}
	}
	return stats
}

// ListGroups returns the names of all registered groups.
func ListGroups() []string {
	groupsMu.RLock()
	defer groupsMu.RUnlock()
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	return names
}

// DestroyGroup closes and removes the named group.
func DestroyGroup(name string) bool {
	groupsMu.Lock()
	defer groupsMu.Unlock()

	if g, ok := groups[name]; ok {
		g.closeLocked()
		delete(groups, name)
		logrus.Infof("cache group %s destroyed", name)
		return true
	}
	return false
}

// DestroyAllGroups closes and removes every registered group.
func DestroyAllGroups() {
	groupsMu.Lock()
	defer groupsMu.Unlock()
	for name, g := range groups {
		g.closeLocked()
		delete(groups, name)
		logrus.Infof("cache group %s destroyed", name)
	}
}

// closeLocked closes the group without touching the registry; the
// caller holds groupsMu.
func (g *Group) closeLocked() {
	if !atomic.CompareAndSwapInt32(&g.closed, 0, 1) {
		return
	}
	if g.mainCache != nil {
		g.mainCache.Close()
	}
}
