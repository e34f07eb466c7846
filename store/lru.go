package store

import (
	"container/list"
	"sync"
	"time"
)

// lruCache is a size-bounded LRU with optional per-key TTLs. The list
// front is the oldest entry; lookups move entries to the back.
type lruCache struct {
	mu              sync.Mutex
	list            *list.List
	items           map[string]*list.Element
	maxBytes        int64
	usedBytes       int64
	onEvicted       func(key string, value Value)
	expires         map[string]time.Time
	cleanupInterval time.Duration
	cleanupTicker   *time.Ticker
	closeCh         chan struct{}
	closeOnce       sync.Once
}

type lruEntry struct {
	key   string
	value Value
}

// newLRUCache builds the cache and starts the expiry cleanup loop.
func newLRUCache(options Options) *lruCache {
	cleanupInterval := options.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	c := &lruCache{
		list:            list.New(),
		items:           make(map[string]*list.Element),
		maxBytes:        options.MaxBytes,
		onEvicted:       options.OnEvicted,
		expires:         make(map[string]time.Time),
		cleanupInterval: cleanupInterval,
		closeCh:         make(chan struct{}),
	}
	c.cleanupTicker = time.NewTicker(cleanupInterval)
	go c.cleanupLoop()
	return c
}

// Get returns the value and refreshes its LRU position. Expired keys
// are dropped on access.
func (c *lruCache) Get(key string) (Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if expTime, hasExp := c.expires[key]; hasExp && expTime.Before(time.Now()) {
		c.removeElement(elem)
		return nil, false
	}
	c.list.MoveToBack(elem)
	return elem.Value.(*lruEntry).value, true
}

func (c *lruCache) Set(key string, value Value) error {
	return c.SetWithExpiration(key, value, 0)
}

// SetWithExpiration stores a value and an optional TTL. A replaced
// value is surrendered to onEvicted so its resources can be released.
func (c *lruCache) SetWithExpiration(key string, value Value, expiration time.Duration) error {
	if value == nil {
		c.Delete(key)
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiration > 0 {
		c.expires[key] = time.Now().Add(expiration)
	} else {
		delete(c.expires, key)
	}

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry)
		old := entry.value
		c.usedBytes += int64(value.Len()) - int64(old.Len())
		entry.value = value
		c.list.MoveToBack(elem)
		if c.onEvicted != nil {
			c.onEvicted(key, old)
		}
	} else {
		elem := c.list.PushBack(&lruEntry{key: key, value: value})
		c.items[key] = elem
		c.usedBytes += int64(value.Len() + len(key))
	}

	c.evict()
	return nil
}

func (c *lruCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
		return true
	}
	return false
}

// Clear surrenders every entry to onEvicted and resets the cache.
func (c *lruCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onEvicted != nil {
		for _, elem := range c.items {
			entry := elem.Value.(*lruEntry)
			c.onEvicted(entry.key, entry.value)
		}
	}
	c.list.Init()
	c.items = make(map[string]*list.Element)
	c.expires = make(map[string]time.Time)
	c.usedBytes = 0
}

func (c *lruCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}

// UsedBytes reports the tracked key+value footprint.
func (c *lruCache) UsedBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedBytes
}

// SetMaxBytes adjusts the eviction budget and enforces it immediately.
func (c *lruCache) SetMaxBytes(maxBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxBytes = maxBytes
	if maxBytes > 0 {
		c.evict()
	}
}

// Close stops the cleanup goroutine and surrenders remaining values.
func (c *lruCache) Close() {
	c.closeOnce.Do(func() {
		c.cleanupTicker.Stop()
		close(c.closeCh)
	})
	c.Clear()
}

func (c *lruCache) cleanupLoop() {
	for {
		select {
		case <-c.cleanupTicker.C:
			c.mu.Lock()
			c.evict()
			c.mu.Unlock()
		case <-c.closeCh:
			return
		}
	}
}

// evict drops expired entries, then enforces the byte budget from the
// oldest end. Caller holds mu.
func (c *lruCache) evict() {
	now := time.Now()
	for key, expTime := range c.expires {
		if expTime.Before(now) {
			if elem, ok := c.items[key]; ok {
				c.removeElement(elem)
			}
		}
	}
	if c.maxBytes <= 0 {
		return
	}
	for c.usedBytes > c.maxBytes {
		elem := c.list.Front()
		if elem == nil {
			return
		}
		c.removeElement(elem)
	}
}

// removeElement unlinks an entry and surrenders it to onEvicted.
// Caller holds mu.
func (c *lruCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*lruEntry)
	delete(c.items, entry.key)
	delete(c.expires, entry.key)
	c.list.Remove(elem)
	c.usedBytes -= int64(entry.value.Len() + len(entry.key))
	if c.onEvicted != nil {
		c.onEvicted(entry.key, entry.value)
	}
}
