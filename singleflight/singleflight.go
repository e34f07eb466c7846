// Package singleflight suppresses duplicate concurrent calls for the
// same key.
package singleflight

import "sync"

// call is an in-flight or completed request.
type call struct {
	wg  sync.WaitGroup
	val interface{}
	err error
}

// Group deduplicates calls by key.
type Group struct {
	calls sync.Map // key -> *call
}

// Do runs fn once per key at a time. Concurrent callers for the same
// key wait for the in-flight call and share its result.
func (g *Group) Do(key string, fn func() (interface{}, error)) (interface{}, error) {
	if v, ok := g.calls.Load(key); ok {
		c := v.(*call)
		c.wg.Wait()
		return c.val, c.err
	}

	c := &call{}
	c.wg.Add(1)
	if v, loaded := g.calls.LoadOrStore(key, c); loaded {
		// Lost the race to another caller; wait for its result.
		existing := v.(*call)
		existing.wg.Wait()
		return existing.val, existing.err
	}

	c.val, c.err = fn()
	c.wg.Done()

	// Drop the finished call so later misses trigger a fresh load.
	g.calls.Delete(key)

	return c.val, c.err
}
