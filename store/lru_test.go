package store

import (
	"testing"
	"time"
)

type fakeValue struct {
	data string
}

func (f fakeValue) Len() int {
	return len(f.data)
}

func newTestCache(maxBytes int64, onEvicted func(string, Value)) *lruCache {
	return newLRUCache(Options{
		MaxBytes:        maxBytes,
		CleanupInterval: time.Minute,
		OnEvicted:       onEvicted,
	})
}

func TestLRUCache_SetAndGet(t *testing.T) {
	cache := newTestCache(100, nil)
	defer cache.Close()

	if err := cache.Set("test_key", fakeValue{data: "test_value"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, ok := cache.Get("test_key")
	if !ok {
		t.Fatal("Get failed: key not found")
	}
	fv, ok := value.(fakeValue)
	if !ok {
		t.Fatal("Get failed: wrong type")
	}
	if fv.data != "test_value" {
		t.Errorf("Expected 'test_value', got '%s'", fv.data)
	}
}

func TestLRUCache_Delete(t *testing.T) {
	cache := newTestCache(100, nil)
	defer cache.Close()

	cache.Set("delete_test", fakeValue{data: "delete_value"})
	if !cache.Delete("delete_test") {
		t.Fatal("Delete returned false for existing key")
	}
	if _, ok := cache.Get("delete_test"); ok {
		t.Fatal("key still present after Delete")
	}
	if cache.Delete("delete_test") {
		t.Fatal("Delete returned true for missing key")
	}
}

func TestLRUCache_EvictionOrder(t *testing.T) {
	var evicted []string
	cache := newTestCache(16, func(key string, value Value) {
		evicted = append(evicted, key)
	})
	defer cache.Close()

	// Each entry costs len(key)+len(value) = 4 bytes, so the fifth
	// insert pushes the oldest one out.
	cache.Set("k1", fakeValue{data: "v1"})
	cache.Set("k2", fakeValue{data: "v2"})
	cache.Set("k3", fakeValue{data: "v3"})
	cache.Set("k4", fakeValue{data: "v4"})

	// Touch k1 so k2 becomes the eviction candidate.
	if _, ok := cache.Get("k1"); !ok {
		t.Fatal("k1 missing before eviction")
	}

	cache.Set("k5", fakeValue{data: "v5"})

	if len(evicted) != 1 || evicted[0] != "k2" {
		t.Fatalf("evicted = %v, want [k2]", evicted)
	}
	if _, ok := cache.Get("k1"); !ok {
		t.Fatal("recently used k1 was evicted")
	}
}

func TestLRUCache_ReplaceSurrendersOldValue(t *testing.T) {
	var surrendered []Value
	cache := newTestCache(100, func(key string, value Value) {
		surrendered = append(surrendered, value)
	})
	defer cache.Close()

	cache.Set("key", fakeValue{data: "old"})
	cache.Set("key", fakeValue{data: "new"})

	if len(surrendered) != 1 {
		t.Fatalf("surrendered %d values, want 1", len(surrendered))
	}
	if fv := surrendered[0].(fakeValue); fv.data != "old" {
		t.Fatalf("surrendered %q, want the replaced value", fv.data)
	}

	value, ok := cache.Get("key")
	if !ok || value.(fakeValue).data != "new" {
		t.Fatal("replacement not stored")
	}
}

func TestLRUCache_ClearSurrendersAll(t *testing.T) {
	var count int
	cache := newTestCache(100, func(key string, value Value) {
		count++
	})
	defer cache.Close()

	cache.Set("k1", fakeValue{data: "v1"})
	cache.Set("k2", fakeValue{data: "v2"})
	cache.Clear()

	if count != 2 {
		t.Fatalf("Clear surrendered %d values, want 2", count)
	}
	if cache.Len() != 0 {
		t.Fatalf("Len = %d after Clear", cache.Len())
	}
	if cache.UsedBytes() != 0 {
		t.Fatalf("UsedBytes = %d after Clear", cache.UsedBytes())
	}
}

func TestLRUCache_Expiration(t *testing.T) {
	cache := newTestCache(100, nil)
	defer cache.Close()

	cache.SetWithExpiration("exp_key", fakeValue{data: "exp_value"}, 30*time.Millisecond)

	if _, ok := cache.Get("exp_key"); !ok {
		t.Fatal("value missing right after SetWithExpiration")
	}

	time.Sleep(60 * time.Millisecond)

	if _, ok := cache.Get("exp_key"); ok {
		t.Fatal("expired value still retrievable")
	}
}

func TestLRUCache_SetMaxBytes(t *testing.T) {
	var evicted int
	cache := newTestCache(100, func(key string, value Value) {
		evicted++
	})
	defer cache.Close()

	cache.Set("k1", fakeValue{data: "v1"})
	cache.Set("k2", fakeValue{data: "v2"})

	cache.SetMaxBytes(4)
	if evicted == 0 {
		t.Fatal("shrinking the budget evicted nothing")
	}
}

func TestLRUCache_SetNilDeletes(t *testing.T) {
	cache := newTestCache(100, nil)
	defer cache.Close()

	cache.Set("key", fakeValue{data: "value"})
	cache.Set("key", nil)

	if _, ok := cache.Get("key"); ok {
		t.Fatal("nil Set did not delete the key")
	}
}
