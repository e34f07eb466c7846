package singleflight

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoDedupesConcurrentCalls(t *testing.T) {
	var g Group
	var calls int64

	const workers = 10
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			v, err := g.Do("key", func() (interface{}, error) {
				atomic.AddInt64(&calls, 1)
				time.Sleep(50 * time.Millisecond)
				return "result", nil
			})
			if err != nil {
				t.Errorf("Do failed: %v", err)
				return
			}
			if v.(string) != "result" {
				t.Errorf("unexpected value: %v", v)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Fatalf("fn ran %d times, want 1", n)
	}
}

func TestDoPropagatesError(t *testing.T) {
	var g Group
	wantErr := errors.New("load failed")

	_, err := g.Do("key", func() (interface{}, error) {
		return nil, wantErr
	})
	if err != wantErr {
		t.Fatalf("Do error = %v, want %v", err, wantErr)
	}
}

func TestDoRunsAgainAfterCompletion(t *testing.T) {
	var g Group
	var calls int64

	fn := func() (interface{}, error) {
		return atomic.AddInt64(&calls, 1), nil
	}

	if _, err := g.Do("key", fn); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if _, err := g.Do("key", fn); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if n := atomic.LoadInt64(&calls); n != 2 {
		t.Fatalf("fn ran %d times, want 2 across separate rounds", n)
	}
}
