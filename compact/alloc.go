package compact

import "sync/atomic"

// Owned buffers flow through the hooks below so the release obligation
// ledger stays exact: every adopt or clone must be matched by exactly
// one free. Go's collector reclaims the memory itself once the last
// reference is gone; freeing here severs this value's reference and
// updates the accounting.

var (
	adoptedCount  int64
	clonedCount   int64
	releasedCount int64
	liveCount     int64
)

// AllocStats is a snapshot of owned-buffer traffic.
type AllocStats struct {
	Adopted  int64 // buffers adopted as owned storage via Own or Set
	Cloned   int64 // fresh buffers allocated by Clone
	Released int64 // owned buffers released
	Live     int64 // owned buffers currently holding a release obligation
}

// Stats returns the current allocation counters.
func Stats() AllocStats {
	return AllocStats{
		Adopted:  atomic.LoadInt64(&adoptedCount),
		Cloned:   atomic.LoadInt64(&clonedCount),
		Released: atomic.LoadInt64(&releasedCount),
		Live:     atomic.LoadInt64(&liveCount),
	}
}

// adopt records an externally allocated buffer entering owned storage.
func adopt() {
	atomic.AddInt64(&adoptedCount, 1)
	atomic.AddInt64(&liveCount, 1)
}

// allocCopy allocates a length-exact buffer holding a copy of src.
func allocCopy(src []byte) []byte {
	dup := make([]byte, len(src))
	copy(dup, src)
	atomic.AddInt64(&clonedCount, 1)
	atomic.AddInt64(&liveCount, 1)
	return dup
}

// free retires an owned buffer's release obligation.
func free(b []byte) {
	_ = b
	atomic.AddInt64(&releasedCount, 1)
	atomic.AddInt64(&liveCount, -1)
}
