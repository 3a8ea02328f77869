package histogram

import (
	"sync"
	"time"
)

// bucket holds the mutable state of one histogram: per-bin query counts
// and duration sums, plus the time of its last reset. The arrays are
// allocated at the fixed BinLimit+1 size so a dynamic segment can grow
// the bin count without reallocating; only the first binCount+1 entries
// are ever read.
//
// The bucket's own lock guards the arrays and lastReset. It is always
// acquired after the segment lock and never held across more than a
// handful of updates.
type bucket struct {
	mu        sync.RWMutex
	lastReset time.Time

	counts  [BinLimit + 1]int64
	timesMs [BinLimit + 1]float64
}

// observe records one query in the given bin.
func (b *bucket) observe(bin int, durationMs float64) {
	b.mu.Lock()
	b.counts[bin]++
	b.timesMs[bin] += durationMs
	b.mu.Unlock()
}

// reset zeroes the bucket and stamps the reset time.
func (b *bucket) reset(now time.Time) {
	b.mu.Lock()
	b.zeroLocked()
	b.lastReset = now
	b.mu.Unlock()
}

func (b *bucket) zeroLocked() {
	for i := range b.counts {
		b.counts[i] = 0
		b.timesMs[i] = 0
	}
}

// copyBins returns copies of the first n bins.
func (b *bucket) copyBins(n int) ([]int64, []float64) {
	counts := make([]int64, n)
	times := make([]float64, n)

	b.mu.RLock()
	copy(counts, b.counts[:n])
	copy(times, b.timesMs[:n])
	b.mu.RUnlock()

	return counts, times
}

// loadBins overwrites the first len(counts) bins, zeroing the rest.
func (b *bucket) loadBins(counts []int64, timesMs []float64, lastReset time.Time) {
	b.mu.Lock()
	b.zeroLocked()
	copy(b.counts[:], counts)
	copy(b.timesMs[:], timesMs)
	b.lastReset = lastReset
	b.mu.Unlock()
}

func (b *bucket) resetTime() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.lastReset
}

// copyFrom replaces this bucket's contents with src's. Both bucket
// locks are taken; callers must ensure a consistent lock order.
func (b *bucket) copyFrom(src *bucket) {
	b.mu.Lock()
	src.mu.RLock()

	b.counts = src.counts
	b.timesMs = src.timesMs
	b.lastReset = src.lastReset

	src.mu.RUnlock()
	b.mu.Unlock()
}
