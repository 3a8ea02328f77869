package histogram

import (
	"math"
	"time"
)

// Snapshot is a caller-owned, point-in-time copy of one histogram.
// Index BinCount of Counts/TimesMs is the overflow bin. DatabaseID is
// zero for the global histogram.
type Snapshot struct {
	Kind       Kind
	BinCount   int
	BinWidthMs int
	DatabaseID uint32
	LastReset  time.Time

	TotalCount  int64
	TotalTimeMs float64
	Counts      []int64
	TimesMs     []float64
}

// LowerBound returns the inclusive lower duration bound of a bin in
// milliseconds.
func (s *Snapshot) LowerBound(bin int) int64 {
	if s.Kind == KindLog {
		if bin == 0 {
			return 0
		}

		return int64(math.Pow(2, float64(bin-1))) * int64(s.BinWidthMs)
	}

	return int64(bin) * int64(s.BinWidthMs)
}

// UpperBound returns the exclusive upper duration bound of a bin in
// milliseconds. The overflow bin is unbounded, reported as ok=false.
func (s *Snapshot) UpperBound(bin int) (int64, bool) {
	if bin >= s.BinCount {
		return 0, false
	}

	if s.Kind == KindLog {
		return int64(math.Pow(2, float64(bin))) * int64(s.BinWidthMs), true
	}

	return int64(bin+1) * int64(s.BinWidthMs), true
}

// CountPct returns a bin's share of the total query count, in percent.
func (s *Snapshot) CountPct(bin int) float64 {
	if s.TotalCount == 0 {
		return 0
	}

	return 100 * float64(s.Counts[bin]) / float64(s.TotalCount)
}

// TimePct returns a bin's share of the total query time, in percent.
func (s *Snapshot) TimePct(bin int) float64 {
	if s.TotalTimeMs == 0 {
		return 0
	}

	return 100 * s.TimesMs[bin] / s.TotalTimeMs
}

// SnapshotGlobal copies the global histogram. With scale set the bins
// are rescaled by 100/sample_pct to compensate for sampling.
func (s *Segment) SnapshotGlobal(scale bool) (Snapshot, error) {
	if s == nil {
		return Snapshot{}, ErrNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshotLocked(0, 0, scale), nil
}

// SnapshotDatabase copies one database's histogram.
func (s *Segment) SnapshotDatabase(db uint32, scale bool) (Snapshot, error) {
	if s == nil {
		return Snapshot{}, ErrNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.lookupLocked(db)
	if idx == 0 {
		return Snapshot{}, ErrDatabaseNotFound
	}

	return s.snapshotLocked(idx, db, scale), nil
}

// SnapshotAll copies the global histogram followed by every tracked
// database's histogram, in registration order.
func (s *Segment) SnapshotAll(scale bool) ([]Snapshot, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Snapshot, 0, len(s.entries)+1)
	out = append(out, s.snapshotLocked(0, 0, scale))

	for _, e := range s.entries {
		out = append(out, s.snapshotLocked(e.bucket, e.db, scale))
	}

	return out, nil
}

// snapshotLocked copies one bucket under the segment lock. The copy is
// point-in-time per bucket only: each bucket's own lock is held briefly
// while its arrays are copied.
func (s *Segment) snapshotLocked(idx int, db uint32, scale bool) Snapshot {
	b := s.buckets[idx]
	counts, times := b.copyBins(s.binCount + 1)

	if scale && s.samplePct < 100 {
		coeff := 100 / float64(s.samplePct)
		for i := range counts {
			counts[i] = int64(math.Round(float64(counts[i]) * coeff))
			times[i] *= coeff
		}
	}

	snap := Snapshot{
		Kind:       s.kind,
		BinCount:   s.binCount,
		BinWidthMs: s.binWidthMs,
		DatabaseID: db,
		LastReset:  b.resetTime(),
		Counts:     counts,
		TimesMs:    times,
	}

	for i := range counts {
		snap.TotalCount += counts[i]
		snap.TotalTimeMs += times[i]
	}

	return snap
}
