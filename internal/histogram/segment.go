package histogram

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// entry maps a tracked database to its bucket. Bucket 0 is reserved
// for the global histogram, so database buckets live at 1..MaxDatabases
// and the registry stays dense: the i-th entry always owns bucket i+1.
type entry struct {
	db     uint32
	bucket int
}

// Segment is the shared histogram store: one global histogram plus up
// to MaxDatabases per-database histograms, all using the same bin
// configuration. A single Segment is shared by every worker; workers
// keep their own IndexCache and pass it to Record.
//
// The segment lock guards membership (the registry) and configuration;
// bucket contents are guarded by per-bucket locks, which are only ever
// acquired while holding the segment lock. The hot recording path holds
// the segment lock shared; only new-database registration and
// reconfiguration take it exclusive.
type Segment struct {
	log logrus.FieldLogger

	// Fixed at creation.
	dynamic      bool
	maxDatabases int

	mu           sync.RWMutex
	kind         Kind
	binCount     int
	binWidthMs   int
	samplePct    int
	trackUtility bool
	version      uint64
	entries      []entry
	buckets      []*bucket
}

// New creates a zeroed segment from the given configuration. A bin
// count past the logarithmic limit is clamped with a warning rather
// than rejected.
func New(log logrus.FieldLogger, cfg Config) (*Segment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating histogram config: %w", err)
	}

	s := &Segment{
		log:          log.WithField("component", "histogram"),
		dynamic:      cfg.Dynamic,
		maxDatabases: cfg.MaxDatabases,
		kind:         cfg.Kind,
		binCount:     cfg.BinCount,
		binWidthMs:   cfg.BinWidthMs,
		samplePct:    cfg.SamplePct,
		trackUtility: cfg.TrackUtility,
		entries:      make([]entry, 0, cfg.MaxDatabases),
		buckets:      make([]*bucket, cfg.MaxDatabases+1),
	}

	s.binCount = s.clampBinCount(cfg.BinCount)

	now := time.Now()
	for i := range s.buckets {
		s.buckets[i] = &bucket{lastReset: now}
	}

	s.log.WithFields(logrus.Fields{
		"kind":          s.kind.String(),
		"bin_count":     s.binCount,
		"bin_width_ms":  s.binWidthMs,
		"sample_pct":    s.samplePct,
		"max_databases": s.maxDatabases,
		"dynamic":       s.dynamic,
	}).Info("Histogram segment initialized")

	return s, nil
}

// clampBinCount bounds a logarithmic bin count to what the current bin
// width can represent. Callers must hold the segment lock exclusively
// (or be inside New).
func (s *Segment) clampBinCount(n int) int {
	if s.kind != KindLog {
		return n
	}

	if limit := MaxBins(s.binWidthMs); n > limit {
		s.log.WithFields(logrus.Fields{
			"bin_count":    n,
			"bin_width_ms": s.binWidthMs,
			"limit":        limit,
		}).Warn("Bin count too high for logarithmic histogram, clamping")

		return limit
	}

	return n
}

// Enabled reports whether recording can do anything at all. A static
// segment with zero bins never records; a dynamic one always might,
// since the bin count can change at any moment.
func (s *Segment) Enabled() bool {
	if s == nil {
		return false
	}

	if s.dynamic {
		return true
	}

	return s.binCount > 0
}

// Admit performs sampling admission for one query: it returns true for
// exactly sample_pct percent of calls in expectation. It is meant to be
// called before Record so that non-admitted queries skip all locking.
// For static segments the rate is read without locking.
func (s *Segment) Admit() bool {
	if s == nil {
		return false
	}

	pct := s.samplePct

	if s.dynamic {
		s.mu.RLock()
		pct = s.samplePct
		s.mu.RUnlock()
	}

	if pct >= 100 {
		return true
	}

	return rand.IntN(100) < pct
}

// TrackUtility reports whether utility/administrative commands should
// be recorded.
func (s *Segment) TrackUtility() bool {
	if s == nil {
		return false
	}

	if !s.dynamic {
		return s.trackUtility
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.trackUtility
}

// lookupLocked scans the registry for a database and returns its bucket
// index, or 0 when the database is not tracked. The segment lock must
// be held.
func (s *Segment) lookupLocked(db uint32) int {
	for _, e := range s.entries {
		if e.db == db {
			return e.bucket
		}
	}

	return 0
}

// resolveLocked answers a lookup through the caller's cache. A cached
// answer (including "not tracked") is trusted as long as the segment
// version has not moved.
func (s *Segment) resolveLocked(cache *IndexCache, db uint32) int {
	if cache != nil && cache.valid && cache.version == s.version {
		return cache.index
	}

	idx := s.lookupLocked(db)
	cache.store(s.version, idx)

	return idx
}

// Record adds one query of the given duration to the global histogram
// and, when possible, to the database's histogram. A query from a
// previously unseen database registers it if the registry has spare
// capacity; once the registry is full new databases only contribute to
// the global histogram. Returns false without error when nothing was
// recorded because the segment currently has zero bins.
//
// cache may be nil, at the cost of a registry scan per call.
func (s *Segment) Record(cache *IndexCache, db uint32, d time.Duration) (bool, error) {
	if s == nil {
		return false, ErrNotInitialized
	}

	durMs := float64(d) / float64(time.Millisecond)

	s.mu.RLock()

	if s.binCount == 0 {
		s.mu.RUnlock()
		return false, nil
	}

	bin := BinIndex(s.kind, s.binCount, s.binWidthMs, durMs)
	s.buckets[0].observe(bin, durMs)

	idx := s.resolveLocked(cache, db)

	if idx == 0 && len(s.entries) < s.maxDatabases {
		// New database with spare capacity: upgrade to the
		// exclusive lock and re-check, someone may have raced us.
		s.mu.RUnlock()
		s.mu.Lock()

		idx = s.lookupLocked(db)

		if idx == 0 && len(s.entries) < s.maxDatabases {
			idx = len(s.entries) + 1
			s.entries = append(s.entries, entry{db: db, bucket: idx})
			s.version++

			s.log.WithFields(logrus.Fields{
				"database": db,
				"bucket":   idx,
			}).Debug("Registered database histogram")
		}

		cache.store(s.version, idx)

		// The configuration may have changed while the lock was
		// dropped, so the bin is recomputed.
		if idx != 0 && s.binCount > 0 {
			bin = BinIndex(s.kind, s.binCount, s.binWidthMs, durMs)
			s.buckets[idx].observe(bin, durMs)
		}

		s.mu.Unlock()

		return true, nil
	}

	if idx != 0 {
		s.buckets[idx].observe(bin, durMs)
	}

	s.mu.RUnlock()

	return true, nil
}

// Version returns the membership/configuration version counter.
func (s *Segment) Version() (uint64, error) {
	if s == nil {
		return 0, ErrNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.version, nil
}

// Config returns the segment's current configuration.
func (s *Segment) Config() Config {
	if s == nil {
		return Config{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.configLocked()
}

func (s *Segment) configLocked() Config {
	return Config{
		Kind:         s.kind,
		BinCount:     s.binCount,
		BinWidthMs:   s.binWidthMs,
		SamplePct:    s.samplePct,
		TrackUtility: s.trackUtility,
		Dynamic:      s.dynamic,
		MaxDatabases: s.maxDatabases,
	}
}

// DatabaseCount returns the number of currently tracked databases.
func (s *Segment) DatabaseCount() int {
	if s == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// LastResetGlobal returns when the global histogram was last reset.
func (s *Segment) LastResetGlobal() (time.Time, error) {
	if s == nil {
		return time.Time{}, ErrNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.buckets[0].resetTime(), nil
}

// LastResetDatabase returns when a database's histogram was last reset.
func (s *Segment) LastResetDatabase(db uint32) (time.Time, error) {
	if s == nil {
		return time.Time{}, ErrNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.lookupLocked(db)
	if idx == 0 {
		return time.Time{}, ErrDatabaseNotFound
	}

	return s.buckets[idx].resetTime(), nil
}

// ResetAll zeroes the global histogram and every database histogram.
// With remove set the registry is cleared as well, so databases must
// re-register on their next recorded query.
func (s *Segment) ResetAll(remove bool) error {
	if s == nil {
		return ErrNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetAllLocked(remove)

	return nil
}

// resetAllLocked zeroes buckets 0..current and bumps the version. The
// segment lock must be held exclusively.
func (s *Segment) resetAllLocked(remove bool) {
	now := time.Now()

	for i := 0; i <= len(s.entries); i++ {
		s.buckets[i].reset(now)
	}

	if remove {
		s.entries = s.entries[:0]
	}

	s.version++
}

// ResetGlobal zeroes only the global histogram.
func (s *Segment) ResetGlobal() error {
	if s == nil {
		return ErrNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.buckets[0].reset(time.Now())
	s.version++

	return nil
}

// ResetDatabase zeroes one database's histogram. With remove set the
// database is dropped from the registry: its slot is swapped with the
// last-registered database's slot and bucket contents so the registry
// stays dense. Returns false when the database is not tracked.
func (s *Segment) ResetDatabase(db uint32, remove bool) (bool, error) {
	if s == nil {
		return false, ErrNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos := -1

	for i, e := range s.entries {
		if e.db == db {
			pos = i
			break
		}
	}

	if pos < 0 {
		return false, nil
	}

	if !remove {
		s.buckets[s.entries[pos].bucket].reset(time.Now())
		return true, nil
	}

	last := len(s.entries) - 1

	if pos != last {
		s.entries[pos].db = s.entries[last].db
		// Lower-index bucket is locked first inside copyFrom.
		s.buckets[s.entries[pos].bucket].copyFrom(s.buckets[s.entries[last].bucket])
	}

	s.buckets[s.entries[last].bucket].reset(time.Now())
	s.entries = s.entries[:last]
	s.version++

	return true, nil
}

// SetBinCount changes the number of finite bins and resets all
// histograms. Logarithmic histograms clamp the count to what the bin
// width can represent. Refused on static segments.
func (s *Segment) SetBinCount(n int) error {
	if s == nil {
		return ErrNotInitialized
	}

	if !s.dynamic {
		s.log.Warn("Histogram segment is static, ignoring bin count change")
		return ErrStaticSegment
	}

	if n < 0 || n > BinLimit {
		return fmt.Errorf("bin count must be between 0 and %d, got %d", BinLimit, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.binCount = s.clampBinCount(n)
	s.resetAllLocked(false)

	return nil
}

// SetBinWidth changes the bin width in milliseconds and resets all
// histograms. Refused on static segments.
func (s *Segment) SetBinWidth(ms int) error {
	if s == nil {
		return ErrNotInitialized
	}

	if !s.dynamic {
		s.log.Warn("Histogram segment is static, ignoring bin width change")
		return ErrStaticSegment
	}

	if ms < 1 || ms > MaxBinWidthMs {
		return fmt.Errorf("bin width must be between 1 and %d, got %d", MaxBinWidthMs, ms)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.binWidthMs = ms
	s.binCount = s.clampBinCount(s.binCount)
	s.resetAllLocked(false)

	return nil
}

// SetSamplePct changes the sampling rate and resets all histograms.
// Refused on static segments.
func (s *Segment) SetSamplePct(pct int) error {
	if s == nil {
		return ErrNotInitialized
	}

	if !s.dynamic {
		s.log.Warn("Histogram segment is static, ignoring sample rate change")
		return ErrStaticSegment
	}

	if pct < 1 || pct > 100 {
		return fmt.Errorf("sample pct must be between 1 and 100, got %d", pct)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.samplePct = pct
	s.resetAllLocked(false)

	return nil
}

// SetKind changes the bin scaling and resets all histograms. Refused on
// static segments.
func (s *Segment) SetKind(k Kind) error {
	if s == nil {
		return ErrNotInitialized
	}

	if !s.dynamic {
		s.log.Warn("Histogram segment is static, ignoring kind change")
		return ErrStaticSegment
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.kind = k
	s.binCount = s.clampBinCount(s.binCount)
	s.resetAllLocked(false)

	return nil
}

// SetTrackUtility changes utility-command tracking and resets all
// histograms. Refused on static segments.
func (s *Segment) SetTrackUtility(track bool) error {
	if s == nil {
		return ErrNotInitialized
	}

	if !s.dynamic {
		s.log.Warn("Histogram segment is static, ignoring track_utility change")
		return ErrStaticSegment
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.trackUtility = track
	s.resetAllLocked(false)

	return nil
}
