package collector

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/queryhist/queryhist/internal/export"
	"github.com/queryhist/queryhist/internal/histogram"
)

// Hook is the boundary the host's query executor reports into: one
// hook per worker, fed with "query finished" and "utility command
// finished" events. The hook suppresses nested calls, performs
// sampling admission before taking any lock, and owns the worker's
// index cache.
//
// A Hook is not safe for concurrent use; give every worker its own.
type Hook struct {
	log    logrus.FieldLogger
	seg    *histogram.Segment
	health *export.HealthMetrics
	cache  histogram.IndexCache
}

// NewHook creates a hook recording into seg. health may be nil.
func NewHook(log logrus.FieldLogger, seg *histogram.Segment, health *export.HealthMetrics) *Hook {
	return &Hook{
		log:    log.WithField("component", "collector"),
		seg:    seg,
		health: health,
	}
}

// QueryFinished reports one completed query. depth is the nesting
// level of the call: only top-level queries (depth 0) are recorded, so
// statements executed from within another statement are not counted
// twice.
func (h *Hook) QueryFinished(db uint32, d time.Duration, depth int) {
	if depth != 0 {
		return
	}

	h.observe(db, d)
}

// UtilityFinished reports one completed utility/administrative
// command. Routed like a query, but only when the segment is
// configured to track utility commands.
func (h *Hook) UtilityFinished(db uint32, d time.Duration, depth int) {
	if depth != 0 || !h.seg.TrackUtility() {
		return
	}

	h.observe(db, d)
}

func (h *Hook) observe(db uint32, d time.Duration) {
	if !h.seg.Enabled() {
		return
	}

	if h.health != nil {
		h.health.QueriesObserved.Inc()
	}

	if !h.seg.Admit() {
		if h.health != nil {
			h.health.QueriesSampledOut.Inc()
		}

		return
	}

	start := time.Now()

	recorded, err := h.seg.Record(&h.cache, db, d)
	if err != nil {
		if h.health != nil {
			h.health.RecordErrors.Inc()
		}

		h.log.WithError(err).Warn("Failed to record query")

		return
	}

	// A dynamic segment with zero bins accepts the call but records
	// nothing; that stays observed-only.
	if recorded && h.health != nil {
		h.health.QueriesRecorded.Inc()
		h.health.RecordDuration.Observe(time.Since(start).Seconds())
	}
}
