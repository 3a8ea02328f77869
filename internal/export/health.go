package export

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// HealthConfig configures the Prometheus health metrics server.
type HealthConfig struct {
	// Addr is the listen address for the health metrics server.
	// Defaults to ":9090".
	Addr string `yaml:"addr"`
}

// HealthMetrics exposes Prometheus metrics for histogram service health.
type HealthMetrics struct {
	log      logrus.FieldLogger
	addr     string
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry

	// Collection path
	QueriesObserved   prometheus.Counter
	QueriesRecorded   prometheus.Counter
	QueriesSampledOut prometheus.Counter
	RecordErrors      prometheus.Counter
	RecordDuration    prometheus.Histogram

	// Segment state
	DatabasesTracked prometheus.Gauge
	SegmentVersion   prometheus.Gauge

	// Persistence
	SnapshotSaves  prometheus.Counter
	SnapshotLoads  prometheus.Counter
	SnapshotErrors *prometheus.CounterVec // operation (save/load)

	running atomic.Bool
}

// NewHealthMetrics creates a new health metrics server.
func NewHealthMetrics(
	log logrus.FieldLogger,
	cfg HealthConfig,
) *HealthMetrics {
	reg := prometheus.NewRegistry()

	h := &HealthMetrics{
		log:      log.WithField("component", "health"),
		addr:     cfg.Addr,
		registry: reg,

		QueriesObserved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "queryhist",
			Name:      "queries_observed_total",
			Help:      "Total finished queries reported to the collection hook.",
		}),
		QueriesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "queryhist",
			Name:      "queries_recorded_total",
			Help:      "Total queries recorded into the histogram segment.",
		}),
		QueriesSampledOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "queryhist",
			Name:      "queries_sampled_out_total",
			Help:      "Total queries skipped by sampling admission.",
		}),
		RecordErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "queryhist",
			Name:      "record_errors_total",
			Help:      "Total failed histogram record attempts.",
		}),
		RecordDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "queryhist",
			Name:      "record_duration_seconds",
			Help:      "Time to record a single query into the segment.",
			Buckets:   []float64{0.0000001, 0.0000005, 0.000001, 0.000005, 0.00001, 0.0001}, // 100ns-100us
		}),

		DatabasesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "queryhist",
			Name:      "databases_tracked",
			Help:      "Number of databases with a registered per-database histogram.",
		}),
		SegmentVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "queryhist",
			Name:      "segment_version",
			Help:      "Current segment version counter.",
		}),

		SnapshotSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "queryhist",
			Name:      "snapshot_saves_total",
			Help:      "Total successful snapshot file saves.",
		}),
		SnapshotLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "queryhist",
			Name:      "snapshot_loads_total",
			Help:      "Total successful snapshot file loads.",
		}),
		SnapshotErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "queryhist",
				Name:      "snapshot_errors_total",
				Help:      "Total snapshot persistence errors by operation.",
			},
			[]string{"operation"},
		),
	}

	reg.MustRegister(
		h.QueriesObserved,
		h.QueriesRecorded,
		h.QueriesSampledOut,
		h.RecordErrors,
		h.RecordDuration,
		h.DatabasesTracked,
		h.SegmentVersion,
		h.SnapshotSaves,
		h.SnapshotLoads,
		h.SnapshotErrors,
	)

	return h
}

// Start begins serving the /metrics endpoint.
func (h *HealthMetrics) Start(_ context.Context) error {
	if h.addr == "" {
		h.addr = ":9090"
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		h.registry,
		promhttp.HandlerOpts{},
	))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	// pprof endpoints for CPU/memory profiling.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.addr, err)
	}

	h.listener = ln

	h.server = &http.Server{
		Handler: mux,
	}

	h.running.Store(true)

	go func() {
		h.log.WithField("addr", ln.Addr().String()).
			Info("Health metrics server started")

		if err := h.server.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			h.log.WithError(err).
				Error("Health metrics server error")
		}

		h.running.Store(false)
	}()

	return nil
}

// Addr returns the actual listener address. Useful when started
// with ":0" to get the OS-assigned port.
func (h *HealthMetrics) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}

	return h.addr
}

// Stop gracefully shuts down the health metrics server.
func (h *HealthMetrics) Stop() error {
	if h.server == nil {
		return nil
	}

	return h.server.Close()
}
