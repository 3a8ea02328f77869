package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/queryhist/queryhist/internal/collector"
	"github.com/queryhist/queryhist/internal/export"
	"github.com/queryhist/queryhist/internal/histogram"
)

// Service is the top-level orchestrator for queryhist. It owns the
// shared histogram segment, restores it from the snapshot file on
// startup, hands out collection hooks to workers, and persists the
// segment on shutdown.
type Service interface {
	// Start initializes all components and begins serving.
	Start(ctx context.Context) error
	// Stop shuts down all components gracefully.
	Stop() error
	// Segment returns the shared histogram segment.
	Segment() *histogram.Segment
	// NewHook returns a fresh per-worker collection hook.
	NewHook() *collector.Hook
}

type service struct {
	log    logrus.FieldLogger
	cfg    *Config
	health *export.HealthMetrics
	seg    *histogram.Segment

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Service.
func New(log logrus.FieldLogger, cfg *Config) (Service, error) {
	seg, err := histogram.New(log, cfg.Histogram)
	if err != nil {
		return nil, fmt.Errorf("creating histogram segment: %w", err)
	}

	return &service{
		log:    log.WithField("component", "service"),
		cfg:    cfg,
		health: export.NewHealthMetrics(log, cfg.Health),
		seg:    seg,
	}, nil
}

func (s *service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	// 1. Restore histograms from the last snapshot. A missing file
	// is a clean first start; a bad one means starting empty.
	if s.cfg.SnapshotPath != "" {
		if err := s.seg.Load(s.cfg.SnapshotPath); err != nil {
			s.health.SnapshotErrors.WithLabelValues("load").Inc()
			s.log.WithError(err).
				WithField("path", s.cfg.SnapshotPath).
				Warn("Failed to restore histogram snapshot, starting empty")
		} else {
			s.health.SnapshotLoads.Inc()
		}
	}

	// 2. Start health metrics server.
	if err := s.health.Start(ctx); err != nil {
		return fmt.Errorf("starting health metrics: %w", err)
	}

	s.refreshGauges()

	// 3. Start segment gauge monitor.
	s.wg.Add(1)

	go s.monitorSegment(ctx)

	// 4. Start periodic snapshot saver.
	if s.cfg.SnapshotPath != "" && s.cfg.SnapshotInterval > 0 {
		s.wg.Add(1)

		go s.monitorSnapshots(ctx)
	}

	s.log.Info("Service fully started")

	return nil
}

func (s *service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}

	s.wg.Wait()

	if s.cfg.SnapshotPath != "" {
		if err := s.seg.Save(s.cfg.SnapshotPath); err != nil {
			s.health.SnapshotErrors.WithLabelValues("save").Inc()
			s.log.WithError(err).
				WithField("path", s.cfg.SnapshotPath).
				Error("Failed to persist histogram snapshot")
		} else {
			s.health.SnapshotSaves.Inc()
		}
	}

	if s.health != nil {
		s.health.Stop()
	}

	return nil
}

func (s *service) Segment() *histogram.Segment {
	return s.seg
}

func (s *service) NewHook() *collector.Hook {
	return collector.NewHook(s.log, s.seg, s.health)
}

func (s *service) monitorSegment(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshGauges()
		}
	}
}

func (s *service) monitorSnapshots(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.seg.Save(s.cfg.SnapshotPath); err != nil {
				s.health.SnapshotErrors.WithLabelValues("save").Inc()
				s.log.WithError(err).
					Warn("Periodic snapshot save failed")

				continue
			}

			s.health.SnapshotSaves.Inc()
		}
	}
}

func (s *service) refreshGauges() {
	s.health.DatabasesTracked.Set(float64(s.seg.DatabaseCount()))

	if v, err := s.seg.Version(); err == nil {
		s.health.SegmentVersion.Set(float64(v))
	}
}
