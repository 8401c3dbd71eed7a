package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stwalsh4118/broker/internal/logger"
)

// DefaultRefreshSchedule rebuilds reference bounds every 6 hours.
const DefaultRefreshSchedule = "0 */6 * * *"

const refreshTimeout = 10 * time.Minute

// ReferenceRefresher is the part of AnalysisService the scheduler drives.
type ReferenceRefresher interface {
	RefreshReference(ctx context.Context, invalidate bool) (*ReferenceStatus, error)
}

// RefreshScheduler periodically reloads the data source and rebuilds reference bounds.
type RefreshScheduler struct {
	refresher ReferenceRefresher
	cron      *cron.Cron
	log       *logger.Logger
	timeout   time.Duration
	running   sync.Mutex
}

// NewRefreshScheduler creates a new refresh scheduler
func NewRefreshScheduler(refresher ReferenceRefresher, log *logger.Logger) *RefreshScheduler {
	return &RefreshScheduler{
		refresher: refresher,
		cron:      cron.New(),
		log:       log.WithComponent("refresh_scheduler"),
		timeout:   refreshTimeout,
	}
}

// Start registers the refresh job with a standard 5-field cron expression and starts the scheduler.
func (s *RefreshScheduler) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultRefreshSchedule
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		s.runRefresh()
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.log.Info("Reference refresh scheduler started", map[string]interface{}{
		"schedule": schedule,
	})
	return nil
}

// Stop stops the scheduler and waits for a running refresh to finish.
func (s *RefreshScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Reference refresh scheduler stopped", nil)
}

// RunNow triggers an immediate refresh in the background.
func (s *RefreshScheduler) RunNow() {
	s.log.Info("Triggering immediate reference refresh", nil)
	go s.runRefresh()
}

// runRefresh performs one refresh. Overlapping runs are skipped.
func (s *RefreshScheduler) runRefresh() {
	if !s.running.TryLock() {
		s.log.Warn("Reference refresh already in progress, skipping", nil)
		return
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	status, err := s.refresher.RefreshReference(ctx, false)
	if err != nil {
		s.log.Error("Scheduled reference refresh failed", err, nil)
		return
	}

	s.log.Info("Scheduled reference refresh completed", map[string]interface{}{
		"version":     status.Version,
		"rebuilt":     status.Rebuilt,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
