package services

import (
	"time"

	"github.com/go-co-op/gocron"

	"depth-studio-backend/internal/logger"
	"depth-studio-backend/internal/telemetry"
)

// RetentionService periodically deletes generated images older than the
// configured retention window.
type RetentionService struct {
	scheduler *gocron.Scheduler
	store     *ImageStore
	metrics   *telemetry.Metrics
	retention time.Duration
	interval  time.Duration
}

func NewRetentionService(store *ImageStore, metrics *telemetry.Metrics, retention, interval time.Duration) *RetentionService {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	s.SingletonModeAll()

	return &RetentionService{
		scheduler: s,
		store:     store,
		metrics:   metrics,
		retention: retention,
		interval:  interval,
	}
}

// Start schedules the sweep job; it runs once immediately, then every interval.
func (r *RetentionService) Start() error {
	if _, err := r.scheduler.Every(r.interval).Tag("output-retention").Do(r.RunOnce); err != nil {
		return err
	}
	r.scheduler.StartAsync()

	logger.Info("Retention sweeper started", "retention", r.retention.String(), "interval", r.interval.String())
	return nil
}

func (r *RetentionService) Stop() {
	r.scheduler.Stop()
	logger.Info("Retention sweeper stopped")
}

// RunOnce performs a single sweep and returns the number of files removed.
func (r *RetentionService) RunOnce() int {
	removed, err := r.store.Sweep(r.retention)
	if err != nil {
		logger.Error("Retention sweep failed", "error", err, "removed", removed)
	}
	r.metrics.RecordOutputsSwept(removed)
	if removed > 0 {
		logger.Info("Retention sweep removed expired outputs", "removed", removed)
	}
	return removed
}
