package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Syncer is one periodic job.
type Syncer interface {
	Sync(ctx context.Context) error
}

type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	timeout  time.Duration
	ready    func() bool
	logger   *slog.Logger
}

func NewScheduler(name string, syncer Syncer, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("job", name),
	}
}

// WhenReady makes each tick run only while ready reports true.
func (s *Scheduler) WhenReady(ready func() bool) *Scheduler {
	s.ready = ready
	return s
}

// Start runs the job immediately, then on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runSync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSync(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	if s.ready != nil && !s.ready() {
		s.logger.Debug("not ready, skipping tick")
		return
	}

	syncCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.syncer.Sync(syncCtx); err != nil {
		s.logger.Error("sync failed", "error", err)
	}
}
