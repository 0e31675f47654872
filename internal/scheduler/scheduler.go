package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// RunForever runs the refill batch on the configured interval until the
// context is cancelled. A run that loses the distributed lock is normal in a
// multi-replica deployment and is logged at debug level only.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	if s.cfg.RunOnStart {
		s.runOnce(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.RunRefillBatch(ctx); err != nil {
		if errors.Is(err, ErrBatchAlreadyRunning) {
			s.log.Debug("refill batch already running elsewhere, skipping")
			return
		}
		s.log.Warn("scheduled refill run failed", zap.Error(err))
	}
}
