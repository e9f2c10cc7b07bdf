package retention

import (
	"context"
	"errors"
	"time"
)

// Run sweeps once immediately and then on every interval tick until ctx is
// cancelled.
func (s *Sweeper) Run(ctx context.Context, interval, threshold time.Duration) {
	if interval <= 0 || threshold <= 0 {
		s.log.Info(ctx, "scheduled sweeps disabled")
		return
	}
	s.log.Info(ctx, "sweep scheduler started", "interval", interval.String(), "threshold", threshold.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runOnce(ctx, threshold)
	for {
		select {
		case <-ctx.Done():
			s.log.Info(ctx, "sweep scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx, threshold)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context, threshold time.Duration) {
	if _, err := s.Sweep(ctx, threshold); err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			s.log.Info(ctx, "sweep skipped, another sweep holds the lock")
			return
		}
		if ctx.Err() == nil {
			s.log.Error(ctx, "scheduled sweep failed", "error", err)
		}
	}
}
