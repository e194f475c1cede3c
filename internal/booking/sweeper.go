package booking

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunSweeper calls SweepExpiredHolds every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.log.Info("hold sweeper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("hold sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepExpiredHolds(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("hold sweep", zap.Error(err))
			}
		}
	}
}
