package recurring

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs the engine and the housekeeping on a fixed interval.
type Scheduler struct {
	Engine   *Engine
	Interval time.Duration
	// Maintenance runs after every generation pass; may be nil.
	Maintenance func(ctx context.Context, now time.Time) error
	Logger      *slog.Logger
}

// Run blocks until ctx is cancelled. The first pass starts immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	logger.Info("scheduler started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.tick(ctx, logger)
		select {
		case <-ctx.Done():
			logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, logger *slog.Logger) {
	now := s.Engine.now()
	if _, err := s.Engine.GenerateDue(ctx, now); err != nil {
		logger.Error("recurring generation failed", "error", err)
	}
	if s.Maintenance == nil || ctx.Err() != nil {
		return
	}
	if err := s.Maintenance(ctx, now); err != nil {
		logger.Error("maintenance failed", "error", err)
	}
}
