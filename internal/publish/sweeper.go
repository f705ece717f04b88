package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Sweeper prunes published audio on a cron schedule. Telephony providers
// fetch audio within seconds, so old files are safe to delete.
type Sweeper struct {
	pruner Pruner
	maxAge time.Duration
	cron   *cron.Cron
	now    func() time.Time
	logger *slog.Logger
}

// NewSweeper schedules pruner according to cfg.
func NewSweeper(pruner Pruner, cfg RetentionConfig, logger *slog.Logger) (*Sweeper, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 15m"
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		pruner: pruner,
		maxAge: cfg.MaxAge,
		cron:   cron.New(cron.WithParser(cronParser)),
		now:    time.Now,
		logger: logger.With("component", "publish-sweeper"),
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, func() { s.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("publish: invalid retention schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("audio retention sweeper started", "max_age", s.maxAge)
}

// Stop halts the schedule and waits for a running sweep, or ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Sweep prunes once and returns the number of files removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	count, err := s.pruner.Prune(ctx, s.now().Add(-s.maxAge))
	if err != nil {
		s.logger.Error("audio retention sweep failed", "error", err)
	} else if count > 0 {
		s.logger.Info("audio retention sweep completed", "pruned", count)
	}
	return count
}
