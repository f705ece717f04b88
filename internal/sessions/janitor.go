package sessions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultPruneSchedule runs the janitor once a minute.
const DefaultPruneSchedule = "@every 1m"

// Janitor prunes idle sessions on a cron schedule. Calls that end without
// a status callback are closed out even when no further turns arrive.
type Janitor struct {
	registry *Registry
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewJanitor schedules r.Prune according to schedule.
func NewJanitor(r *Registry, schedule string, logger *slog.Logger) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	j := &Janitor{
		registry: r,
		cron:     cron.New(),
		logger:   logger.With("component", "session-janitor"),
	}
	if _, err := j.cron.AddFunc(schedule, func() { j.Run() }); err != nil {
		return nil, fmt.Errorf("sessions: invalid prune schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start runs the schedule in the background.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running prune, or ctx.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Run prunes once and returns the number of sessions removed.
func (j *Janitor) Run() int {
	n := j.registry.Prune()
	if n > 0 {
		j.logger.Info("idle sessions pruned", "count", n, "remaining", j.registry.Len())
	}
	return n
}

// Validate checks the prune schedule.
func (c Config) Validate() error {
	if c.PruneSchedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(c.PruneSchedule); err != nil {
		return fmt.Errorf("sessions.prune_schedule %q: %w", c.PruneSchedule, err)
	}
	return nil
}
