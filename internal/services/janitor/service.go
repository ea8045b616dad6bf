// Package janitor prunes events long past their start time, together with
// their subscriptions, on a cron schedule. Without it the store only ever
// grows: fired reminders consume jobs but never rows.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	logx "remindbot/pkg/logx"
)

// Pruner is the slice of the store the janitor needs.
type Pruner interface {
	PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Config struct {
	// Schedule is a cron spec or descriptor such as "@daily".
	Schedule string

	// Retention keeps an event for this long after its start time.
	Retention time.Duration

	Timezone *time.Location
}

func (c Config) withDefaults() Config {
	if c.Schedule == "" {
		c.Schedule = "@daily"
	}
	if c.Retention <= 0 {
		c.Retention = 7 * 24 * time.Hour
	}
	if c.Timezone == nil {
		c.Timezone = time.Local
	}
	return c
}

type Service struct {
	log    logx.Logger
	pruner Pruner
	cfg    Config

	cron  *cron.Cron
	runID cron.EntryID
}

func New(cfg Config, pruner Pruner, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, pruner: pruner, cfg: cfg.withDefaults()}
}

func (s *Service) Start(ctx context.Context) error {
	if s.cron != nil {
		return nil
	}
	c := cron.New(cron.WithLocation(s.cfg.Timezone))
	id, err := c.AddFunc(s.cfg.Schedule, func() { s.RunOnce(context.Background(), time.Now()) })
	if err != nil {
		return fmt.Errorf("janitor schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron = c
	s.runID = id
	c.Start()
	s.log.Info("service started",
		logx.String("schedule", s.cfg.Schedule),
		logx.Duration("retention", s.cfg.Retention))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	done := s.cron.Stop().Done()
	s.cron = nil
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("service stopped")
}

// RunOnce prunes events older than the retention window relative to now.
func (s *Service) RunOnce(ctx context.Context, now time.Time) {
	cutoff := now.Add(-s.cfg.Retention)
	n, err := s.pruner.PruneEventsBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("prune failed", logx.Time("cutoff", cutoff), logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("old events pruned", logx.Int64("events", n), logx.Time("cutoff", cutoff))
	}
}
