package gather

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs gatherers on cron schedules until its context ends.
// Expressions carry a leading seconds field ("0 30 20 * * 1-5"). A run
// still in progress when its next tick fires causes that tick to be skipped.
type Scheduler struct {
	cron *cron.Cron
	loc  *time.Location
	ctx  context.Context
	log  *slog.Logger
}

// NewScheduler creates a Scheduler evaluating expressions in loc. Jobs
// receive ctx.
func NewScheduler(ctx context.Context, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		loc: loc,
		ctx: ctx,
		log: slog.Default().With("component", "scheduler"),
	}
}

// Add registers g to run on the cron expression expr.
func (s *Scheduler) Add(expr string, g Gatherer) error {
	_, err := s.cron.AddFunc(expr, func() {
		if s.ctx.Err() != nil {
			return
		}
		start := time.Now()
		s.log.Info("scheduled run", "gatherer", g.Name())
		if err := g.Run(s.ctx); err != nil {
			s.log.Error("scheduled run failed", "gatherer", g.Name(), "error", err)
			return
		}
		s.log.Info("scheduled run done", "gatherer", g.Name(), "elapsed", time.Since(start).Round(time.Millisecond))
	})
	if err != nil {
		return fmt.Errorf("register %s on %q: %w", g.Name(), expr, err)
	}
	return nil
}

// Next returns the next activation time across all jobs, or the zero time
// when nothing is scheduled.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	now := time.Now().In(s.loc)
	for _, e := range s.cron.Entries() {
		n := e.Schedule.Next(now)
		if next.IsZero() || n.Before(next) {
			next = n
		}
	}
	return next
}

// Run starts the scheduler and blocks until the context passed to
// NewScheduler is done, then waits for running jobs to finish.
func (s *Scheduler) Run() error {
	s.cron.Start()
	s.log.Info("scheduler started", "next", s.Next())
	<-s.ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
	return s.ctx.Err()
}
