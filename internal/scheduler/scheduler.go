// Package scheduler repeats a job on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/flowgraph/pkg/schema"
)

// Job is the unit of work run on every tick. An error is logged and counted;
// it does not stop the schedule.
type Job func(ctx context.Context) error

// Stats describes the ticks run so far.
type Stats struct {
	Runs      int
	Failures  int
	LastRunAt time.Time
	LastError string
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a five-field cron expression or a descriptor such as
// "@hourly" or "@every 5m".
func ParseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"parse cron expression %q: %s", spec, err.Error()).WithCause(err)
	}
	return schedule, nil
}

// Scheduler runs a Job once on start and then at every time its schedule yields.
// Ticks never overlap: the next one is computed when the previous one ends.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	job      Job
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// New creates a Scheduler for spec.
func New(spec string, job Job, logger *slog.Logger) (*Scheduler, error) {
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{spec: spec, schedule: schedule, job: job, logger: logger}, nil
}

// NextRun returns the first scheduled time after from.
func (s *Scheduler) NextRun(from time.Time) time.Time {
	return s.schedule.Next(from)
}

// Start launches the scheduling loop in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		s.loop(schedCtx)
	}(s.done)
	return nil
}

// Run blocks, ticking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

func (s *Scheduler) loop(ctx context.Context) {
	s.logger.Info("scheduler started", slog.String("schedule", s.spec))
	defer s.logger.Info("scheduler stopped", slog.String("schedule", s.spec))

	s.tick(ctx)
	for {
		next := s.NextRun(time.Now())
		s.logger.Debug("next run scheduled", slog.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.tick(ctx)
		}
	}
}

// tick runs the job once and records the outcome.
func (s *Scheduler) tick(ctx context.Context) {
	started := time.Now()
	err := s.job(ctx)

	s.statsMu.Lock()
	s.stats.Runs++
	s.stats.LastRunAt = started
	s.stats.LastError = ""
	if err != nil {
		s.stats.Failures++
		s.stats.LastError = err.Error()
	}
	s.statsMu.Unlock()

	if err != nil {
		s.logger.Error("scheduled run failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(started)),
		)
		return
	}
	s.logger.Info("scheduled run completed", slog.Duration("duration", time.Since(started)))
}

// Stats returns a snapshot of the ticks run so far.
func (s *Scheduler) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// Stop cancels the loop and waits for a tick in progress to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	return nil
}
