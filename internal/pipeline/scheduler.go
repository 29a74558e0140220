package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner executes one complete pass.
type Runner interface {
	RunOnce(ctx context.Context) error
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// Spec is a standard five-field cron expression.
	Spec string
	// Retries is how many times a failed run is retried before waiting for
	// the next tick.
	Retries int
	// RetryWait is the first retry delay; it doubles up to MaxRetryWait.
	RetryWait    time.Duration
	MaxRetryWait time.Duration
}

// Scheduler runs a Runner immediately and then on a cron schedule. A tick
// that fires while the previous run is still going is skipped.
type Scheduler struct {
	opts     SchedulerOptions
	schedule cron.Schedule
	runner   Runner
	logger   *slog.Logger
}

// NewScheduler validates the cron spec and creates a Scheduler.
func NewScheduler(opts SchedulerOptions, runner Runner, logger *slog.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(opts.Spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", opts.Spec, err)
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 5 * time.Second
	}
	if opts.MaxRetryWait < opts.RetryWait {
		opts.MaxRetryWait = opts.RetryWait
	}
	return &Scheduler{opts: opts, schedule: schedule, runner: runner, logger: logger}, nil
}

// Next returns the first scheduled time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run blocks until ctx is cancelled, then waits for an in-flight run to
// finish.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := cronLogger{s.logger}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.runWithRetry(ctx) }))

	s.runWithRetry(ctx)
	if ctx.Err() != nil {
		return nil
	}

	c.Start()
	s.logger.Info("scheduler started", "schedule", s.opts.Spec, "next", s.Next(time.Now()))
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// runWithRetry runs once and retries failures with exponential backoff.
// ErrNoUsableStations is not retried; the upstream data will not change
// within the backoff window.
func (s *Scheduler) runWithRetry(ctx context.Context) {
	backoff := s.opts.RetryWait
	for attempt := 0; ; attempt++ {
		err := s.runner.RunOnce(ctx)
		switch {
		case err == nil:
			return
		case ctx.Err() != nil:
			return
		case errors.Is(err, ErrNoUsableStations) || attempt >= s.opts.Retries:
			s.logger.Error("run failed", "error", err, "attempts", attempt+1)
			return
		}

		s.logger.Warn("run failed, retrying", "error", err, "attempt", attempt+1, "backoff", backoff)
		if !sleepWithContext(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, s.opts.MaxRetryWait)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
