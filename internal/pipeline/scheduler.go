package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/gren-lang/package-registry/internal/clock"
	"github.com/gren-lang/package-registry/internal/models"
	"github.com/gren-lang/package-registry/internal/store"
	"github.com/gren-lang/package-registry/internal/telemetry"
)

const (
	MsgExecuting     = "Executing..."
	MsgUnknownStep   = "Unrecognized pipeline step"
	MsgHandlerPanic  = "Unexpected error when executing step"
	defaultPollEvery = time.Second
)

// Handler executes one step of a job.
type Handler func(ctx context.Context, job models.ImportJob) Result

// Releaser frees a job's working directory.
type Releaser interface {
	Release(jobID string) error
}

// Scheduler drives the pipeline: every tick it claims at most one due job,
// runs the handler for its step and applies the result.
type Scheduler struct {
	jobs      JobStore
	workspace Releaser
	handlers  map[models.Step]Handler
	clock     clock.Clock
	interval  time.Duration
	log       *slog.Logger
}

type SchedulerOption func(*Scheduler)

func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSchedulerClock(c clock.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = l }
}

func NewScheduler(jobs JobStore, ws Releaser, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		jobs:      jobs,
		workspace: ws,
		handlers:  make(map[models.Step]Handler),
		clock:     clock.Real{},
		interval:  defaultPollEvery,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterHandler binds a handler to a step.
func (s *Scheduler) RegisterHandler(step models.Step, handler Handler) {
	if step == models.StepUnknown || handler == nil {
		return
	}
	s.handlers[step] = handler
}

// Run ticks until the context is cancelled. Ticks never overlap.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if _, err := s.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("scheduler tick failed", "err", err)
		}
	}
}

// Tick processes at most one due job. processed is false when nothing was due.
func (s *Scheduler) Tick(ctx context.Context) (processed bool, err error) {
	job, found, err := s.jobs.ClaimNextDue(ctx)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	log := s.log.With(jobAttrs(job)...)
	log.Info("executing job", "retry", job.RetryCount)

	if err := s.jobs.SetMessage(ctx, job.ID, MsgExecuting); err != nil {
		return true, err
	}

	handler, ok := s.handlers[job.Step]
	if !ok {
		log.Error("unrecognized pipeline step")
		return true, s.apply(ctx, log, job, Stop(fmt.Sprintf("%s %q", MsgUnknownStep, job.StepCode())))
	}

	step := job.Step.String()
	telemetry.InFlightGauge.Inc()
	start := s.clock.Now()
	result := s.execute(ctx, log, handler, job)
	telemetry.StepDuration.WithLabelValues(step).Observe(s.clock.Now().Sub(start).Seconds())
	telemetry.InFlightGauge.Dec()

	return true, s.apply(ctx, log, job, result)
}

func (s *Scheduler) execute(ctx context.Context, log *slog.Logger, handler Handler, job models.ImportJob) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("step handler panicked", "panic", r, "stack", string(debug.Stack()))
			telemetry.StepOutcomes.WithLabelValues(job.Step.String(), telemetry.OutcomePanic).Inc()
			result = Retry(MsgHandlerPanic)
		}
	}()
	return handler(ctx, job)
}

func (s *Scheduler) apply(ctx context.Context, log *slog.Logger, job models.ImportJob, r Result) error {
	step := job.Step.String()
	switch r.Action {
	case ActionAdvance:
		if err := s.jobs.Advance(ctx, job.ID, r.Next); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Warn("job stopped while executing, not advancing")
				return nil
			}
			return fmt.Errorf("advance job %s: %w", job.ID, err)
		}
		telemetry.StepOutcomes.WithLabelValues(step, telemetry.OutcomeAdvance).Inc()
		log.Info("job advanced", "next", r.Next.String())
		return nil

	case ActionRetry:
		stopped, err := s.jobs.ScheduleRetry(ctx, job.ID, job.RetryCount, r.Reason)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Warn("job stopped while executing, not retrying")
				return nil
			}
			return fmt.Errorf("schedule retry for job %s: %w", job.ID, err)
		}
		if stopped {
			telemetry.StepOutcomes.WithLabelValues(step, telemetry.OutcomeGiveUp).Inc()
			log.Warn("giving up on job", "reason", r.Reason, "retries", job.RetryCount)
			s.release(log, job.ID)
			return nil
		}
		telemetry.StepOutcomes.WithLabelValues(step, telemetry.OutcomeRetry).Inc()
		log.Info("job scheduled for retry", "reason", r.Reason, "retry", job.RetryCount+1)
		return nil

	default:
		if err := s.jobs.Stop(ctx, job.ID, r.Reason); err != nil {
			return fmt.Errorf("stop job %s: %w", job.ID, err)
		}
		telemetry.StepOutcomes.WithLabelValues(step, telemetry.OutcomeStop).Inc()
		log.Info("job stopped", "reason", r.Reason)
		s.release(log, job.ID)
		return nil
	}
}

func (s *Scheduler) release(log *slog.Logger, jobID string) {
	if s.workspace == nil {
		return
	}
	if err := s.workspace.Release(jobID); err != nil {
		log.Warn("release working directory failed", "err", err)
	}
}
