package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gren-lang/package-registry/internal/clock"
	"github.com/gren-lang/package-registry/internal/telemetry"
)

// Reaper deletes stopped jobs once they have been finished for longer than
// the retention window, together with their working directories.
type Reaper struct {
	jobs      JobStore
	workspace Releaser
	clock     clock.Clock
	retention time.Duration
	log       *slog.Logger
	cron      *cron.Cron
}

func NewReaper(jobs JobStore, ws Releaser, retention time.Duration, clk clock.Clock, log *slog.Logger) *Reaper {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{jobs: jobs, workspace: ws, clock: clk, retention: retention, log: log}
}

// Sweep removes every stale job and returns how many were deleted. A job
// that fails to delete is logged and left for the next sweep.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	ids, err := r.jobs.ListStale(ctx, r.clock.Now().Add(-r.retention))
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}
	deleted := 0
	for _, id := range ids {
		if r.workspace != nil {
			if err := r.workspace.Release(id); err != nil {
				r.log.Warn("release working directory failed", "job_id", id, "err", err)
			}
		}
		if err := r.jobs.DeleteJob(ctx, id); err != nil {
			r.log.Error("delete job failed", "job_id", id, "err", err)
			continue
		}
		deleted++
		telemetry.JobsReaped.Inc()
	}
	if deleted > 0 {
		r.log.Info("reaped finished jobs", "count", deleted)
	}
	return deleted, nil
}

// Start runs Sweep on a cron schedule of "@every interval" until Stop.
// Overlapping sweeps are skipped.
func (r *Reaper) Start(ctx context.Context, interval time.Duration) error {
	cl := cronLogger{r.log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if _, err := r.Sweep(ctx); err != nil {
			r.log.Error("reaper sweep failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reaper: %w", err)
	}
	r.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
