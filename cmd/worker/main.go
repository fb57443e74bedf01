package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gren-lang/package-registry/internal/archive"
	"github.com/gren-lang/package-registry/internal/clock"
	"github.com/gren-lang/package-registry/internal/compiler"
	"github.com/gren-lang/package-registry/internal/config"
	"github.com/gren-lang/package-registry/internal/logger"
	"github.com/gren-lang/package-registry/internal/notify"
	"github.com/gren-lang/package-registry/internal/pipeline"
	"github.com/gren-lang/package-registry/internal/store"
	"github.com/gren-lang/package-registry/internal/telemetry"
	"github.com/gren-lang/package-registry/internal/vcs"
	"github.com/gren-lang/package-registry/internal/workspace"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logr := logger.New(cfg.Log)
	telemetry.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.PostgresDSN, store.WithRetryTable(cfg.RetrySchedule))
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	ws, err := workspace.New(cfg.WorkDir)
	if err != nil {
		log.Fatalf("workspace: %v", err)
	}

	gren := compiler.New(cfg.GrenCompilerPath, cfg.CompilerTimeout)
	if path, err := gren.Ensure(); err != nil {
		logr.Warn("gren compiler not found, builds will fail", "path", cfg.GrenCompilerPath, "err", err)
	} else if v, err := gren.Version(ctx); err == nil {
		logr.Info("using gren compiler", "path", path, "version", v)
	}

	arch, err := archive.New(ctx, archive.Config{
		Dir:         cfg.ArtifactDir,
		S3Bucket:    cfg.ArtifactS3Bucket,
		S3Region:    cfg.ArtifactS3Region,
		S3Endpoint:  cfg.ArtifactS3Endpoint,
		S3PathStyle: cfg.ArtifactS3PathStyle,
	})
	if err != nil {
		log.Fatalf("init artifact archive: %v", err)
	}

	notifier, closeNotifier := notifiers(cfg, logr)
	defer closeNotifier()

	git := vcs.NewClient(cfg.GitListTimeout, cfg.GitCloneTimeout)
	sched := pipeline.NewScheduler(st, ws,
		pipeline.WithPollInterval(cfg.WorkerPollInterval),
		pipeline.WithLogger(logr),
	)
	pipeline.NewSteps(pipeline.Deps{
		Jobs:         st,
		Packages:     st,
		Tags:         git,
		Cloner:       git,
		Builder:      gren,
		Archive:      arch,
		Notifier:     notifier,
		Workspace:    ws,
		CanonicalURL: cfg.CanonicalURL,
		Logger:       logr,
	}).Register(sched)

	reaper := pipeline.NewReaper(st, ws, cfg.JobRetention, clock.Real{}, logr)
	if err := reaper.Start(ctx, cfg.ReaperInterval); err != nil {
		log.Fatalf("start reaper: %v", err)
	}
	defer reaper.Stop()

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			logr.Error("metrics server stopped", "err", err)
		}
	}()

	logr.Info("worker started", "config", cfg, "archive", arch.Enabled(), "notify_channels", notifier.Len())
	if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
		logr.Error("worker stopped", "err", err)
	}
}

// notifiers builds the configured announcement channels. The returned func
// closes any open connections.
func notifiers(cfg config.Config, logr *slog.Logger) (*notify.Multi, func()) {
	var channels []notify.Notifier
	closeFn := func() {}

	if cfg.ZulipEnabled() {
		channels = append(channels, notify.NewZulip(cfg.ZulipRealm, cfg.ZulipUsername, cfg.ZulipAPIKey, cfg.ZulipStream))
	}
	if cfg.NATSURL != "" {
		nc, err := notify.NewNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			logr.Warn("nats unavailable, skipping", "url", cfg.NATSURL, "err", err)
		} else {
			channels = append(channels, nc)
			closeFn = nc.Close
		}
	}
	return notify.NewMulti(logr, channels...), closeFn
}
