// Package pipeline drives import jobs through their steps: discovering
// versions, cloning, building documentation, indexing and announcing.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/gren-lang/package-registry/internal/compiler"
	"github.com/gren-lang/package-registry/internal/models"
	"github.com/gren-lang/package-registry/internal/notify"
	"github.com/gren-lang/package-registry/internal/store"
	"github.com/gren-lang/package-registry/internal/telemetry"
)

// Job status messages shown to users.
const (
	MsgCompleted          = "Completed successfully"
	MsgRepositoryMissing  = "Repository doesn't exist: "
	MsgFindTagsFailed     = "Unknown error when finding tags for git repo"
	MsgCloneFailed        = "Unknown error when cloning git repo"
	MsgManifestMissing    = "Package doesn't contain gren.json file"
	MsgUnsupportedGren    = "Package doesn't support current Gren compiler"
	MsgCompileFailed      = "Unknown error when compiling project"
	MsgSaveDocsFailed     = "Unknown error when saving package documentation"
	MsgSearchIndexFailed  = "Unknown error when registering package for full text search"
	MsgNotifyFailed       = "Unknown error when sending notification"
	MsgDone               = "Done"
	MsgWorkspaceFailed    = "Unknown error when preparing working directory"
	MsgExistingVersionErr = "Unknown error when reading imported versions"
)

// JobStore is the job record persistence the pipeline needs.
type JobStore interface {
	Enqueue(ctx context.Context, name, url, version string, step models.Step) (models.ImportJob, error)
	ClaimNextDue(ctx context.Context) (models.ImportJob, bool, error)
	Advance(ctx context.Context, id string, next models.Step) error
	ScheduleRetry(ctx context.Context, id string, retryCount int, reason string) (bool, error)
	Stop(ctx context.Context, id, reason string) error
	SetMessage(ctx context.Context, id, msg string) error
	ListStale(ctx context.Context, before time.Time) ([]string, error)
	DeleteJob(ctx context.Context, id string) error
}

// PackageStore persists documentation and the search index.
type PackageStore interface {
	ExistingVersions(ctx context.Context, name string) ([]string, error)
	PersistBuild(ctx context.Context, p store.PersistParams) error
	Summary(ctx context.Context, name, version string) (string, error)
	RegisterForSearch(ctx context.Context, entry models.SearchEntry) (bool, error)
}

type TagLister interface {
	ListTags(ctx context.Context, url string) ([]string, error)
}

type Cloner interface {
	Clone(ctx context.Context, url, version, dir string) (string, error)
}

type Builder interface {
	Build(ctx context.Context, dir string) (*models.BuildArtifact, error)
}

type Archiver interface {
	Store(ctx context.Context, name, version string, artifact *models.BuildArtifact) ([]string, error)
}

type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) error
}

// Workspace hands out per-job working directories.
type Workspace interface {
	Path(jobID string) (string, error)
	Reset(jobID string) (string, error)
	Release(jobID string) error
}

// Deps wires the step handlers to their collaborators. Archive may be nil.
type Deps struct {
	Jobs         JobStore
	Packages     PackageStore
	Tags         TagLister
	Cloner       Cloner
	Builder      Builder
	Archive      Archiver
	Notifier     Notifier
	Workspace    Workspace
	CanonicalURL string
	Logger       *slog.Logger
}

// Steps holds one handler per pipeline step.
type Steps struct {
	Deps
	log *slog.Logger
}

func NewSteps(d Deps) *Steps {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Steps{Deps: d, log: log}
}

// Register binds every step handler to the scheduler.
func (s *Steps) Register(sch *Scheduler) {
	sch.RegisterHandler(models.StepFindMissingVersions, s.FindMissingVersions)
	sch.RegisterHandler(models.StepCloneRepo, s.CloneRepo)
	sch.RegisterHandler(models.StepBuildDocs, s.BuildDocs)
	sch.RegisterHandler(models.StepAddToSearchIndex, s.AddToSearchIndex)
	sch.RegisterHandler(models.StepNotify, s.Notify)
}

func jobAttrs(job models.ImportJob) []any {
	return []any{"job_id", job.ID, "name", job.Name, "version", job.Version, "step", job.StepCode()}
}

// FindMissingVersions enqueues a CLONE_REPO job for every released version
// that has not been imported yet.
func (s *Steps) FindMissingVersions(ctx context.Context, job models.ImportJob) Result {
	log := s.log.With(jobAttrs(job)...)

	tags, err := s.Tags.ListTags(ctx, job.URL)
	if err != nil {
		if Classify(err) == FailureNotFound {
			log.Warn("repository not found", "url", job.URL, "err", err)
			return Stop(MsgRepositoryMissing + job.URL)
		}
		log.Error("list tags failed", "err", err)
		return Retry(MsgFindTagsFailed)
	}

	existing, err := s.Packages.ExistingVersions(ctx, job.Name)
	if err != nil {
		log.Error("read imported versions failed", "err", err)
		return Retry(MsgExistingVersionErr)
	}
	seen := make(map[string]bool, len(existing)+len(tags))
	for _, v := range existing {
		seen[v] = true
	}

	enqueued := 0
	for _, tag := range tags {
		version, ok := models.NormalizeVersion(tag)
		if !ok || seen[version] {
			continue
		}
		seen[version] = true

		_, err := s.Jobs.Enqueue(ctx, job.Name, job.URL, version, models.StepCloneRepo)
		if err != nil {
			if Classify(err) == FailureDuplicateKey {
				log.Debug("version already queued", "tag", tag)
			} else {
				log.Error("enqueue version failed", "tag", tag, "err", err)
			}
			continue
		}
		telemetry.JobsEnqueued.WithLabelValues(models.StepCloneRepo.String()).Inc()
		enqueued++
	}

	log.Info("found missing versions", "tags", len(tags), "enqueued", enqueued)
	return Stop(MsgCompleted)
}

// CloneRepo checks out the job's version into a fresh working directory.
func (s *Steps) CloneRepo(ctx context.Context, job models.ImportJob) Result {
	log := s.log.With(jobAttrs(job)...)

	dir, err := s.Workspace.Reset(job.ID)
	if err != nil {
		log.Error("prepare working directory failed", "err", err)
		return Retry(MsgWorkspaceFailed)
	}
	tag, err := s.Cloner.Clone(ctx, job.URL, job.Version, dir)
	if err != nil {
		log.Error("clone failed", "url", job.URL, "err", err)
		return Retry(MsgCloneFailed)
	}
	log.Info("cloned repository", "tag", tag, "dir", dir)
	return Advance(models.StepBuildDocs)
}

// BuildDocs compiles the checked out package and stores its documentation.
func (s *Steps) BuildDocs(ctx context.Context, job models.ImportJob) Result {
	log := s.log.With(jobAttrs(job)...)

	dir, err := s.Workspace.Path(job.ID)
	if err != nil {
		log.Error("resolve working directory failed", "err", err)
		return Retry(MsgWorkspaceFailed)
	}

	artifact, err := s.Builder.Build(ctx, dir)
	if err != nil {
		return s.compileFailure(log, err)
	}
	if artifact.Manifest.Version != "" && artifact.Manifest.Version != job.Version {
		log.Warn("manifest version differs from tag", "manifest_version", artifact.Manifest.Version)
	}

	err = s.Packages.PersistBuild(ctx, store.PersistParams{
		Name:     job.Name,
		URL:      job.URL,
		Version:  job.Version,
		Artifact: artifact,
	})
	if Classify(err) == FailureDuplicateKey {
		log.Info("package version already imported")
		return Advance(models.StepAddToSearchIndex)
	}
	if err != nil {
		log.Error("save documentation failed", "err", err)
		return Retry(MsgSaveDocsFailed)
	}

	// The documentation is committed at this point; a retry would only hit
	// the duplicate key, so a failed archive copy is logged and skipped.
	if s.Archive != nil {
		if _, err := s.Archive.Store(ctx, job.Name, job.Version, artifact); err != nil {
			log.Error("archive build artifacts failed", "err", err)
		}
	}

	log.Info("compiled package", "modules", len(artifact.Modules))
	return Advance(models.StepAddToSearchIndex)
}

func (s *Steps) compileFailure(log *slog.Logger, err error) Result {
	if Classify(err) == FailureTool {
		te, _ := compiler.AsToolError(err)
		switch te.Kind {
		case compiler.KindManifestMissing:
			log.Error("package has no gren.json", "kind", te.Kind.String(), "err", err)
			return Retry(MsgManifestMissing)
		case compiler.KindVersionMismatch:
			log.Error("package does not support current compiler", "kind", te.Kind.String(), "err", err)
			return Retry(MsgUnsupportedGren)
		}
		log.Error("compile failed", "kind", te.Kind.String(), "title", te.Title, "stderr", te.Stderr, "err", err)
		return Retry(MsgCompileFailed)
	}
	log.Error("compile failed", "err", err)
	return Retry(MsgCompileFailed)
}

// AddToSearchIndex makes the version searchable if it is the latest one.
func (s *Steps) AddToSearchIndex(ctx context.Context, job models.ImportJob) Result {
	log := s.log.With(jobAttrs(job)...)

	summary, err := s.Packages.Summary(ctx, job.Name, job.Version)
	if err != nil {
		log.Error("read summary failed", "err", err)
		return Retry(MsgSearchIndexFailed)
	}
	updated, err := s.Packages.RegisterForSearch(ctx, models.SearchEntry{
		Name:    job.Name,
		Version: job.Version,
		Summary: summary,
	})
	if err != nil {
		log.Error("register for search failed", "err", err)
		return Retry(MsgSearchIndexFailed)
	}
	log.Info("registered for search", "updated", updated)
	return Advance(models.StepNotify)
}

// Notify announces the imported version on every configured channel.
func (s *Steps) Notify(ctx context.Context, job models.ImportJob) Result {
	log := s.log.With(jobAttrs(job)...)

	summary, err := s.Packages.Summary(ctx, job.Name, job.Version)
	if err != nil {
		log.Error("read summary failed", "err", err)
		return Retry(MsgNotifyFailed)
	}
	if s.Notifier != nil {
		n := notify.New(s.CanonicalURL, job.Name, job.Version, summary)
		if err := s.Notifier.Notify(ctx, n); err != nil {
			log.Error("send notification failed", "err", err)
			return Retry(MsgNotifyFailed)
		}
	}
	return Stop(MsgDone)
}
