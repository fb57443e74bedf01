package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gren-lang/package-registry/internal/backoff"
	"github.com/gren-lang/package-registry/internal/clock"
	"github.com/gren-lang/package-registry/internal/models"
	"github.com/gren-lang/package-registry/internal/notify"
	"github.com/gren-lang/package-registry/internal/store"
)

// memStore mirrors the semantics of store.Store in memory.
type memStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	retries backoff.Table

	jobs     map[string]*models.ImportJob
	versions map[string][]string
	summary  map[string]string
	search   map[string]models.SearchEntry

	persistErr error
	summaryErr error
}

func newMemStore(clk clock.Clock) *memStore {
	return &memStore{
		clock:    clk,
		retries:  backoff.DefaultTable(),
		jobs:     map[string]*models.ImportJob{},
		versions: map[string][]string{},
		summary:  map[string]string{},
		search:   map[string]models.SearchEntry{},
	}
}

func (m *memStore) Enqueue(_ context.Context, name, url, version string, step models.Step) (models.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Name == name && j.Version == version {
			return models.ImportJob{}, store.ErrDuplicateKey
		}
	}
	now := m.clock.Now()
	job := &models.ImportJob{
		ID: uuid.NewString(), Name: name, URL: url, Version: version, Step: step,
		InProgress: true, ResumeAt: now, Message: models.MessageWaiting, CreatedAt: now,
	}
	m.jobs[job.ID] = job
	return *job, nil
}

// put inserts a job as-is, for states Enqueue cannot produce.
func (m *memStore) put(job models.ImportJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = &job
}

func (m *memStore) ClaimNextDue(context.Context) (models.ImportJob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*models.ImportJob
	now := m.clock.Now()
	for _, j := range m.jobs {
		if j.InProgress && !j.ResumeAt.After(now) {
			due = append(due, j)
		}
	}
	if len(due) == 0 {
		return models.ImportJob{}, false, nil
	}
	sort.Slice(due, func(a, b int) bool {
		if !due[a].ResumeAt.Equal(due[b].ResumeAt) {
			return due[a].ResumeAt.Before(due[b].ResumeAt)
		}
		if !due[a].CreatedAt.Equal(due[b].CreatedAt) {
			return due[a].CreatedAt.Before(due[b].CreatedAt)
		}
		return due[a].Version < due[b].Version
	})
	return *due[0], true, nil
}

func (m *memStore) live(id string) (*models.ImportJob, error) {
	j, ok := m.jobs[id]
	if !ok || !j.InProgress {
		return nil, fmt.Errorf("job %s: %w", id, store.ErrNotFound)
	}
	return j, nil
}

func (m *memStore) Advance(_ context.Context, id string, next models.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.live(id)
	if err != nil {
		return err
	}
	j.Step, j.RetryCount, j.ResumeAt, j.Message = next, 0, m.clock.Now(), models.MessageWaiting
	return nil
}

func (m *memStore) ScheduleRetry(ctx context.Context, id string, retryCount int, reason string) (bool, error) {
	delay, ok := m.retries.Delay(retryCount)
	if !ok {
		return true, m.Stop(ctx, id, fmt.Sprintf("%s, giving up after %d retries", reason, retryCount))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.live(id)
	if err != nil {
		return false, err
	}
	j.RetryCount++
	j.ResumeAt = m.clock.Now().Add(delay)
	j.Message = reason + ", will retry"
	return false, nil
}

func (m *memStore) Stop(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, err := m.live(id); err == nil {
		j.InProgress, j.Message, j.ResumeAt = false, reason, m.clock.Now()
	}
	return nil
}

func (m *memStore) SetMessage(_ context.Context, id, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.Message = msg
	}
	return nil
}

func (m *memStore) ListStale(_ context.Context, before time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, j := range m.jobs {
		if !j.InProgress && j.ResumeAt.Before(before) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) DeleteJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok && !j.InProgress {
		delete(m.jobs, id)
	}
	return nil
}

func (m *memStore) job(id string) models.ImportJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

func (m *memStore) all() []models.ImportJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ImportJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Version < out[b].Version })
	return out
}

func (m *memStore) ExistingVersions(_ context.Context, name string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.versions[name]...), nil
}

func (m *memStore) PersistBuild(_ context.Context, p store.PersistParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.persistErr != nil {
		return m.persistErr
	}
	for _, v := range m.versions[p.Name] {
		if v == p.Version {
			return store.ErrDuplicateKey
		}
	}
	m.versions[p.Name] = append(m.versions[p.Name], p.Version)
	m.summary[p.Name+"@"+p.Version] = p.Artifact.Manifest.Summary
	return nil
}

func (m *memStore) Summary(_ context.Context, name, version string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.summaryErr != nil {
		return "", m.summaryErr
	}
	s, ok := m.summary[name+"@"+version]
	if !ok {
		return "", store.ErrNotFound
	}
	return s, nil
}

func (m *memStore) RegisterForSearch(_ context.Context, e models.SearchEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.search[e.Name]
	if ok && !models.VersionGreater(e.Version, cur.Version) {
		return false, nil
	}
	m.search[e.Name] = e
	return true, nil
}

type fakeTags struct {
	tags map[string][]string
	err  error
}

func (f *fakeTags) ListTags(_ context.Context, url string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tags[url], nil
}

type fakeCloner struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (f *fakeCloner) Clone(_ context.Context, url, version, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url+"@"+version)
	if f.err != nil {
		return "", f.err
	}
	return version, nil
}

type fakeBuilder struct {
	err error
}

func (f *fakeBuilder) Build(context.Context, string) (*models.BuildArtifact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.BuildArtifact{
		Manifest: models.Manifest{Name: "acme/widgets", Summary: "Widgets for everyone"},
		Readme:   "# Widgets",
		Modules:  []models.ModuleDocs{{Name: "Widget"}},
	}, nil
}

type fakeArchive struct {
	err    error
	stored []string
}

func (f *fakeArchive) Store(_ context.Context, name, version string, _ *models.BuildArtifact) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.stored = append(f.stored, name+"@"+version)
	return []string{name + "/" + version}, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	err  error
	sent []notify.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}
