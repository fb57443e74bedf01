package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gren-lang/package-registry/internal/models"
)

const jobColumns = `id, name, url, version, step, in_progress, retry, resume_at, message, created_at`

// Enqueue registers a new in-progress job that is due immediately. It returns
// ErrDuplicateKey, leaving the existing row untouched, when a job for the same
// name and version already exists.
func (s *Store) Enqueue(ctx context.Context, name, url, version string, step models.Step) (models.ImportJob, error) {
	now := s.clock.Now()
	job := models.ImportJob{
		ID:         uuid.New().String(),
		Name:       name,
		URL:        url,
		Version:    version,
		Step:       step,
		InProgress: true,
		ResumeAt:   now,
		Message:    models.MessageWaiting,
		CreatedAt:  now,
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO package_import_job (id, name, url, version, step, in_progress, retry, resume_at, message, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, 0, $6, $7, $6)
		ON CONFLICT (name, version) DO NOTHING
	`, job.ID, job.Name, job.URL, job.Version, job.Step.String(), now, job.Message)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ImportJob{}, ErrDuplicateKey
		}
		return models.ImportJob{}, fmt.Errorf("insert job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ImportJob{}, ErrDuplicateKey
	}
	return job, nil
}

// ClaimNextDue returns the in-progress job with the earliest resume time that
// has passed. found is false when nothing is due.
func (s *Store) ClaimNextDue(ctx context.Context) (job models.ImportJob, found bool, err error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM package_import_job
		WHERE in_progress AND resume_at <= $1
		ORDER BY resume_at, created_at
		LIMIT 1
	`, s.clock.Now())
	job, err = scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ImportJob{}, false, nil
	}
	if err != nil {
		return models.ImportJob{}, false, fmt.Errorf("claim next job: %w", err)
	}
	return job, true, nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (models.ImportJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM package_import_job WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ImportJob{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.ImportJob{}, fmt.Errorf("scan job: %w", err)
	}
	return job, nil
}

// ListAll returns every job, oldest first.
func (s *Store) ListAll(ctx context.Context) ([]models.ImportJob, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM package_import_job ORDER BY created_at, name, version`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Advance moves a job to its next step, resetting its retry count and making
// it due immediately.
func (s *Store) Advance(ctx context.Context, id string, next models.Step) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE package_import_job
		SET step = $2, retry = 0, resume_at = $3, message = $4
		WHERE id = $1 AND in_progress
	`, id, next.String(), s.clock.Now(), models.MessageWaiting)
	if err != nil {
		return fmt.Errorf("advance job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("advance job %s: %w", id, ErrNotFound)
	}
	return nil
}

// ScheduleRetry pushes a failed job back by the delay the retry table assigns
// to retryCount and increments its retry count. When the table is exhausted
// the job is stopped instead and stopped is true.
func (s *Store) ScheduleRetry(ctx context.Context, id string, retryCount int, reason string) (stopped bool, err error) {
	delay, ok := s.retries.Delay(retryCount)
	if !ok {
		msg := fmt.Sprintf("%s, giving up after %d retries", reason, retryCount)
		return true, s.Stop(ctx, id, msg)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE package_import_job
		SET message = $2, retry = retry + 1, resume_at = $3
		WHERE id = $1 AND in_progress
	`, id, reason+", will retry", s.clock.Now().Add(delay))
	if err != nil {
		return false, fmt.Errorf("schedule retry for job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return false, fmt.Errorf("schedule retry for job %s: %w", id, ErrNotFound)
	}
	return false, nil
}

// Stop takes a job out of the pipeline for good.
func (s *Store) Stop(ctx context.Context, id, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE package_import_job
		SET in_progress = FALSE, message = $2, resume_at = $3
		WHERE id = $1 AND in_progress
	`, id, reason, s.clock.Now())
	if err != nil {
		return fmt.Errorf("stop job %s: %w", id, err)
	}
	return nil
}

// SetMessage replaces the human readable status of a job.
func (s *Store) SetMessage(ctx context.Context, id, msg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE package_import_job SET message = $2 WHERE id = $1`, id, msg)
	if err != nil {
		return fmt.Errorf("set message for job %s: %w", id, err)
	}
	return nil
}

// ListStale returns the ids of stopped jobs whose last transition happened
// before the given instant.
func (s *Store) ListStale(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM package_import_job
		WHERE NOT in_progress AND resume_at < $1
		ORDER BY resume_at
	`, before)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// DeleteJob removes a stopped job. In-progress jobs are never deleted.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM package_import_job WHERE id = $1 AND NOT in_progress`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func scanJob(row pgx.Row) (models.ImportJob, error) {
	var (
		job  models.ImportJob
		step string
	)
	if err := row.Scan(&job.ID, &job.Name, &job.URL, &job.Version, &step, &job.InProgress, &job.RetryCount, &job.ResumeAt, &job.Message, &job.CreatedAt); err != nil {
		return models.ImportJob{}, err
	}
	// An unparsable step stays StepUnknown; the scheduler stops such jobs.
	var err error
	if job.Step, err = models.ParseStep(step); err != nil {
		job.RawStep = step
	}
	job.ResumeAt = job.ResumeAt.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	return job, nil
}
