package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maauso/smartdub-api/internal/job"
)

var _ job.Repository = (*JobRepository)(nil)

// JobRepository is a job.Repository backed by the jobs table.
type JobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a JobRepository.
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `id, account_code, input_path, output_ref, target_language, status,
failed_stage, error, created_at, updated_at, started_at, completed_at`

func (r *JobRepository) Create(ctx context.Context, j *job.Job) error {
	const q = `
INSERT INTO jobs (account_code, input_path, target_language, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, clock_timestamp(), clock_timestamp())
RETURNING id, created_at`

	var (
		id        int64
		createdAt time.Time
	)
	err := r.pool.QueryRow(ctx, q,
		j.AccountCode, j.InputPath, j.TargetLanguage, string(job.StatusQueued),
	).Scan(&id, &createdAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	j.ID = id
	j.CreatedAt = createdAt
	j.UpdatedAt = createdAt
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id int64) (*job.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	j, err := scanJob(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, job.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select job: %w", err)
	}
	return j, nil
}

// ClaimNext locks the oldest queued row, skipping rows held by concurrent
// claimers, and moves it to processing in the same statement.
func (r *JobRepository) ClaimNext(ctx context.Context) (*job.Job, error) {
	q := `
UPDATE jobs SET status = 'processing', started_at = now(), updated_at = now()
WHERE id = (
    SELECT id FROM jobs
    WHERE status = 'queued'
    ORDER BY created_at, id
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns

	j, err := scanJob(r.pool.QueryRow(ctx, q))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, job.ErrNoQueuedJobs
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return j, nil
}

func (r *JobRepository) Finish(ctx context.Context, j *job.Job) error {
	snap := j.Clone()
	switch snap.Status {
	case job.StatusDone:
		if snap.OutputRef == "" {
			return job.ErrMissingOutput
		}
	case job.StatusError:
	default:
		return job.ErrInvalidTransition
	}

	const q = `
UPDATE jobs
SET status = $2, output_ref = $3, failed_stage = $4, error = $5, updated_at = $6, completed_at = $7
WHERE id = $1 AND status = 'processing'`

	tag, err := r.pool.Exec(ctx, q,
		snap.ID, string(snap.Status), snap.OutputRef, snap.FailedStage, snap.Error,
		snap.UpdatedAt, nullTime(snap.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.FindByID(ctx, snap.ID); err != nil {
		return err
	}
	return job.ErrInvalidTransition
}

func (r *JobRepository) ListByStatus(ctx context.Context, status job.Status) ([]*job.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE status = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, q, string(status))
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var result []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

func (r *JobRepository) CountByStatus(ctx context.Context, status job.Status) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM jobs WHERE status = $1`, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j                      job.Job
		status                 string
		startedAt, completedAt *time.Time
	)
	err := row.Scan(
		&j.ID, &j.AccountCode, &j.InputPath, &j.OutputRef, &j.TargetLanguage, &status,
		&j.FailedStage, &j.Error, &j.CreatedAt, &j.UpdatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Status = job.Status(status)
	if startedAt != nil {
		j.StartedAt = *startedAt
	}
	if completedAt != nil {
		j.CompletedAt = *completedAt
	}
	return &j, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
