package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"writing-comparator/internal/domain"
)

type jobRepository struct {
	pool  PgxPool
	now   func() time.Time
	lease time.Duration
}

func NewJobRepository(pool PgxPool) domain.JobRepository {
	return &jobRepository{pool: pool, now: time.Now, lease: domain.JobLeaseTimeout}
}

func (r *jobRepository) Enqueue(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO text_jobs (id, job_type, payload, status, attempts, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	payloadBytes, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = getExecutor(ctx, r.pool).Exec(ctx, query,
		job.ID,
		job.JobType,
		payloadBytes,
		job.Status,
		job.Attempts,
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// AcquireNextJob flips the oldest new job to processing and bumps its attempt count in
// one statement, so concurrent workers never claim the same row. A processing job whose
// lease expired (its worker died mid-run) is claimed again the same way.
func (r *jobRepository) AcquireNextJob(ctx context.Context) (*domain.Job, error) {
	query := `
		WITH next_job AS (
			SELECT id
			FROM text_jobs
			WHERE status = 'new'
			   OR (status = 'processing' AND updated_at < $2)
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE text_jobs
		SET status = 'processing', attempts = text_jobs.attempts + 1, updated_at = $1
		FROM next_job
		WHERE text_jobs.id = next_job.id
		RETURNING text_jobs.id, text_jobs.job_type, text_jobs.payload, text_jobs.status, text_jobs.attempts,
		          text_jobs.error_message, text_jobs.created_at, text_jobs.updated_at
	`
	now := r.now()
	job, err := r.scanJob(getExecutor(ctx, r.pool).QueryRow(ctx, query, now, now.Add(-r.lease)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire next job: %w", err)
	}
	return job, nil
}

func (r *jobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMessage *string) error {
	query := `
		UPDATE text_jobs
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`
	_, err := getExecutor(ctx, r.pool).Exec(ctx, query, status, errorMessage, r.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

func (r *jobRepository) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `
		SELECT id, job_type, payload, status, attempts, error_message, created_at, updated_at
		FROM text_jobs
		WHERE id = $1
	`
	job, err := r.scanJob(getExecutor(ctx, r.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (r *jobRepository) scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var payloadBytes []byte

	err := row.Scan(
		&job.ID,
		&job.JobType,
		&payloadBytes,
		&job.Status,
		&job.Attempts,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(payloadBytes) > 0 {
		if err := json.Unmarshal(payloadBytes, &job.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}
	return &job, nil
}
