package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quillcast/quillmail/internal/domain"
)

// JobRepo is the durable store behind the background job queue.
type JobRepo struct{ db *sql.DB }

// NewJobRepo creates a Postgres-backed job repository.
func NewJobRepo(db *sql.DB) *JobRepo { return &JobRepo{db: db} }

// Insert persists a queued job. The partial unique index on (name)
// WHERE queue_entry = 1 makes the one-live-instance-per-name guarantee
// a database property; a conflicting insert returns false.
func (r *JobRepo) Insert(ctx context.Context, job *domain.Job) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, name, status, method, metadata, queue_entry, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (name) WHERE queue_entry = 1 DO NOTHING
	`, job.ID, job.Name, job.Status, job.Method, job.Metadata, job.QueueEntry)
	if err != nil {
		return false, fmt.Errorf("insert job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert job: %w", err)
	}
	return n > 0, nil
}

// ClaimNext atomically claims the oldest queued job. FOR UPDATE SKIP
// LOCKED lets concurrent workers claim distinct jobs without blocking
// each other; nil means the queue is empty.
func (r *JobRepo) ClaimNext(ctx context.Context, workerID string) (*domain.Job, error) {
	var job domain.Job
	err := r.db.QueryRowContext(ctx, `
		UPDATE jobs SET status = $2, started_at = NOW()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = $1 AND queue_entry = 1
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, name, status, method, metadata, queue_entry, created_at
	`, domain.JobQueued, domain.JobStarted,
	).Scan(&job.ID, &job.Name, &job.Status, &job.Method, &job.Metadata,
		&job.QueueEntry, &job.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &job, nil
}

// RequeueStale returns claims abandoned by dead workers to the queue.
// Only started rows still holding their queue entry qualify; rows that
// finished or failed have already released or cleared it.
func (r *JobRepo) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, started_at = NULL
		WHERE status = $2 AND queue_entry = 1
		  AND started_at < NOW() - make_interval(secs => $3)
	`, domain.JobQueued, domain.JobStarted, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return int(n), nil
}

func (r *JobRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// MarkFailed records the failure and clears the queue entry marker so
// the row stays inspectable but cannot be claimed again and no longer
// blocks a fresh job with the same name.
func (r *JobRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = $2, error = $3, queue_entry = 0, finished_at = NOW()
		WHERE id = $1
	`, id, domain.JobFailed, errMsg)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}
