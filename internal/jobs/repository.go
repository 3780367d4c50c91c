package jobs

import (
	"context"
	"time"

	"github.com/quillcast/quillmail/internal/domain"
)

// Repository defines the durable storage contract for the job queue.
type Repository interface {
	// Insert persists a queued job. Returns false when a live job with
	// the same name already exists (the uniqueness guarantee).
	Insert(ctx context.Context, job *domain.Job) (bool, error)

	// ClaimNext atomically claims the oldest queued job for execution.
	// Exactly one caller wins a given job; nil means the queue is empty.
	ClaimNext(ctx context.Context, workerID string) (*domain.Job, error)

	// Delete removes a completed job.
	Delete(ctx context.Context, id string) error

	// MarkFailed records the failure and clears the queue entry marker
	// so the row stays visible for inspection without being re-claimed.
	MarkFailed(ctx context.Context, id, errMsg string) error

	// RequeueStale returns started jobs whose claim is older than the
	// threshold to queued. A worker that dies mid-execution leaves its
	// claim behind; without this the row blocks same-name jobs forever.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int, error)
}
