package domain

import (
	"encoding/json"
	"time"
)

// JobStatus enumerates the lifecycle of a queued unit of work.
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobStarted  JobStatus = "started"
	JobFinished JobStatus = "finished"
	JobFailed   JobStatus = "failed"
)

// QueueEntryPresent marks a job as still queued or running. Completed
// jobs are deleted; failed jobs keep the marker cleared so operators
// can inspect and re-submit them.
const QueueEntryPresent = 1

// Job is a durable unit of background work. Name is globally unique
// among live (queued or executing) jobs.
type Job struct {
	ID         string          `json:"id" db:"id"`
	Name       string          `json:"name" db:"name"`
	Status     JobStatus       `json:"status" db:"status"`
	Method     string          `json:"method" db:"method"`
	Metadata   json.RawMessage `json:"metadata" db:"metadata"`
	QueueEntry int             `json:"queue_entry" db:"queue_entry"`
	Error      string          `json:"error,omitempty" db:"error"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	StartedAt  *time.Time      `json:"started_at" db:"started_at"`
	FinishedAt *time.Time      `json:"finished_at" db:"finished_at"`
}
