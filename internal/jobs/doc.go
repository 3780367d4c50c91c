// Package jobs is a durable background work queue. Work is persisted
// as Job rows, claimed atomically by a bounded worker pool, and
// executed at-least-once. A job row is deleted on success and left in
// place on failure so an operator or higher-level retry logic can
// re-submit it; the queue itself never retries business work.
package jobs
