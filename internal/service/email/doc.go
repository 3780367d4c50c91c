// Package email is the send orchestrator: it validates that a post may
// be emailed, creates the durable Email record, and hands the actual
// delivery to the batch sending engine via the background job queue.
// Validation failures surface synchronously; everything after the
// Email row exists is recorded on the row, never thrown back.
package email
