// Package sending is the batch sending engine. It partitions an
// email's recipient segment into deterministic, size-bounded batches,
// excludes suppressed addresses at submission time, submits each batch
// to the bulk provider under a bounded worker pool with rate pacing,
// and retries transient failures with exponential backoff. The email
// reaches a terminal status only after every batch has.
package sending
