package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/quillcast/quillmail/internal/domain"
)

// BatchRepo persists email batches and their frozen recipient
// membership.
type BatchRepo struct{ db *sql.DB }

// NewBatchRepo creates a Postgres-backed batch repository.
func NewBatchRepo(db *sql.DB) *BatchRepo { return &BatchRepo{db: db} }

func (r *BatchRepo) ListForEmail(ctx context.Context, emailID string) ([]domain.EmailBatch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email_id, ordinal, COALESCE(provider_id, ''), status, attempts,
			COALESCE(error, ''), created_at, updated_at
		FROM email_batches
		WHERE email_id = $1
		ORDER BY ordinal
	`, emailID)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []domain.EmailBatch
	for rows.Next() {
		var b domain.EmailBatch
		if err := rows.Scan(&b.ID, &b.EmailID, &b.Ordinal, &b.ProviderID, &b.Status,
			&b.Attempts, &b.Error, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Create inserts the batch and its full membership in one transaction,
// so a crash can never leave a batch with partial membership.
func (r *BatchRepo) Create(ctx context.Context, batch *domain.EmailBatch, recipients []domain.Recipient) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create batch: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO email_batches (id, email_id, ordinal, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, NOW(), NOW())
	`, batch.ID, batch.EmailID, batch.Ordinal, batch.Status)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	memberIDs := make([]string, len(recipients))
	memberUUIDs := make([]string, len(recipients))
	emails := make([]string, len(recipients))
	names := make([]string, len(recipients))
	for i, rec := range recipients {
		memberIDs[i] = rec.MemberID
		memberUUIDs[i] = rec.MemberUUID
		emails[i] = rec.Email
		names[i] = rec.Name
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO email_recipients (batch_id, member_id, member_uuid, email, name)
		SELECT $1, UNNEST($2::text[]), UNNEST($3::text[]), UNNEST($4::text[]), UNNEST($5::text[])
	`, batch.ID, pq.Array(memberIDs), pq.Array(memberUUIDs), pq.Array(emails), pq.Array(names))
	if err != nil {
		return fmt.Errorf("insert recipients: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create batch: %w", err)
	}
	return nil
}

func (r *BatchRepo) Recipients(ctx context.Context, batchID string) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT batch_id, member_id, member_uuid, email, COALESCE(name, '')
		FROM email_recipients
		WHERE batch_id = $1
		ORDER BY member_id
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var rec domain.Recipient
		if err := rows.Scan(&rec.BatchID, &rec.MemberID, &rec.MemberUUID, &rec.Email, &rec.Name); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *BatchRepo) MarkSubmitting(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE email_batches SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, domain.BatchSubmitting)
	if err != nil {
		return fmt.Errorf("mark batch submitting: %w", err)
	}
	return nil
}

func (r *BatchRepo) MarkSubmitted(ctx context.Context, id, providerID string, attempts int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_batches
		SET status = $2, provider_id = NULLIF($3, ''), attempts = $4, error = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, domain.BatchSubmitted, providerID, attempts)
	if err != nil {
		return fmt.Errorf("mark batch submitted: %w", err)
	}
	return nil
}

func (r *BatchRepo) MarkFailed(ctx context.Context, id, errMsg string, attempts int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_batches
		SET status = $2, error = $3, attempts = $4, updated_at = NOW()
		WHERE id = $1
	`, id, domain.BatchFailed, errMsg, attempts)
	if err != nil {
		return fmt.Errorf("mark batch failed: %w", err)
	}
	return nil
}
