package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quillcast/quillmail/internal/domain"
)

const emailColumns = `id, post_id, newsletter_id, status, subject, from_address, reply_to,
	recipient_filter, email_count, track_opens, track_clicks, COALESCE(error, ''),
	submitted_at, delivered_count, opened_count, failed_count, clicked_count,
	created_at, updated_at`

// EmailRepo persists Email rows. It serves both the orchestrator and
// the sending engine, and maintains the aggregate delivery counters
// that event ingestion increments.
type EmailRepo struct{ db *sql.DB }

// NewEmailRepo creates a Postgres-backed email repository.
func NewEmailRepo(db *sql.DB) *EmailRepo { return &EmailRepo{db: db} }

func (r *EmailRepo) Insert(ctx context.Context, e *domain.Email) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO emails (id, post_id, newsletter_id, status, subject, from_address,
			reply_to, recipient_filter, email_count, track_opens, track_clicks,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	`, e.ID, e.PostID, e.NewsletterID, e.Status, e.Subject, e.FromAddress,
		e.ReplyTo, e.RecipientFilter, e.EmailCount, e.TrackOpens, e.TrackClicks)
	if err != nil {
		return fmt.Errorf("insert email: %w", err)
	}
	return nil
}

func (r *EmailRepo) Get(ctx context.Context, id string) (*domain.Email, error) {
	return r.getWhere(ctx, "id = $1", id)
}

func (r *EmailRepo) GetByPostID(ctx context.Context, postID string) (*domain.Email, error) {
	return r.getWhere(ctx, "post_id = $1", postID)
}

func (r *EmailRepo) getWhere(ctx context.Context, where string, arg interface{}) (*domain.Email, error) {
	var (
		e           domain.Email
		submittedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE `+where, arg,
	).Scan(&e.ID, &e.PostID, &e.NewsletterID, &e.Status, &e.Subject, &e.FromAddress,
		&e.ReplyTo, &e.RecipientFilter, &e.EmailCount, &e.TrackOpens, &e.TrackClicks,
		&e.Error, &submittedAt, &e.DeliveredCount, &e.OpenedCount, &e.FailedCount,
		&e.ClickedCount, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get email: %w", err)
	}
	if submittedAt.Valid {
		e.SubmittedAt = &submittedAt.Time
	}
	return &e, nil
}

func (r *EmailRepo) MarkPending(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.EmailPending, "")
}

func (r *EmailRepo) MarkSubmitting(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.EmailSubmitting, "")
}

func (r *EmailRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	return r.setStatus(ctx, id, domain.EmailFailed, errMsg)
}

func (r *EmailRepo) MarkSubmitted(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE emails SET status = $2, error = NULL, submitted_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, domain.EmailSubmitted)
	if err != nil {
		return fmt.Errorf("mark email submitted: %w", err)
	}
	return nil
}

func (r *EmailRepo) setStatus(ctx context.Context, id string, status domain.EmailStatus, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE emails SET status = $2, error = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1
	`, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("update email status: %w", err)
	}
	return nil
}

func (r *EmailRepo) UpdateEmailCount(ctx context.Context, id string, count int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE emails SET email_count = $2, updated_at = NOW() WHERE id = $1`,
		id, count)
	if err != nil {
		return fmt.Errorf("update email count: %w", err)
	}
	return nil
}

// IncrementForMessage bumps the aggregate counter matching the event
// type on the email that owns the provider message id. Events whose
// type has no counter are a no-op.
func (r *EmailRepo) IncrementForMessage(ctx context.Context, messageID string, typ domain.MailEventType) error {
	var column string
	switch typ {
	case domain.EventDelivered:
		column = "delivered_count"
	case domain.EventOpened:
		column = "opened_count"
	case domain.EventClicked:
		column = "clicked_count"
	case domain.EventFailed:
		column = "failed_count"
	default:
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE emails SET `+column+` = `+column+` + 1, updated_at = NOW()
		WHERE id = (SELECT email_id FROM email_batches WHERE provider_id = $1)
	`, messageID)
	if err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}
	return nil
}
