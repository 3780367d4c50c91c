package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quillcast/quillmail/internal/domain"
)

// EventRepo stores raw mail events keyed by the provider's event id.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed mail event repository.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Insert appends the event. The provider event id is the primary key;
// a conflicting insert is the duplicate-delivery signal and returns
// false without touching the stored row.
func (r *EventRepo) Insert(ctx context.Context, evt *domain.MailEvent) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO mail_events (id, type, message_id, recipient, occurred_at, raw, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO NOTHING
	`, evt.ID, evt.Type, evt.MessageID, evt.Recipient, evt.OccurredAt, evt.Raw)
	if err != nil {
		return false, fmt.Errorf("insert mail event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert mail event: %w", err)
	}
	return n > 0, nil
}

// ListForRecipient returns stored events for one address, newest
// first, for support tooling.
func (r *EventRepo) ListForRecipient(ctx context.Context, recipient string, limit int) ([]domain.MailEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, COALESCE(message_id, ''), recipient, occurred_at
		FROM mail_events
		WHERE recipient = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, recipient, limit)
	if err != nil {
		return nil, fmt.Errorf("list mail events: %w", err)
	}
	defer rows.Close()

	var out []domain.MailEvent
	for rows.Next() {
		var e domain.MailEvent
		if err := rows.Scan(&e.ID, &e.Type, &e.MessageID, &e.Recipient, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan mail event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
