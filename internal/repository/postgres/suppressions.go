package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/quillcast/quillmail/internal/domain"
)

// SuppressionRepo persists the suppression list. The most-severe-
// reason-wins merge is enforced here so concurrent ingestion workers
// cannot downgrade a complaint to a plain delivery failure.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) Get(ctx context.Context, email string) (*domain.SuppressionEntry, error) {
	var e domain.SuppressionEntry
	err := r.db.QueryRowContext(ctx,
		`SELECT email, reason, created_at FROM suppressions WHERE email = $1`,
		email,
	).Scan(&e.Email, &e.Reason, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get suppression: %w", err)
	}
	return &e, nil
}

// GetBulk returns entries for all suppressed addresses in the input in
// one query. Absent addresses are simply missing from the map.
func (r *SuppressionRepo) GetBulk(ctx context.Context, emails []string) (map[string]*domain.SuppressionEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT email, reason, created_at FROM suppressions WHERE email = ANY($1)`,
		pq.Array(emails))
	if err != nil {
		return nil, fmt.Errorf("bulk get suppressions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*domain.SuppressionEntry)
	for rows.Next() {
		var e domain.SuppressionEntry
		if err := rows.Scan(&e.Email, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		out[e.Email] = &e
	}
	return out, rows.Err()
}

func (r *SuppressionRepo) Upsert(ctx context.Context, entry *domain.SuppressionEntry) error {
	// A spam entry is sticky: only an equally or more severe reason may
	// replace what is recorded.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppressions (email, reason, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE
		SET reason = EXCLUDED.reason, created_at = EXCLUDED.created_at
		WHERE suppressions.reason <> 'spam' OR EXCLUDED.reason = 'spam'
	`, entry.Email, entry.Reason, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert suppression: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) Remove(ctx context.Context, email string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM suppressions WHERE email = $1`, email); err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) List(ctx context.Context, limit, offset int) ([]domain.SuppressionEntry, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suppressions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT email, reason, created_at
		FROM suppressions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.SuppressionEntry
	for rows.Next() {
		var e domain.SuppressionEntry
		if err := rows.Scan(&e.Email, &e.Reason, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}
