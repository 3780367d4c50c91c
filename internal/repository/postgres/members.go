package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quillcast/quillmail/internal/domain"
)

// MemberRepo resolves recipient segments from the members table owned
// by the surrounding CMS.
type MemberRepo struct{ db *sql.DB }

// NewMemberRepo creates a Postgres-backed member repository.
func NewMemberRepo(db *sql.DB) *MemberRepo { return &MemberRepo{db: db} }

// ListForFilter resolves a recipient filter to concrete members
// ordered by id. The ordering is part of the contract: partitioning
// must be deterministic across retries and restarts.
func (r *MemberRepo) ListForFilter(ctx context.Context, filter string) ([]domain.Member, error) {
	// Paid-only segments narrow the default active segment. Anything
	// unrecognized falls back to all active subscribers.
	status := "active"
	if filter == "status:paid" {
		status = "paid"
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, uuid, email, COALESCE(name, '')
		FROM members
		WHERE status = $1 AND subscribed = true
		ORDER BY id
	`, status)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.UUID, &m.Email, &m.Name); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PostRepo reads posts for send validation.
type PostRepo struct{ db *sql.DB }

// NewPostRepo creates a Postgres-backed post repository.
func NewPostRepo(db *sql.DB) *PostRepo { return &PostRepo{db: db} }

func (r *PostRepo) Get(ctx context.Context, id string) (*domain.Post, error) {
	var (
		p           domain.Post
		publishedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, COALESCE(newsletter_id, ''), COALESCE(email_recipient_filter, ''), published_at
		FROM posts WHERE id = $1
	`, id).Scan(&p.ID, &p.Title, &p.NewsletterID, &p.RecipientFilter, &publishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	if publishedAt.Valid {
		p.PublishedAt = &publishedAt.Time
	}
	return &p, nil
}

// NewsletterRepo reads newsletters for send validation.
type NewsletterRepo struct{ db *sql.DB }

// NewNewsletterRepo creates a Postgres-backed newsletter repository.
func NewNewsletterRepo(db *sql.DB) *NewsletterRepo { return &NewsletterRepo{db: db} }

func (r *NewsletterRepo) Get(ctx context.Context, id string) (*domain.Newsletter, error) {
	var n domain.Newsletter
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, status, COALESCE(sender_name, ''), COALESCE(sender_email, ''),
			COALESCE(sender_reply_to, ''), track_opens, track_clicks
		FROM newsletters WHERE id = $1
	`, id).Scan(&n.ID, &n.Name, &n.Status, &n.SenderName, &n.SenderEmail,
		&n.ReplyTo, &n.TrackOpens, &n.TrackClicks)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get newsletter: %w", err)
	}
	return &n, nil
}
