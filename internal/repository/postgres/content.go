package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quillcast/quillmail/internal/sending"
)

// ContentRenderer serves rendered post content straight from the posts
// table, where the CMS stores the html and plaintext renditions.
type ContentRenderer struct{ db *sql.DB }

// NewContentRenderer creates a database-backed content renderer.
func NewContentRenderer(db *sql.DB) *ContentRenderer { return &ContentRenderer{db: db} }

func (r *ContentRenderer) Render(ctx context.Context, postID string) (sending.Content, error) {
	var c sending.Content
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(html, ''), COALESCE(plaintext, '') FROM posts WHERE id = $1`,
		postID,
	).Scan(&c.HTML, &c.Text)
	if err == sql.ErrNoRows {
		return c, fmt.Errorf("render content: post %s not found", postID)
	}
	if err != nil {
		return c, fmt.Errorf("render content: %w", err)
	}
	return c, nil
}
