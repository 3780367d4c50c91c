package domain

import "time"

// NewsletterStatus enumerates newsletter lifecycle states. Only active
// newsletters accept sends.
type NewsletterStatus string

const (
	NewsletterActive   NewsletterStatus = "active"
	NewsletterArchived NewsletterStatus = "archived"
)

// Newsletter is the publication an email is sent on behalf of. Owned
// by the surrounding CMS; the pipeline reads it to validate sends and
// compute sender headers.
type Newsletter struct {
	ID          string           `json:"id" db:"id"`
	Name        string           `json:"name" db:"name"`
	Status      NewsletterStatus `json:"status" db:"status"`
	SenderName  string           `json:"sender_name" db:"sender_name"`
	SenderEmail string           `json:"sender_email" db:"sender_email"`
	ReplyTo     string           `json:"sender_reply_to" db:"sender_reply_to"`
	TrackOpens  bool             `json:"track_opens" db:"track_opens"`
	TrackClicks bool             `json:"track_clicks" db:"track_clicks"`
}

// Post is the published article an email delivers. Read-only here;
// content rendering is the renderer collaborator's job.
type Post struct {
	ID              string     `json:"id" db:"id"`
	Title           string     `json:"title" db:"title"`
	NewsletterID    string     `json:"newsletter_id" db:"newsletter_id"`
	RecipientFilter string     `json:"email_recipient_filter" db:"email_recipient_filter"`
	PublishedAt     *time.Time `json:"published_at" db:"published_at"`
}

// Member is a subscriber eligible for newsletter email. The UUID is
// the public recipient token used in tracked links.
type Member struct {
	ID    string `json:"id" db:"id"`
	UUID  string `json:"uuid" db:"uuid"`
	Email string `json:"email" db:"email"`
	Name  string `json:"name,omitempty" db:"name"`
}
