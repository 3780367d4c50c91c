package domain

import "time"

// EmailStatus enumerates the lifecycle states of a bulk email send.
type EmailStatus string

const (
	EmailPending    EmailStatus = "pending"
	EmailSubmitting EmailStatus = "submitting"
	EmailSubmitted  EmailStatus = "submitted"
	EmailFailed     EmailStatus = "failed"
)

// Email represents one send attempt of a post to a newsletter's
// recipient segment. Created by the orchestrator, mutated only by the
// sending engine and the retry path. Never deleted.
type Email struct {
	ID              string      `json:"id" db:"id"`
	PostID          string      `json:"post_id" db:"post_id"`
	NewsletterID    string      `json:"newsletter_id" db:"newsletter_id"`
	Status          EmailStatus `json:"status" db:"status"`
	Subject         string      `json:"subject" db:"subject"`
	FromAddress     string      `json:"from_address" db:"from_address"`
	ReplyTo         string      `json:"reply_to" db:"reply_to"`
	RecipientFilter string      `json:"recipient_filter" db:"recipient_filter"`
	EmailCount      int         `json:"email_count" db:"email_count"`
	TrackOpens      bool        `json:"track_opens" db:"track_opens"`
	TrackClicks     bool        `json:"track_clicks" db:"track_clicks"`
	Error           string      `json:"error,omitempty" db:"error"`
	SubmittedAt     *time.Time  `json:"submitted_at" db:"submitted_at"`

	// Aggregate delivery stats, maintained by event ingestion.
	DeliveredCount int `json:"delivered_count" db:"delivered_count"`
	OpenedCount    int `json:"opened_count" db:"opened_count"`
	FailedCount    int `json:"failed_count" db:"failed_count"`
	ClickedCount   int `json:"clicked_count" db:"clicked_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsTerminalSuccess reports whether the email finished submitting and
// must not be re-sent.
func (e *Email) IsTerminalSuccess() bool {
	return e.Status == EmailSubmitted
}

// BatchStatus enumerates the lifecycle states of a single provider
// submission.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchSubmitting BatchStatus = "submitting"
	BatchSubmitted  BatchStatus = "submitted"
	BatchFailed     BatchStatus = "failed"
)

// EmailBatch is a bounded slice of an Email's recipient set submitted
// to the provider in one call. Recipient membership is immutable after
// creation; a retry re-submits the same membership minus anyone
// suppressed since the first attempt.
type EmailBatch struct {
	ID         string      `json:"id" db:"id"`
	EmailID    string      `json:"email_id" db:"email_id"`
	Ordinal    int         `json:"ordinal" db:"ordinal"`
	ProviderID string      `json:"provider_id,omitempty" db:"provider_id"`
	Status     BatchStatus `json:"status" db:"status"`
	Attempts   int         `json:"attempts" db:"attempts"`
	Error      string      `json:"error,omitempty" db:"error"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the batch has reached a final state.
func (b *EmailBatch) IsTerminal() bool {
	return b.Status == BatchSubmitted || b.Status == BatchFailed
}

// Recipient is one member of a batch's frozen membership.
type Recipient struct {
	BatchID    string `json:"batch_id" db:"batch_id"`
	MemberID   string `json:"member_id" db:"member_id"`
	MemberUUID string `json:"member_uuid" db:"member_uuid"`
	Email      string `json:"email" db:"email"`
	Name       string `json:"name,omitempty" db:"name"`
}
