package domain

import "time"

// MailEventType enumerates provider delivery-outcome notifications.
type MailEventType string

const (
	EventDelivered    MailEventType = "delivered"
	EventOpened       MailEventType = "opened"
	EventClicked      MailEventType = "clicked"
	EventFailed       MailEventType = "failed"
	EventComplained   MailEventType = "complained"
	EventUnsubscribed MailEventType = "unsubscribed"
)

// MailEvent is an immutable record of one provider notification. The
// ID is the provider's event id, which makes ingestion naturally
// idempotent: re-inserting the same id is a no-op.
type MailEvent struct {
	ID         string        `json:"id" db:"id"`
	Type       MailEventType `json:"type" db:"type"`
	MessageID  string        `json:"message_id" db:"message_id"`
	Recipient  string        `json:"recipient" db:"recipient"`
	OccurredAt time.Time     `json:"occurred_at" db:"occurred_at"`
	Raw        []byte        `json:"-" db:"raw"`
}
