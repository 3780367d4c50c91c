package events

import "time"

// webhookPayload is the minimum shape of one provider notification.
// Unknown Type values are stored but not classified.
type webhookPayload struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	MessageID   string `json:"messageId"`
	Recipient   string `json:"recipient"`
	TimestampMs int64  `json:"timestampMs"`
}

func (p webhookPayload) occurredAt() time.Time {
	if p.TimestampMs == 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(p.TimestampMs).UTC()
}

// DomainEventType names the channels downstream collaborators react
// to (member activity timeline, analytics).
type DomainEventType string

const (
	DomainEmailDelivered  DomainEventType = "email.delivered"
	DomainEmailOpened     DomainEventType = "email.opened"
	DomainEmailClicked    DomainEventType = "email.clicked"
	DomainEmailFailed     DomainEventType = "email.failed"
	DomainEmailComplained DomainEventType = "email.complained"
)

// DomainEvent is the typed message published on the event bus. The
// ingestion path never depends on its consumers.
type DomainEvent struct {
	Type      DomainEventType `json:"type"`
	EventID   string          `json:"event_id,omitempty"`
	EmailID   string          `json:"email_id,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Recipient string          `json:"recipient,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
