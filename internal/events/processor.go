// Package events ingests asynchronous delivery-outcome notifications
// from the mail provider and fans them out: suppression updates,
// per-email stats, and domain events for downstream collaborators.
//
// Ingestion is idempotent. The raw event is stored first, keyed by the
// provider's event id; a duplicate id short-circuits every later side
// effect, so re-delivered webhooks cannot double-count stats or
// re-apply suppression.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quillcast/quillmail/internal/domain"
	"github.com/quillcast/quillmail/internal/pkg/logger"
)

// EventRepository stores raw mail events.
type EventRepository interface {
	// Insert appends the event. Returns false when an event with the
	// same id already exists (duplicate delivery).
	Insert(ctx context.Context, evt *domain.MailEvent) (bool, error)
}

// StatsRepository updates per-email aggregate counters, correlating a
// provider message id back to its owning email.
type StatsRepository interface {
	IncrementForMessage(ctx context.Context, messageID string, typ domain.MailEventType) error
}

// Suppressor is the slice of the suppression service ingestion needs.
type Suppressor interface {
	Suppress(ctx context.Context, email string, reason domain.SuppressionReason, at time.Time) error
}

// Publisher is the slice of the event bus ingestion needs.
type Publisher interface {
	Publish(evt DomainEvent)
}

// Processor is the single entry point for provider notifications.
type Processor struct {
	repo       EventRepository
	stats      StatsRepository
	suppressor Suppressor
	bus        Publisher
}

// NewProcessor creates a mail event processor.
func NewProcessor(repo EventRepository, stats StatsRepository, suppressor Suppressor, bus Publisher) *Processor {
	return &Processor{repo: repo, stats: stats, suppressor: suppressor, bus: bus}
}

// ProcessPayload ingests one raw provider notification. Malformed
// payloads are logged and dropped; they must never fail the ingestion
// path for subsequent valid events, so the only errors returned are
// storage failures worth retrying at the webhook level.
func (p *Processor) ProcessPayload(ctx context.Context, raw []byte) error {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Warn("dropping malformed mail event", "err", err.Error())
		return nil
	}
	if payload.ID == "" || payload.Recipient == "" {
		logger.Warn("dropping mail event without id or recipient", "type", payload.Type)
		return nil
	}

	evt := &domain.MailEvent{
		ID:         payload.ID,
		Type:       domain.MailEventType(payload.Type),
		MessageID:  payload.MessageID,
		Recipient:  payload.Recipient,
		OccurredAt: payload.occurredAt(),
		Raw:        raw,
	}

	// Store first: the event row doubles as the dedup record, and the
	// raw payload is kept for audit and replay even when the type is
	// unknown.
	inserted, err := p.repo.Insert(ctx, evt)
	if err != nil {
		return err
	}
	if !inserted {
		logger.Debug("duplicate mail event ignored", "event_id", evt.ID)
		return nil
	}

	switch evt.Type {
	case domain.EventFailed:
		p.applySuppression(ctx, evt, domain.ReasonFailed)
		p.bumpStats(ctx, evt)
		p.bus.Publish(domainEvent(DomainEmailFailed, evt))
	case domain.EventComplained:
		p.applySuppression(ctx, evt, domain.ReasonSpam)
		p.bus.Publish(domainEvent(DomainEmailComplained, evt))
	case domain.EventDelivered:
		p.bumpStats(ctx, evt)
		p.bus.Publish(domainEvent(DomainEmailDelivered, evt))
	case domain.EventOpened:
		p.bumpStats(ctx, evt)
		p.bus.Publish(domainEvent(DomainEmailOpened, evt))
	case domain.EventClicked:
		p.bumpStats(ctx, evt)
		p.bus.Publish(domainEvent(DomainEmailClicked, evt))
	default:
		// Unknown type: stored above, not classified.
		logger.Info("stored unclassified mail event", "event_id", evt.ID, "type", string(evt.Type))
	}

	return nil
}

func (p *Processor) applySuppression(ctx context.Context, evt *domain.MailEvent, reason domain.SuppressionReason) {
	if err := p.suppressor.Suppress(ctx, evt.Recipient, reason, evt.OccurredAt); err != nil {
		logger.Error("suppression update failed", "event_id", evt.ID, "err", err.Error())
	}
}

func (p *Processor) bumpStats(ctx context.Context, evt *domain.MailEvent) {
	if evt.MessageID == "" {
		return
	}
	if err := p.stats.IncrementForMessage(ctx, evt.MessageID, evt.Type); err != nil {
		logger.Error("stats update failed", "event_id", evt.ID, "err", err.Error())
	}
}

func domainEvent(typ DomainEventType, evt *domain.MailEvent) DomainEvent {
	return DomainEvent{
		Type:      typ,
		EventID:   evt.ID,
		MessageID: evt.MessageID,
		Recipient: evt.Recipient,
		Timestamp: evt.OccurredAt,
	}
}
