package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quillcast/quillmail/internal/pkg/logger"
)

// Bus publishes domain events on a Redis pub/sub channel. Publishing
// is fire-and-forget: a slow or absent consumer never blocks the
// ingestion path.
type Bus struct {
	rdb     *redis.Client
	channel string
}

// NewBus creates an event bus on the given channel.
func NewBus(rdb *redis.Client, channel string) *Bus {
	return &Bus{rdb: rdb, channel: channel}
}

// Publish emits one domain event asynchronously.
func (b *Bus) Publish(evt DomainEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		logger.Error("event bus marshal failed", "type", string(evt.Type), "err", err.Error())
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := b.rdb.Publish(ctx, b.channel, body).Err(); err != nil {
			logger.Error("event bus publish failed", "type", string(evt.Type), "err", err.Error())
		}
	}()
}

// Subscribe delivers domain events to the handler until ctx is done.
// Each consumer (activity timeline, analytics) runs its own
// subscription, so one slow consumer cannot starve another.
func (b *Bus) Subscribe(ctx context.Context, handler func(DomainEvent)) {
	sub := b.rdb.Subscribe(ctx, b.channel)

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt DomainEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					logger.Warn("event bus bad message", "err", err.Error())
					continue
				}
				handler(evt)
			}
		}
	}()
}
