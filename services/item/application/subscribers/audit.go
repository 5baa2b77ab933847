// Package subscribers holds in-process consumers of item events.
package subscribers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/ghuser/inventorycatalog/pkg/logger"
	itemevents "github.com/ghuser/inventorycatalog/services/item/domain/events"
)

// Subscriber is the part of the EventBus the subscribers need.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler func(context.Context, *message.Message) error) (<-chan error, error)
}

// RegisterAudit subscribes the audit logger to every item topic.
// Subscriptions end when ctx is done.
func RegisterAudit(ctx context.Context, bus Subscriber, log logger.Logger) error {
	for _, topic := range itemevents.Topics {
		errCh, err := bus.Subscribe(ctx, topic, handleAudit(log))
		if err != nil {
			return fmt.Errorf("subscribe audit to %s: %w", topic, err)
		}

		// Drain subscriber errors in background so the channel never blocks.
		go func(topic string) {
			for err := range errCh {
				log.ErrorContext(ctx, "subscriber error", "topic", topic, "error", err)
			}
		}(topic)
	}

	log.Info("event subscribers registered", "topics", itemevents.Topics)
	return nil
}

// handleAudit writes one structured audit record per item event.
// A payload that does not decode is logged and dropped; retrying cannot fix it.
func handleAudit(log logger.Logger) func(context.Context, *message.Message) error {
	return func(ctx context.Context, msg *message.Message) error {
		var evt itemevents.ItemEvent
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			log.WarnContext(ctx, "undecodable item event", "message_id", msg.UUID, "error", err)
			return nil
		}

		log.InfoContext(ctx, "audit",
			"topic", evt.Topic,
			"event_id", evt.EventID,
			"item_id", evt.ItemID,
			"name", evt.Name,
			"photo", evt.PhotoRef,
			"occurred_at", evt.OccurredAt,
		)
		return nil
	}
}
