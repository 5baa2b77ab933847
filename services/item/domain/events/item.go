package events

import (
	"time"

	"github.com/google/uuid"
)

// Topics published on the EventBus once an inventory mutation is committed.
// Events are published before the store lock is released, so across all
// topics they arrive in commit order.
const (
	TopicItemRegistered    = "item.registered"
	TopicItemUpdated       = "item.updated"
	TopicItemPhotoReplaced = "item.photo_replaced"
	TopicItemDeleted       = "item.deleted"
)

// Topics lists every item topic, for subscribers that want all of them.
var Topics = []string{
	TopicItemRegistered,
	TopicItemUpdated,
	TopicItemPhotoReplaced,
	TopicItemDeleted,
}

// ItemEvent is the payload of every item topic. Consumers subscribe via
// EventBus.Subscribe(ctx, topic, handler).
type ItemEvent struct {
	EventID    uuid.UUID `json:"event_id"` // Unique publish-time identifier for deduplication
	Version    int       `json:"version"`  // Schema version; increment on breaking changes
	Topic      string    `json:"topic"`
	ItemID     string    `json:"item_id"`
	Name       string    `json:"name,omitempty"`
	PhotoRef   string    `json:"photo_ref,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewItemEvent stamps a new event for topic.
func NewItemEvent(topic, itemID, name, photoRef string) ItemEvent {
	return ItemEvent{
		EventID:    uuid.New(),
		Version:    1,
		Topic:      topic,
		ItemID:     itemID,
		Name:       name,
		PhotoRef:   photoRef,
		OccurredAt: time.Now().UTC(),
	}
}
