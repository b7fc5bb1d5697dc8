package models

import (
	"context"
	"encoding/json"
	"time"
)

// Event is the envelope published on the event bus. Payload carries the
// serialized domain event (SecurityEvent, PermissionChangeEvent, ...).
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
}

// Message is a raw pub/sub message, transport-agnostic.
type Message struct {
	UUID     string
	Payload  []byte
	Metadata map[string]string
}

// PubSub abstracts the message transport. Watermill adapters implement it;
// the subscription channel closes when the transport disconnects or the
// context is cancelled.
type PubSub interface {
	Publish(ctx context.Context, topic string, msg *Message) error
	Subscribe(ctx context.Context, topic string) (<-chan *Message, error)
	Close() error
}

// EventHandler processes a single event. Handlers for one topic are invoked
// in the order events were received from the transport.
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID identifies a handler registration for removal.
type SubscriptionID uint64

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type EventSubscriber interface {
	Subscribe(eventType string, handler EventHandler) (SubscriptionID, error)
	Unsubscribe(eventType string, id SubscriptionID)
	Close() error
}

// EventBus combines publisher and subscriber functionality.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
