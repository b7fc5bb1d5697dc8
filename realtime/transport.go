package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/SessionWarden/go-session-warden/models"
)

// StreamKind selects one of the per-user live streams.
type StreamKind string

const (
	StreamPermission StreamKind = "permission"
	StreamTier       StreamKind = "tier"
	StreamSecurity   StreamKind = "security"
)

func (k StreamKind) Valid() bool {
	switch k {
	case StreamPermission, StreamTier, StreamSecurity:
		return true
	}
	return false
}

func streamTopic(kind StreamKind, userID string) string {
	return "stream." + string(kind) + "." + userID
}

// Transport is the server-push channel live subscriptions ride on. The
// event channel closing signals a disconnect. Broadcast reports how many
// live sessions the event reached; sessions that are not connected are
// not counted.
type Transport interface {
	Subscribe(ctx context.Context, kind StreamKind, userID string) (<-chan models.Event, error)
	Broadcast(ctx context.Context, kind StreamKind, userID string, event models.Event) (reached int, err error)
}

// pubsubTransport implements Transport on a models.PubSub, keeping a live
// subscriber count per topic for broadcast reach accounting.
type pubsubTransport struct {
	pubsub models.PubSub

	mu   sync.Mutex
	live map[string]int
}

func NewPubSubTransport(pubsub models.PubSub) Transport {
	return &pubsubTransport{
		pubsub: pubsub,
		live:   make(map[string]int),
	}
}

func (t *pubsubTransport) Subscribe(ctx context.Context, kind StreamKind, userID string) (<-chan models.Event, error) {
	topic := streamTopic(kind, userID)

	msgs, err := t.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	t.track(topic, 1)

	out := make(chan models.Event)
	go func() {
		defer func() {
			t.track(topic, -1)
			close(out)
		}()

		for msg := range msgs {
			var event models.Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (t *pubsubTransport) Broadcast(ctx context.Context, kind StreamKind, userID string, event models.Event) (int, error) {
	topic := streamTopic(kind, userID)

	payload, err := json.Marshal(event)
	if err != nil {
		return 0, err
	}

	msg := &models.Message{
		UUID:    event.ID,
		Payload: payload,
		Metadata: map[string]string{
			"event_type": event.Type,
		},
	}

	if err := t.pubsub.Publish(ctx, topic, msg); err != nil {
		return 0, err
	}

	t.mu.Lock()
	reached := t.live[topic]
	t.mu.Unlock()

	return reached, nil
}

func (t *pubsubTransport) track(topic string, delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.live[topic] += delta
	if t.live[topic] <= 0 {
		delete(t.live, topic)
	}
}
