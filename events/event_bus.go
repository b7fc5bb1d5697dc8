package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/SessionWarden/go-session-warden/models"
)

type handlerEntry struct {
	id      models.SubscriptionID
	handler models.EventHandler
}

type topicState struct {
	handlers []handlerEntry
	cancel   context.CancelFunc
}

// eventBus multiplexes a PubSub transport to per-event-type handlers.
// Handlers for one topic run synchronously in the consumer goroutine, so
// events of one type are dispatched in the order the transport delivered
// them. Ordering across different event types is not guaranteed.
type eventBus struct {
	prefix string
	pubsub models.PubSub
	logger *slog.Logger

	mu     sync.RWMutex
	topics map[string]*topicState

	subIDCounter atomic.Uint64

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEventBus wraps a PubSub transport in the typed bus. A nil transport
// falls back to the in-process implementation.
func NewEventBus(config *models.EventBusConfig, ps models.PubSub) models.EventBus {
	rootCtx, cancel := context.WithCancel(context.Background())

	if ps == nil {
		ps = NewInMemoryPubSub(0)
	}

	prefix := ""
	if config != nil {
		prefix = strings.TrimSuffix(config.Prefix, ".")
	}

	return &eventBus{
		prefix:  prefix,
		pubsub:  ps,
		logger:  slog.Default(),
		topics:  make(map[string]*topicState),
		rootCtx: rootCtx,
		cancel:  cancel,
	}
}

func (bus *eventBus) topic(eventType string) string {
	if bus.prefix == "" {
		return eventType
	}
	return bus.prefix + "." + eventType
}

func (bus *eventBus) Publish(ctx context.Context, evt models.Event) error {
	event := evt

	if event.Type == "" {
		return fmt.Errorf("eventbus: event type must not be empty")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &models.Message{
		UUID:    event.ID,
		Payload: payload,
		Metadata: map[string]string{
			"event_type": event.Type,
			"timestamp":  event.Timestamp.Format(time.RFC3339Nano),
		},
	}

	return bus.pubsub.Publish(ctx, bus.topic(event.Type), msg)
}

func (bus *eventBus) Subscribe(
	eventType string,
	handler models.EventHandler,
) (models.SubscriptionID, error) {
	if handler == nil {
		return 0, fmt.Errorf("eventbus: handler must not be nil")
	}

	topic := bus.topic(eventType)
	id := models.SubscriptionID(bus.subIDCounter.Add(1))

	bus.mu.Lock()
	defer bus.mu.Unlock()

	state, exists := bus.topics[topic]

	// First subscriber starts the consumer for this topic.
	if !exists {
		ctx, cancel := context.WithCancel(bus.rootCtx)

		msgs, err := bus.pubsub.Subscribe(ctx, topic)
		if err != nil {
			cancel()
			return 0, err
		}

		state = &topicState{cancel: cancel}
		bus.topics[topic] = state

		bus.wg.Add(1)
		go bus.consume(ctx, topic, msgs)
	}

	state.handlers = append(state.handlers, handlerEntry{
		id:      id,
		handler: handler,
	})

	return id, nil
}

func (bus *eventBus) Unsubscribe(eventType string, id models.SubscriptionID) {
	topic := bus.topic(eventType)

	bus.mu.Lock()
	defer bus.mu.Unlock()

	state, ok := bus.topics[topic]
	if !ok {
		return
	}

	for i, entry := range state.handlers {
		if entry.id == id {
			state.handlers = append(state.handlers[:i], state.handlers[i+1:]...)
			break
		}
	}

	// Last handler gone, stop the consumer.
	if len(state.handlers) == 0 {
		state.cancel()
		delete(bus.topics, topic)
	}
}

func (bus *eventBus) consume(ctx context.Context, topic string, msgs <-chan *models.Message) {
	defer bus.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-msgs:
			if !ok {
				return
			}

			var event models.Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				bus.logger.Error(
					"failed to unmarshal event",
					"error", err,
					"topic", topic,
					"message_id", msg.UUID,
				)
				continue
			}

			bus.mu.RLock()
			state := bus.topics[topic]
			var handlers []handlerEntry
			if state != nil {
				handlers = append([]handlerEntry(nil), state.handlers...)
			}
			bus.mu.RUnlock()

			// In-order, synchronous dispatch. Event ordering within one
			// topic is a contract the propagation layer relies on.
			for _, entry := range handlers {
				bus.callHandler(ctx, entry.handler, event)
			}
		}
	}
}

func (bus *eventBus) callHandler(ctx context.Context, handler models.EventHandler, event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			bus.logger.Error(
				"event handler panicked",
				"panic", r,
				"event_type", event.Type,
				"event_id", event.ID,
			)
		}
	}()

	if err := handler(ctx, event); err != nil {
		bus.logger.Error(
			"event handler error",
			"error", err,
			"event_type", event.Type,
			"event_id", event.ID,
		)
	}
}

func (bus *eventBus) Close() error {
	bus.cancel()
	bus.wg.Wait()
	return bus.pubsub.Close()
}
