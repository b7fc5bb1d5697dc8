package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SessionWarden/go-session-warden/models"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(nil, nil)
	defer bus.Close()
	ctx := context.Background()

	received := make(chan models.Event, 1)
	_, err := bus.Subscribe("test_event", func(ctx context.Context, event models.Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	payload, _ := json.Marshal(map[string]string{"k": "v"})
	if err := bus.Publish(ctx, models.Event{Type: "test_event", Payload: payload}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case event := <-received:
		if event.Type != "test_event" {
			t.Errorf("expected test_event, got %q", event.Type)
		}
		if event.ID == "" {
			t.Error("expected a generated event ID")
		}
		if event.Timestamp.IsZero() {
			t.Error("expected a stamped timestamp")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventBus_RejectsEmptyType(t *testing.T) {
	bus := NewEventBus(nil, nil)
	defer bus.Close()

	if err := bus.Publish(context.Background(), models.Event{}); err == nil {
		t.Error("expected an error for an empty event type")
	}
}

func TestEventBus_RejectsNilHandler(t *testing.T) {
	bus := NewEventBus(nil, nil)
	defer bus.Close()

	if _, err := bus.Subscribe("test_event", nil); err == nil {
		t.Error("expected an error for a nil handler")
	}
}

func TestEventBus_OrderedDelivery(t *testing.T) {
	bus := NewEventBus(nil, nil)
	defer bus.Close()
	ctx := context.Background()

	const count = 50
	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	_, err := bus.Subscribe("ordered_event", func(ctx context.Context, event models.Event) error {
		var n int
		if err := json.Unmarshal(event.Payload, &n); err != nil {
			return err
		}
		mu.Lock()
		order = append(order, n)
		if len(order) == count {
			close(done)
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	for i := 0; i < count; i++ {
		payload, _ := json.Marshal(i)
		if err := bus.Publish(ctx, models.Event{Type: "ordered_event", Payload: payload}); err != nil {
			t.Fatalf("publish %d failed: %v", i, err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for events")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, n := range order {
		if n != i {
			t.Fatalf("event %d arrived at position %d", n, i)
		}
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(nil, nil)
	defer bus.Close()
	ctx := context.Background()

	received := make(chan models.Event, 10)
	id, err := bus.Subscribe("test_event", func(ctx context.Context, event models.Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	bus.Unsubscribe("test_event", id)

	if err := bus.Publish(ctx, models.Event{Type: "test_event", Payload: json.RawMessage("{}")}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case <-received:
		t.Error("expected no delivery after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventBus_HandlerPanicIsContained(t *testing.T) {
	bus := NewEventBus(nil, nil)
	defer bus.Close()
	ctx := context.Background()

	received := make(chan struct{}, 1)

	if _, err := bus.Subscribe("test_event", func(ctx context.Context, event models.Event) error {
		panic("handler bug")
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if _, err := bus.Subscribe("test_event", func(ctx context.Context, event models.Event) error {
		received <- struct{}{}
		return nil
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := bus.Publish(ctx, models.Event{Type: "test_event", Payload: json.RawMessage("{}")}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the second handler to run despite the panic")
	}
}

func TestEventBus_TopicPrefix(t *testing.T) {
	ps := NewInMemoryPubSub(8)
	bus := NewEventBus(&models.EventBusConfig{Prefix: "warden"}, ps)
	defer bus.Close()
	ctx := context.Background()

	raw, err := ps.Subscribe(ctx, "warden.test_event")
	if err != nil {
		t.Fatalf("raw subscribe failed: %v", err)
	}

	if err := bus.Publish(ctx, models.Event{Type: "test_event", Payload: json.RawMessage("{}")}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case <-raw:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the event on the prefixed topic")
	}
}

func TestEventBus_MultipleEventTypes(t *testing.T) {
	bus := NewEventBus(nil, nil)
	defer bus.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)

	for _, eventType := range []string{"type_a", "type_b"} {
		expected := eventType
		if _, err := bus.Subscribe(eventType, func(ctx context.Context, event models.Event) error {
			defer wg.Done()
			if event.Type != expected {
				return fmt.Errorf("expected %s, got %s", expected, event.Type)
			}
			return nil
		}); err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
	}

	for _, eventType := range []string{"type_a", "type_b"} {
		if err := bus.Publish(ctx, models.Event{Type: eventType, Payload: json.RawMessage("{}")}); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for both event types")
	}
}
