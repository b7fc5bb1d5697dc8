package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/SessionWarden/go-session-warden/events"
	"github.com/SessionWarden/go-session-warden/models"
)

func newPubSubBus(t *testing.T) *Bus {
	t.Helper()

	bus := NewBus(NewPubSubTransport(events.NewInMemoryPubSub(16)), nopLogger{}, models.RealtimeConfig{
		ReconnectBase:        time.Millisecond,
		MaxReconnectAttempts: 5,
	})
	t.Cleanup(func() { bus.Close() })
	return bus
}

func waitConnected(t *testing.T, statuses chan ConnectionStatus) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case status := <-statuses:
			if status == StatusConnected {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for connection")
		}
	}
}

func TestBus_SubscribeValidation(t *testing.T) {
	bus := newPubSubBus(t)

	if _, err := bus.Subscribe("unknown", "user-1", Handlers{}); err == nil {
		t.Error("expected an error for an unknown stream kind")
	}
	if _, err := bus.Subscribe(StreamSecurity, "", Handlers{}); err == nil {
		t.Error("expected an error for an empty user id")
	}
}

func TestBus_SecurityEventRoundTrip(t *testing.T) {
	bus := newPubSubBus(t)
	ctx := context.Background()

	statuses := make(chan ConnectionStatus, 8)
	received := make(chan models.SecurityEvent, 8)

	unsubscribe, err := bus.Subscribe(StreamSecurity, "user-1", Handlers{
		OnSecurityEvent: func(event models.SecurityEvent) { received <- event },
		OnStatusChange:  func(status ConnectionStatus) { statuses <- status },
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer unsubscribe()
	waitConnected(t, statuses)

	result, err := bus.BroadcastSecurityEvent(ctx, models.SecurityEvent{
		ID:       "evt-1",
		Kind:     models.SecurityEventNewDevice,
		TenantID: "tenant-1",
		UserID:   "user-1",
		Message:  "new device enrolled",
	})
	if err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if result.BroadcastID == "" {
		t.Error("expected a broadcast ID")
	}
	if result.SessionsReached != 1 {
		t.Errorf("expected 1 session reached, got %d", result.SessionsReached)
	}

	select {
	case event := <-received:
		if event.ID != "evt-1" || event.Kind != models.SecurityEventNewDevice {
			t.Errorf("unexpected event: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for the event")
	}
}

func TestBus_BroadcastReachesAllLiveSessions(t *testing.T) {
	bus := newPubSubBus(t)
	ctx := context.Background()

	const sessions = 3
	received := make(chan models.PermissionChangeEvent, sessions)

	for i := 0; i < sessions; i++ {
		statuses := make(chan ConnectionStatus, 8)
		unsubscribe, err := bus.Subscribe(StreamPermission, "user-1", Handlers{
			OnPermissionChange: func(event models.PermissionChangeEvent) { received <- event },
			OnStatusChange:     func(status ConnectionStatus) { statuses <- status },
		})
		if err != nil {
			t.Fatalf("subscribe %d failed: %v", i, err)
		}
		defer unsubscribe()
		waitConnected(t, statuses)
	}

	result, err := bus.BroadcastPermissionChange(ctx, models.PermissionChangeEvent{
		TenantID: "tenant-1",
		UserID:   "user-1",
		Before:   []string{"read"},
		After:    []string{"read", "write"},
	})
	if err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}
	if result.SessionsReached != sessions {
		t.Errorf("expected %d sessions reached, got %d", sessions, result.SessionsReached)
	}

	for i := 0; i < sessions; i++ {
		select {
		case event := <-received:
			if len(event.After) != 2 {
				t.Errorf("unexpected permission set: %v", event.After)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("session %d never received the event", i)
		}
	}
}

func TestBus_BroadcastWithNoLiveSessions(t *testing.T) {
	bus := newPubSubBus(t)

	result, err := bus.BroadcastTierChange(context.Background(), models.TierChangeEvent{
		TenantID: "tenant-1",
		UserID:   "user-offline",
		Before:   "free",
		After:    "pro",
	})
	if err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}
	if !result.Success {
		t.Error("expected success even with nobody listening")
	}
	if result.SessionsReached != 0 {
		t.Errorf("expected 0 sessions reached, got %d", result.SessionsReached)
	}
}

func TestBus_StreamsAreIsolatedByUser(t *testing.T) {
	bus := newPubSubBus(t)
	ctx := context.Background()

	statuses := make(chan ConnectionStatus, 8)
	received := make(chan models.TierChangeEvent, 8)

	unsubscribe, err := bus.Subscribe(StreamTier, "user-1", Handlers{
		OnTierChange:   func(event models.TierChangeEvent) { received <- event },
		OnStatusChange: func(status ConnectionStatus) { statuses <- status },
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer unsubscribe()
	waitConnected(t, statuses)

	if _, err := bus.BroadcastTierChange(ctx, models.TierChangeEvent{
		TenantID: "tenant-1",
		UserID:   "user-2",
		Before:   "free",
		After:    "pro",
	}); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}

	select {
	case event := <-received:
		t.Errorf("received another user's event: %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_BroadcastValidation(t *testing.T) {
	bus := newPubSubBus(t)
	ctx := context.Background()

	if _, err := bus.BroadcastSecurityEvent(ctx, models.SecurityEvent{}); err == nil {
		t.Error("expected an error for a missing user id")
	}
	if _, err := bus.BroadcastPermissionChange(ctx, models.PermissionChangeEvent{}); err == nil {
		t.Error("expected an error for a missing user id")
	}
	if _, err := bus.BroadcastTierChange(ctx, models.TierChangeEvent{}); err == nil {
		t.Error("expected an error for a missing user id")
	}
}

func TestBus_CloseStopsSubscriptions(t *testing.T) {
	bus := NewBus(NewPubSubTransport(events.NewInMemoryPubSub(16)), nopLogger{}, models.RealtimeConfig{
		ReconnectBase:        time.Millisecond,
		MaxReconnectAttempts: 5,
	})

	statuses := make(chan ConnectionStatus, 8)
	if _, err := bus.Subscribe(StreamSecurity, "user-1", Handlers{
		OnStatusChange: func(status ConnectionStatus) { statuses <- status },
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	waitConnected(t, statuses)

	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if _, err := bus.Subscribe(StreamSecurity, "user-1", Handlers{}); err == nil {
		t.Error("expected subscribe after close to fail")
	}
}
