package sessionsync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/SessionWarden/go-session-warden/events"
	"github.com/SessionWarden/go-session-warden/internal/credstore"
	"github.com/SessionWarden/go-session-warden/models"
	"github.com/SessionWarden/go-session-warden/notify"
)

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}

type fakePush struct {
	token    string
	platform models.Platform
	err      error
}

func (p *fakePush) RequestToken(ctx context.Context) (string, models.Platform, error) {
	return p.token, p.platform, p.err
}

func newTestSynchronizer(store models.CredentialStore, bus models.EventBus) *Synchronizer {
	return NewSynchronizer(
		store,
		notify.NewRegistry(store, nopLogger{}),
		bus,
		&fakePush{token: "push-tok-1", platform: models.PlatformIOS},
		nopLogger{},
		models.SyncConfig{Interval: time.Hour, HeartbeatTTL: 2 * time.Hour},
		DeviceInfo{DeviceID: "device-1", Platform: models.PlatformIOS, AppVersion: "1.0.0"},
	)
}

func seedSessions(t *testing.T, store models.CredentialStore, sessions []models.UserSession) {
	t.Helper()

	value, err := json.Marshal(sessions)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	key := credstore.UserSessionsKey("tenant-1", "user-1")
	if err := store.Set(context.Background(), key, string(value), 0); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func waitFor(t *testing.T, condition func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(message)
}

func TestInitialize_RunsImmediateSync(t *testing.T) {
	store := credstore.NewMemoryStore()
	sync := newTestSynchronizer(store, nil)
	defer sync.Cleanup()
	ctx := context.Background()

	seedSessions(t, store, []models.UserSession{{SessionID: "sess-1"}, {SessionID: "sess-2"}})

	if err := sync.Initialize(ctx, "tenant-1", "user-1"); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if sync.State() != StateActive {
		t.Errorf("expected active state, got %s", sync.State())
	}

	waitFor(t, func() bool { return len(sync.Sessions()) == 2 }, "expected session list to be fetched")

	heartbeatKey := credstore.HeartbeatKey("tenant-1", "user-1", "device-1")
	waitFor(t, func() bool {
		_, found, _ := store.Get(ctx, heartbeatKey)
		return found
	}, "expected a heartbeat to be written")

	value, _, _ := store.Get(ctx, heartbeatKey)
	var heartbeat models.Heartbeat
	if err := json.Unmarshal([]byte(value), &heartbeat); err != nil {
		t.Fatalf("corrupt heartbeat: %v", err)
	}
	if heartbeat.DeviceID != "device-1" || heartbeat.Platform != models.PlatformIOS {
		t.Errorf("unexpected heartbeat: %+v", heartbeat)
	}
}

func TestInitialize_RegistersPushToken(t *testing.T) {
	store := credstore.NewMemoryStore()
	sync := newTestSynchronizer(store, nil)
	defer sync.Cleanup()
	ctx := context.Background()

	if err := sync.Initialize(ctx, "tenant-1", "user-1"); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	registry := notify.NewRegistry(store, nopLogger{})
	tokens, err := registry.ActiveTokensForUser(ctx, "tenant-1", "user-1")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Token != "push-tok-1" {
		t.Errorf("expected the push token to be registered, got %v", tokens)
	}
}

func TestInitialize_SameUserIsNoop(t *testing.T) {
	store := credstore.NewMemoryStore()
	sync := newTestSynchronizer(store, nil)
	defer sync.Cleanup()
	ctx := context.Background()

	if err := sync.Initialize(ctx, "tenant-1", "user-1"); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if err := sync.Initialize(ctx, "tenant-1", "user-1"); err != nil {
		t.Fatalf("second initialize failed: %v", err)
	}
	if sync.State() != StateActive {
		t.Errorf("expected active state, got %s", sync.State())
	}
}

func TestInitialize_DifferentUserRebinds(t *testing.T) {
	store := credstore.NewMemoryStore()
	sync := newTestSynchronizer(store, nil)
	defer sync.Cleanup()
	ctx := context.Background()

	if err := sync.Initialize(ctx, "tenant-1", "user-1"); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if err := sync.Initialize(ctx, "tenant-1", "user-2"); err != nil {
		t.Fatalf("rebind failed: %v", err)
	}
	if sync.State() != StateActive {
		t.Errorf("expected active state, got %s", sync.State())
	}

	heartbeatKey := credstore.HeartbeatKey("tenant-1", "user-2", "device-1")
	waitFor(t, func() bool {
		_, found, _ := store.Get(ctx, heartbeatKey)
		return found
	}, "expected a heartbeat for the new user")
}

func TestInitialize_PushFailureDoesNotAbort(t *testing.T) {
	store := credstore.NewMemoryStore()
	sync := NewSynchronizer(
		store,
		notify.NewRegistry(store, nopLogger{}),
		nil,
		&fakePush{err: context.DeadlineExceeded},
		nopLogger{},
		models.SyncConfig{Interval: time.Hour, HeartbeatTTL: 2 * time.Hour},
		DeviceInfo{DeviceID: "device-1", Platform: models.PlatformIOS},
	)
	defer sync.Cleanup()
	ctx := context.Background()

	if err := sync.Initialize(ctx, "tenant-1", "user-1"); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if sync.State() != StateActive {
		t.Errorf("expected active state despite push failure, got %s", sync.State())
	}

	heartbeatKey := credstore.HeartbeatKey("tenant-1", "user-1", "device-1")
	waitFor(t, func() bool {
		_, found, _ := store.Get(ctx, heartbeatKey)
		return found
	}, "expected sync to keep running without push capability")
}

func TestTerminateSession(t *testing.T) {
	store := credstore.NewMemoryStore()
	sync := newTestSynchronizer(store, nil)
	defer sync.Cleanup()
	ctx := context.Background()

	seedSessions(t, store, []models.UserSession{{SessionID: "sess-1"}, {SessionID: "sess-2"}})

	if err := sync.Initialize(ctx, "tenant-1", "user-1"); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	if err := sync.TerminateSession(ctx, "sess-1"); err != nil {
		t.Fatalf("terminate failed: %v", err)
	}

	waitFor(t, func() bool {
		sessions := sync.Sessions()
		return len(sessions) == 1 && sessions[0].SessionID == "sess-2"
	}, "expected the terminated session to disappear after resync")
}

func TestTerminateSession_Unknown(t *testing.T) {
	store := credstore.NewMemoryStore()
	sync := newTestSynchronizer(store, nil)
	defer sync.Cleanup()
	ctx := context.Background()

	seedSessions(t, store, []models.UserSession{{SessionID: "sess-1"}})

	if err := sync.Initialize(ctx, "tenant-1", "user-1"); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	if err := sync.TerminateSession(ctx, "no-such-session"); err == nil {
		t.Error("expected an error for an unknown session")
	}
}

func TestTerminateSession_BeforeInitialize(t *testing.T) {
	store := credstore.NewMemoryStore()
	sync := newTestSynchronizer(store, nil)

	if err := sync.TerminateSession(context.Background(), "sess-1"); err == nil {
		t.Error("expected an error before initialization")
	}
}

func TestCleanup_Idempotent(t *testing.T) {
	store := credstore.NewMemoryStore()
	sync := newTestSynchronizer(store, nil)
	ctx := context.Background()

	if err := sync.Initialize(ctx, "tenant-1", "user-1"); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	sync.Cleanup()
	if sync.State() != StateCleanedUp {
		t.Errorf("expected cleaned_up, got %s", sync.State())
	}

	// A second cleanup must not panic or change anything.
	sync.Cleanup()
	if sync.State() != StateCleanedUp {
		t.Errorf("expected cleaned_up after second call, got %s", sync.State())
	}

	if sessions := sync.Sessions(); len(sessions) != 0 {
		t.Errorf("expected cleared session list, got %d entries", len(sessions))
	}
}

func TestCleanup_BeforeInitialize(t *testing.T) {
	store := credstore.NewMemoryStore()
	sync := newTestSynchronizer(store, nil)

	sync.Cleanup()
	if sync.State() != StateCleanedUp {
		t.Errorf("expected cleaned_up, got %s", sync.State())
	}
}

func TestSecurityEventsFilteredByUser(t *testing.T) {
	store := credstore.NewMemoryStore()
	bus := events.NewEventBus(nil, nil)
	defer bus.Close()

	sync := newTestSynchronizer(store, bus)
	defer sync.Cleanup()
	ctx := context.Background()

	received := make(chan models.SecurityEvent, 10)
	sync.OnSecurityEvent = func(event models.SecurityEvent) {
		received <- event
	}

	if err := sync.Initialize(ctx, "tenant-1", "user-1"); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	publish := func(userID string) {
		payload, _ := json.Marshal(models.SecurityEvent{
			Kind:     models.SecurityEventLogin,
			TenantID: "tenant-1",
			UserID:   userID,
		})
		if err := bus.Publish(ctx, models.Event{Type: events.TypeSecurityEvent, Payload: payload}); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	publish("user-other")
	publish("user-1")

	select {
	case event := <-received:
		if event.UserID != "user-1" {
			t.Errorf("expected only bound user's events, got %s", event.UserID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected the bound user's event to arrive")
	}

	select {
	case event := <-received:
		t.Errorf("unexpected extra event for %s", event.UserID)
	case <-time.After(100 * time.Millisecond):
	}
}
