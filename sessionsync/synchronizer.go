// Package sessionsync keeps one device's view of a user's sessions in
// step with the authoritative list in the credential store.
package sessionsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/SessionWarden/go-session-warden/events"
	"github.com/SessionWarden/go-session-warden/internal/credstore"
	"github.com/SessionWarden/go-session-warden/models"
	"github.com/SessionWarden/go-session-warden/notify"
)

// State is the synchronizer lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateActive
	StateCleanedUp
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateCleanedUp:
		return "cleaned_up"
	}
	return "unknown"
}

// PushCapability requests platform push permission and yields this
// device's push token. Implemented by the platform shell, outside this
// core.
type PushCapability interface {
	RequestToken(ctx context.Context) (token string, platform models.Platform, err error)
}

// DeviceInfo identifies the device this synchronizer runs on.
type DeviceInfo struct {
	DeviceID   string
	Platform   models.Platform
	AppVersion string
}

// Synchronizer pushes heartbeats for the current device and pulls the
// authoritative session list on a fixed interval. One synchronizer serves
// one user at a time; initializing with a different user tears the old
// binding down first.
type Synchronizer struct {
	store    models.CredentialStore
	registry *notify.Registry
	bus      models.EventBus
	push     PushCapability
	logger   models.Logger
	config   models.SyncConfig
	device   DeviceInfo

	now func() time.Time

	mu        sync.Mutex
	state     State
	tenantID  string
	userID    string
	cancel    context.CancelFunc
	syncNow   chan struct{}
	subID     models.SubscriptionID
	subActive bool
	sessions  []models.UserSession

	// OnSecurityEvent, when set before Initialize, receives security
	// events for the bound user.
	OnSecurityEvent func(models.SecurityEvent)
}

func NewSynchronizer(
	store models.CredentialStore,
	registry *notify.Registry,
	bus models.EventBus,
	push PushCapability,
	logger models.Logger,
	config models.SyncConfig,
	device DeviceInfo,
) *Synchronizer {
	return &Synchronizer{
		store:    store,
		registry: registry,
		bus:      bus,
		push:     push,
		logger:   logger,
		config:   config,
		device:   device,
		now:      time.Now,
	}
}

// Initialize binds the synchronizer to a user and starts periodic sync.
// Calling it again for the same user while active is a no-op; a different
// user tears down the previous binding and reinitializes. Step failures
// are logged and surfaced as error events but do not roll back the steps
// that already succeeded.
func (s *Synchronizer) Initialize(ctx context.Context, tenantID, userID string) error {
	s.mu.Lock()

	if s.state == StateActive && s.tenantID == tenantID && s.userID == userID {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateActive {
		s.cleanupLocked()
	}

	s.state = StateInitializing
	s.tenantID = tenantID
	s.userID = userID
	s.syncNow = make(chan struct{}, 1)

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	// Push capability first, so the device token is registered before the
	// first sync names this device in a heartbeat.
	if token, platform, err := s.push.RequestToken(ctx); err != nil {
		s.reportError(ctx, "push capability request failed", err)
	} else {
		_, err := s.registry.RegisterToken(ctx, notify.RegisterParams{
			TenantID:   tenantID,
			UserID:     userID,
			DeviceID:   s.device.DeviceID,
			Platform:   platform,
			Token:      token,
			AppVersion: s.device.AppVersion,
		})
		if err != nil {
			s.reportError(ctx, "device token registration failed", err)
		}
	}

	go s.run(runCtx)

	if s.bus != nil {
		subID, err := s.bus.Subscribe(events.TypeSecurityEvent, s.handleSecurityEvent)
		if err != nil {
			s.reportError(ctx, "security event subscription failed", err)
		} else {
			s.mu.Lock()
			s.subID = subID
			s.subActive = true
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()

	return nil
}

// run drives the periodic sync loop: an immediate sync on start, then one
// per interval, plus out-of-cycle syncs requested via syncNow.
func (s *Synchronizer) run(ctx context.Context) {
	s.syncOnce(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncOnce(ctx)
		case <-s.syncNow:
			s.syncOnce(ctx)
		}
	}
}

// syncOnce fetches the authoritative session list and pushes this
// device's heartbeat. The two writes are independent: either may fail
// without blocking the other, and each is retried on its own next tick.
func (s *Synchronizer) syncOnce(ctx context.Context) {
	s.mu.Lock()
	tenantID, userID := s.tenantID, s.userID
	s.mu.Unlock()

	if userID == "" {
		return
	}

	if sessions, err := s.fetchSessions(ctx, tenantID, userID); err != nil {
		s.logger.Warn("session list fetch failed", "error", err, "user_id", userID)
	} else {
		s.mu.Lock()
		// Discard results for a stale user binding.
		if s.userID == userID {
			s.sessions = sessions
		}
		s.mu.Unlock()
	}

	if err := s.pushHeartbeat(ctx, tenantID, userID); err != nil {
		s.logger.Warn("heartbeat push failed", "error", err, "device_id", s.device.DeviceID)
	}
}

func (s *Synchronizer) fetchSessions(ctx context.Context, tenantID, userID string) ([]models.UserSession, error) {
	value, found, err := s.store.Get(ctx, credstore.UserSessionsKey(tenantID, userID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var sessions []models.UserSession
	if err := json.Unmarshal([]byte(value), &sessions); err != nil {
		return nil, fmt.Errorf("corrupt session list: %w", err)
	}
	return sessions, nil
}

func (s *Synchronizer) pushHeartbeat(ctx context.Context, tenantID, userID string) error {
	heartbeat := models.Heartbeat{
		DeviceID:   s.device.DeviceID,
		Platform:   s.device.Platform,
		AppVersion: s.device.AppVersion,
		Timestamp:  s.now().UTC(),
	}

	value, err := json.Marshal(heartbeat)
	if err != nil {
		return err
	}

	key := credstore.HeartbeatKey(tenantID, userID, s.device.DeviceID)
	return s.store.Set(ctx, key, string(value), s.config.HeartbeatTTL)
}

// Sessions returns the most recently fetched session list.
func (s *Synchronizer) Sessions() []models.UserSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.UserSession(nil), s.sessions...)
}

// State returns the current lifecycle state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TerminateSession revokes one session and triggers an immediate
// out-of-cycle resync instead of waiting for the next tick.
func (s *Synchronizer) TerminateSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	tenantID, userID := s.tenantID, s.userID
	syncNow := s.syncNow
	s.mu.Unlock()

	if userID == "" {
		return fmt.Errorf("sessionsync: not initialized")
	}

	key := credstore.UserSessionsKey(tenantID, userID)
	sessions, err := s.fetchSessions(ctx, tenantID, userID)
	if err != nil {
		return err
	}

	found := false
	remaining := sessions[:0]
	for _, session := range sessions {
		if session.SessionID == sessionID {
			found = true
			continue
		}
		remaining = append(remaining, session)
	}
	if !found {
		return fmt.Errorf("sessionsync: unknown session %s", sessionID)
	}

	value, err := json.Marshal(remaining)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, key, string(value), 0); err != nil {
		return fmt.Errorf("sessionsync: failed to update session list: %w", err)
	}

	// Non-blocking: a pending resync request is already good enough.
	select {
	case syncNow <- struct{}{}:
	default:
	}

	return nil
}

// HandleDeepLink parses an authentication callback URL. Unrecognized URLs
// yield a zero-flow result, not an error.
func (s *Synchronizer) HandleDeepLink(raw string) DeepLink {
	link := ParseDeepLink(raw)
	if link.Flow == FlowNone {
		s.logger.Debug("deep link matched no flow", "url", raw)
	}
	return link
}

// Cleanup cancels the periodic sync, unsubscribes from security events
// and clears the user binding. Safe to call multiple times.
func (s *Synchronizer) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
}

func (s *Synchronizer) cleanupLocked() {
	if s.state == StateCleanedUp || s.state == StateUninitialized {
		s.state = StateCleanedUp
		return
	}

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.subActive && s.bus != nil {
		s.bus.Unsubscribe(events.TypeSecurityEvent, s.subID)
		s.subActive = false
	}

	s.tenantID = ""
	s.userID = ""
	s.sessions = nil
	s.state = StateCleanedUp
}

func (s *Synchronizer) handleSecurityEvent(ctx context.Context, event models.Event) error {
	var secEvent models.SecurityEvent
	if err := json.Unmarshal(event.Payload, &secEvent); err != nil {
		return fmt.Errorf("corrupt security event payload: %w", err)
	}

	s.mu.Lock()
	relevant := s.state == StateActive && secEvent.UserID == s.userID && secEvent.TenantID == s.tenantID
	handler := s.OnSecurityEvent
	s.mu.Unlock()

	if relevant && handler != nil {
		handler(secEvent)
	}
	return nil
}

// reportError logs a failed initialization step and surfaces it as a
// structured error event. Initialization carries on with whatever steps
// did succeed.
func (s *Synchronizer) reportError(ctx context.Context, message string, err error) {
	s.logger.Error(message, "error", err, "user_id", s.userID)

	if s.bus == nil {
		return
	}

	payload, marshalErr := json.Marshal(map[string]string{
		"error":   err.Error(),
		"context": message,
	})
	if marshalErr != nil {
		return
	}

	if pubErr := s.bus.Publish(ctx, models.Event{
		Type:    events.TypeError,
		Payload: payload,
	}); pubErr != nil {
		s.logger.Error("failed to publish error event", "error", pubErr)
	}
}
