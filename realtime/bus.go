// Package realtime propagates permission, tier and security events to a
// user's live sessions over a pluggable transport, with per-subscription
// reconnection handling.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SessionWarden/go-session-warden/events"
	"github.com/SessionWarden/go-session-warden/models"
)

// BroadcastResult reports one broadcast: the generated broadcast ID and
// how many live sessions the transport reached.
type BroadcastResult struct {
	Success         bool   `json:"success"`
	BroadcastID     string `json:"broadcast_id"`
	SessionsReached int    `json:"sessions_reached"`
}

// Bus is the client-facing entry point for live event streams. Subscribe
// opens a per-user stream of one kind; Broadcast* publish to every live
// session of a user.
type Bus struct {
	transport Transport
	logger    models.Logger
	config    models.RealtimeConfig

	now func() time.Time

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool
}

func NewBus(transport Transport, logger models.Logger, config models.RealtimeConfig) *Bus {
	return &Bus{
		transport: transport,
		logger:    logger,
		config:    config,
		now:       time.Now,
		subs:      make(map[uint64]*subscription),
	}
}

// Subscribe opens a live stream of the given kind for one user. The
// returned function tears the subscription down; calling it more than
// once is safe. A transport failure on the first connect does not fail
// the call, the subscription retries with backoff like any other
// disconnect.
func (b *Bus) Subscribe(kind StreamKind, userID string, handlers Handlers) (func(), error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("realtime: invalid stream kind %q", kind)
	}
	if userID == "" {
		return nil, fmt.Errorf("realtime: user id must not be empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		transport:   b.transport,
		logger:      b.logger,
		kind:        kind,
		userID:      userID,
		handlers:    handlers,
		base:        b.config.ReconnectBase,
		maxAttempts: b.config.MaxReconnectAttempts,
		ctx:         ctx,
		cancel:      cancel,
		status:      StatusIdle,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("realtime: bus is closed")
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = sub
	b.mu.Unlock()

	sub.start()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			sub.stop()
		})
	}
	return unsubscribe, nil
}

// BroadcastPermissionChange publishes a permission change to all live
// sessions of the affected user.
func (b *Bus) BroadcastPermissionChange(ctx context.Context, change models.PermissionChangeEvent) (*BroadcastResult, error) {
	if change.UserID == "" {
		return nil, fmt.Errorf("realtime: user id must not be empty")
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = b.now().UTC()
	}
	return b.broadcast(ctx, StreamPermission, change.UserID, events.TypePermissionChange, change)
}

// BroadcastTierChange publishes a tier transition to all live sessions of
// the affected user.
func (b *Bus) BroadcastTierChange(ctx context.Context, change models.TierChangeEvent) (*BroadcastResult, error) {
	if change.UserID == "" {
		return nil, fmt.Errorf("realtime: user id must not be empty")
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = b.now().UTC()
	}
	return b.broadcast(ctx, StreamTier, change.UserID, events.TypeTierChange, change)
}

// BroadcastSecurityEvent publishes a security event to all live sessions
// of the affected user.
func (b *Bus) BroadcastSecurityEvent(ctx context.Context, event models.SecurityEvent) (*BroadcastResult, error) {
	if event.UserID == "" {
		return nil, fmt.Errorf("realtime: user id must not be empty")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now().UTC()
	}
	return b.broadcast(ctx, StreamSecurity, event.UserID, events.TypeSecurityEvent, event)
}

func (b *Bus) broadcast(ctx context.Context, kind StreamKind, userID, eventType string, payload any) (*BroadcastResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("realtime: failed to encode %s payload: %w", eventType, err)
	}

	event := models.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: b.now().UTC(),
		Payload:   raw,
	}

	reached, err := b.transport.Broadcast(ctx, kind, userID, event)
	if err != nil {
		b.logger.Error("broadcast failed",
			"stream", kind,
			"user_id", userID,
			"error", err,
		)
		return &BroadcastResult{BroadcastID: event.ID}, err
	}

	b.logger.Debug("broadcast delivered",
		"stream", kind,
		"user_id", userID,
		"sessions_reached", reached,
	)

	return &BroadcastResult{
		Success:         true,
		BroadcastID:     event.ID,
		SessionsReached: reached,
	}, nil
}

// Close tears down every live subscription. Further Subscribe calls fail.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[uint64]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return nil
}
