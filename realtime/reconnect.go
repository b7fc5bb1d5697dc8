package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/SessionWarden/go-session-warden/models"
)

// ConnectionStatus is the observable state of one live subscription.
type ConnectionStatus string

const (
	StatusIdle       ConnectionStatus = "idle"
	StatusConnecting ConnectionStatus = "connecting"
	StatusConnected  ConnectionStatus = "connected"
	StatusBackoff    ConnectionStatus = "backoff"
	StatusError      ConnectionStatus = "error"
)

// Handlers receives decoded events and status transitions for one
// subscription. Unset handlers are skipped.
type Handlers struct {
	OnPermissionChange func(models.PermissionChangeEvent)
	OnTierChange       func(models.TierChangeEvent)
	OnSecurityEvent    func(models.SecurityEvent)
	OnStatusChange     func(ConnectionStatus)
}

// subscription owns one transport stream and its reconnection lifecycle.
// Transport disconnects trigger reconnect attempts with exponential
// backoff; after maxAttempts consecutive failures the subscription lands
// in StatusError and stays there until the caller subscribes again. A
// successful connect resets the attempt counter.
type subscription struct {
	transport Transport
	logger    models.Logger
	kind      StreamKind
	userID    string
	handlers  Handlers

	base        time.Duration
	maxAttempts int

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	status  ConnectionStatus
	attempt int
	timer   *time.Timer
}

// backoffDelay is the wait before reconnect attempt n (1-based):
// base, 2*base, 4*base, and so on.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		return base
	}
	return base << (attempt - 1)
}

func (s *subscription) start() {
	s.connect()
}

func (s *subscription) stop() {
	s.cancel()

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
}

func (s *subscription) connect() {
	if s.ctx.Err() != nil {
		return
	}

	s.setStatus(StatusConnecting)

	ch, err := s.transport.Subscribe(s.ctx, s.kind, s.userID)
	if err != nil {
		s.logger.Warn("stream subscribe failed",
			"stream", s.kind,
			"user_id", s.userID,
			"error", err,
		)
		s.scheduleReconnect()
		return
	}

	s.mu.Lock()
	s.attempt = 0
	s.mu.Unlock()
	s.setStatus(StatusConnected)

	go s.consume(ch)
}

func (s *subscription) consume(ch <-chan models.Event) {
	for event := range ch {
		s.dispatch(event)
	}

	// Channel closed: either we were cancelled or the transport dropped.
	if s.ctx.Err() != nil {
		return
	}
	s.scheduleReconnect()
}

func (s *subscription) scheduleReconnect() {
	if s.ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.attempt++
	attempt := s.attempt
	if attempt > s.maxAttempts {
		s.mu.Unlock()
		s.logger.Error("stream reconnect attempts exhausted",
			"stream", s.kind,
			"user_id", s.userID,
			"attempts", s.maxAttempts,
		)
		s.setStatus(StatusError)
		return
	}

	delay := backoffDelay(s.base, attempt)
	s.timer = time.AfterFunc(delay, s.connect)
	s.mu.Unlock()

	s.logger.Debug("stream reconnect scheduled",
		"stream", s.kind,
		"attempt", attempt,
		"delay", delay,
	)
	s.setStatus(StatusBackoff)
}

func (s *subscription) setStatus(status ConnectionStatus) {
	s.mu.Lock()
	if s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	handler := s.handlers.OnStatusChange
	s.mu.Unlock()

	if handler != nil {
		handler(status)
	}
}

func (s *subscription) currentStatus() ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *subscription) dispatch(event models.Event) {
	switch s.kind {
	case StreamPermission:
		if s.handlers.OnPermissionChange == nil {
			return
		}
		var change models.PermissionChangeEvent
		if err := json.Unmarshal(event.Payload, &change); err != nil {
			s.logger.Warn("corrupt permission change payload", "error", err)
			return
		}
		s.handlers.OnPermissionChange(change)

	case StreamTier:
		if s.handlers.OnTierChange == nil {
			return
		}
		var change models.TierChangeEvent
		if err := json.Unmarshal(event.Payload, &change); err != nil {
			s.logger.Warn("corrupt tier change payload", "error", err)
			return
		}
		s.handlers.OnTierChange(change)

	case StreamSecurity:
		if s.handlers.OnSecurityEvent == nil {
			return
		}
		var secEvent models.SecurityEvent
		if err := json.Unmarshal(event.Payload, &secEvent); err != nil {
			s.logger.Warn("corrupt security event payload", "error", err)
			return
		}
		s.handlers.OnSecurityEvent(secEvent)
	}
}
