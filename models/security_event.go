package models

import "time"

// SecurityEventKind tags the kind of security event.
type SecurityEventKind string

const (
	SecurityEventLogin              SecurityEventKind = "login"
	SecurityEventLogout             SecurityEventKind = "logout"
	SecurityEventNewDevice          SecurityEventKind = "new_device"
	SecurityEventSuspiciousActivity SecurityEventKind = "suspicious_activity"
	SecurityEventMFAChallenge       SecurityEventKind = "mfa_challenge"
	SecurityEventSessionExpired     SecurityEventKind = "session_expired"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SecurityEvent is immutable once emitted. Consumers de-duplicate by ID;
// the same incident may arrive both as a push notification and a live
// event, in either order.
type SecurityEvent struct {
	ID         string            `json:"id"`
	Kind       SecurityEventKind `json:"kind"`
	Severity   Severity          `json:"severity"`
	TenantID   string            `json:"tenant_id"`
	UserID     string            `json:"user_id"`
	DeviceID   string            `json:"device_id,omitempty"`
	DeviceName string            `json:"device_name,omitempty"`
	Message    string            `json:"message,omitempty"`

	// ActionRequired tells the client the event needs user interaction
	// (e.g. an MFA challenge), not just display.
	ActionRequired bool `json:"action_required"`

	Timestamp time.Time `json:"timestamp"`
}

// PermissionChangeEvent carries before/after permission sets. Broadcast to
// all live sessions of the affected user; not persisted by this core.
type PermissionChangeEvent struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Before    []string  `json:"before"`
	After     []string  `json:"after"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TierChangeEvent carries a tier transition (e.g. free → pro).
type TierChangeEvent struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Before    string    `json:"before"`
	After     string    `json:"after"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
