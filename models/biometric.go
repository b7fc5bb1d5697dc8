package models

import "time"

// Modality is a biometric method.
type Modality string

const (
	ModalityFingerprint Modality = "fingerprint"
	ModalityFace        Modality = "face"
	ModalityVoice       Modality = "voice"
	ModalityIris        Modality = "iris"
)

func (m Modality) Valid() bool {
	switch m {
	case ModalityFingerprint, ModalityFace, ModalityVoice, ModalityIris:
		return true
	}
	return false
}

// EncryptedTemplate holds an enrollment template encrypted with a
// tenant-scoped key. Algorithm and nonce are stored alongside the
// ciphertext so the template can be re-opened after key rotation tooling
// re-derives the tenant key.
type EncryptedTemplate struct {
	Algorithm  string `json:"algorithm"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// BiometricRegistration is the stored credential for one
// (tenant, user, device, modality) tuple. At most one active registration
// exists per tuple; re-registration overwrites in place. Deactivation is
// logical, records are kept for audit history.
type BiometricRegistration struct {
	TenantID string   `json:"tenant_id"`
	UserID   string   `json:"user_id"`
	DeviceID string   `json:"device_id"`
	Modality Modality `json:"modality"`

	PublicKey    string            `json:"public_key"`
	KeyAlgorithm string            `json:"key_algorithm"`
	Template     EncryptedTemplate `json:"template"`

	Active bool `json:"active"`

	// FailureCount mirrors the atomic lockout counter at read time; the
	// authoritative value lives under its own key so concurrent attempts
	// increment it atomically.
	FailureCount int `json:"failure_count"`
	MaxFailures  int `json:"max_failures"`

	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// BiometricAuthRequest is a transient challenge-response attempt. It is
// validated once and never persisted.
type BiometricAuthRequest struct {
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	DeviceID  string    `json:"device_id"`
	Modality  Modality  `json:"modality"`
	Challenge string    `json:"challenge"`
	Signature string    `json:"signature"`
	PublicKey string    `json:"public_key"`
	Timestamp time.Time `json:"timestamp"`
}

// AuthFailure classifies why an authentication attempt was rejected.
type AuthFailure string

const (
	FailureNone               AuthFailure = ""
	FailureStaleTimestamp     AuthFailure = "stale_timestamp"
	FailureNotRegistered      AuthFailure = "not_registered"
	FailureDisabled           AuthFailure = "disabled"
	FailureLockedOut          AuthFailure = "locked_out"
	FailureVerificationFailed AuthFailure = "verification_failed"
)

// BiometricAuthResult is the typed outcome of an authentication attempt.
// Every path through the authenticator returns one; failures are never
// surfaced as errors.
type BiometricAuthResult struct {
	Success      bool        `json:"success"`
	SessionToken string      `json:"session_token,omitempty"`
	ExpiresAt    time.Time   `json:"expires_at,omitempty"`
	Failure      AuthFailure `json:"failure,omitempty"`

	// RequiresReregistration tells the caller the credential cannot
	// recover without a fresh enrollment.
	RequiresReregistration bool `json:"requires_reregistration,omitempty"`

	FailureCount int `json:"failure_count,omitempty"`
}

// SessionTokenRecord maps an opaque token to its owner. Owned by the
// biometric authenticator; read by anything validating bearer credentials.
type SessionTokenRecord struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	DeviceID  string    `json:"device_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
