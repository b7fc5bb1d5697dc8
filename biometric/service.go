// Package biometric implements challenge-response biometric authentication
// with replay protection and a hard lockout backstop.
package biometric

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/SessionWarden/go-session-warden/events"
	"github.com/SessionWarden/go-session-warden/internal/credstore"
	"github.com/SessionWarden/go-session-warden/internal/security"
	"github.com/SessionWarden/go-session-warden/models"
)

// Authenticator verifies biometric challenge-response attempts and issues
// session tokens. Verification failures are retried by the device, not by
// this component; the lockout counter is the retry-limiting backstop.
type Authenticator struct {
	store  models.CredentialStore
	signer security.Signer
	cipher *security.TemplateCipher
	bus    models.EventPublisher
	logger models.Logger
	config models.BiometricConfig

	now func() time.Time
}

// NewAuthenticator wires an authenticator. The event publisher may be nil
// when no bus is configured.
func NewAuthenticator(
	store models.CredentialStore,
	signer security.Signer,
	cipher *security.TemplateCipher,
	bus models.EventPublisher,
	logger models.Logger,
	config models.BiometricConfig,
) *Authenticator {
	return &Authenticator{
		store:  store,
		signer: signer,
		cipher: cipher,
		bus:    bus,
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

// RegisterParams describes one enrollment.
type RegisterParams struct {
	TenantID           string
	UserID             string
	DeviceID           string
	Modality           models.Modality
	PublicKey          string
	KeyAlgorithm       string
	EnrollmentTemplate []byte
}

// Register enrolls a biometric credential. An existing registration for
// the same (tenant, user, device, modality) tuple is overwritten, its
// failure counter reset and the credential re-activated.
func (a *Authenticator) Register(ctx context.Context, params RegisterParams) (*models.BiometricRegistration, error) {
	if params.TenantID == "" || params.UserID == "" || params.DeviceID == "" {
		return nil, fmt.Errorf("biometric: tenant, user and device are required")
	}
	if !params.Modality.Valid() {
		return nil, fmt.Errorf("biometric: invalid modality %q", params.Modality)
	}
	if params.PublicKey == "" {
		return nil, fmt.Errorf("biometric: public key is required")
	}

	template, err := a.cipher.Encrypt(params.TenantID, params.EnrollmentTemplate)
	if err != nil {
		return nil, fmt.Errorf("biometric: failed to encrypt enrollment template: %w", err)
	}

	now := a.now().UTC()
	registration := &models.BiometricRegistration{
		TenantID:     params.TenantID,
		UserID:       params.UserID,
		DeviceID:     params.DeviceID,
		Modality:     params.Modality,
		PublicKey:    params.PublicKey,
		KeyAlgorithm: params.KeyAlgorithm,
		Template:     template,
		Active:       true,
		FailureCount: 0,
		MaxFailures:  a.config.MaxFailures,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := a.saveRegistration(ctx, registration); err != nil {
		return nil, err
	}

	failKey := credstore.FailureCounterKey(params.TenantID, params.UserID, params.DeviceID, string(params.Modality))
	if err := a.store.Delete(ctx, failKey); err != nil {
		return nil, fmt.Errorf("biometric: failed to reset failure counter: %w", err)
	}

	if err := a.indexModality(ctx, registration); err != nil {
		return nil, err
	}

	a.publishSecurityEvent(ctx, models.SecurityEvent{
		Kind:     models.SecurityEventNewDevice,
		Severity: models.SeverityInfo,
		TenantID: params.TenantID,
		UserID:   params.UserID,
		DeviceID: params.DeviceID,
		Message:  fmt.Sprintf("biometric %s enrolled", params.Modality),
	})

	return registration, nil
}

// Authenticate validates one challenge-response attempt. Authentication
// outcomes are typed results; a non-nil error means the credential store
// itself failed.
func (a *Authenticator) Authenticate(ctx context.Context, req *models.BiometricAuthRequest) (*models.BiometricAuthResult, error) {
	now := a.now().UTC()

	// Replay protection: reject requests outside the accepted clock
	// window regardless of any other field.
	age := now.Sub(req.Timestamp.UTC())
	if age > a.config.ReplayWindowPast || -age > a.config.ReplayWindowFuture {
		return &models.BiometricAuthResult{Failure: models.FailureStaleTimestamp}, nil
	}

	registration, err := a.loadRegistration(ctx, req.TenantID, req.UserID, req.DeviceID, req.Modality)
	if err != nil {
		return nil, err
	}
	if registration == nil {
		return &models.BiometricAuthResult{
			Failure:                models.FailureNotRegistered,
			RequiresReregistration: true,
		}, nil
	}
	if !registration.Active {
		return &models.BiometricAuthResult{
			Failure:                models.FailureDisabled,
			RequiresReregistration: true,
		}, nil
	}

	failKey := credstore.FailureCounterKey(req.TenantID, req.UserID, req.DeviceID, string(req.Modality))
	failures, err := a.failureCount(ctx, failKey)
	if err != nil {
		return nil, err
	}

	// Hard lock: no time-based decay, only re-registration clears it.
	if failures >= int64(registration.MaxFailures) {
		return &models.BiometricAuthResult{
			Failure:                models.FailureLockedOut,
			RequiresReregistration: true,
			FailureCount:           int(failures),
		}, nil
	}

	if req.PublicKey != registration.PublicKey {
		return a.verificationFailed(ctx, req, failKey, registration)
	}

	expected, err := a.expectedSignature(ctx, req)
	if err != nil {
		return nil, err
	}

	if security.Similarity(expected, decodeSignature(req.Signature)) < a.config.SimilarityThreshold {
		return a.verificationFailed(ctx, req, failKey, registration)
	}

	// Accepted: reset the counter and stamp usage.
	if err := a.store.Delete(ctx, failKey); err != nil {
		return nil, fmt.Errorf("biometric: failed to reset failure counter: %w", err)
	}
	registration.FailureCount = 0
	registration.LastUsedAt = now
	registration.UpdatedAt = now
	if err := a.saveRegistration(ctx, registration); err != nil {
		return nil, err
	}

	token, expiresAt, err := a.issueSessionToken(ctx, req)
	if err != nil {
		return nil, err
	}

	a.publishSecurityEvent(ctx, models.SecurityEvent{
		Kind:     models.SecurityEventLogin,
		Severity: models.SeverityInfo,
		TenantID: req.TenantID,
		UserID:   req.UserID,
		DeviceID: req.DeviceID,
		Message:  fmt.Sprintf("biometric %s login", req.Modality),
	})

	return &models.BiometricAuthResult{
		Success:      true,
		SessionToken: token,
		ExpiresAt:    expiresAt,
	}, nil
}

// Unregister deactivates biometric credentials for a device. An empty
// modality deactivates every modality enrolled on the device.
func (a *Authenticator) Unregister(ctx context.Context, tenantID, userID, deviceID string, modality models.Modality) error {
	modalities := []models.Modality{modality}
	if modality == "" {
		enrolled, err := a.enrolledModalities(ctx, tenantID, userID, deviceID)
		if err != nil {
			return err
		}
		modalities = enrolled
	}

	for _, m := range modalities {
		registration, err := a.loadRegistration(ctx, tenantID, userID, deviceID, m)
		if err != nil {
			return err
		}
		if registration == nil {
			continue
		}

		registration.Active = false
		registration.UpdatedAt = a.now().UTC()
		if err := a.saveRegistration(ctx, registration); err != nil {
			return err
		}

		failKey := credstore.FailureCounterKey(tenantID, userID, deviceID, string(m))
		if err := a.store.Delete(ctx, failKey); err != nil {
			return fmt.Errorf("biometric: failed to clear failure counter: %w", err)
		}
	}

	return nil
}

// ValidateSessionToken reports whether token is a live session token owned
// by (user, tenant). Expired or mismatched tokens are purged.
func (a *Authenticator) ValidateSessionToken(ctx context.Context, token, userID, tenantID string) bool {
	key := credstore.SessionTokenKey(token)

	value, found, err := a.store.Get(ctx, key)
	if err != nil {
		a.logger.Error("failed to read session token", "error", err)
		return false
	}
	if !found {
		return false
	}

	var record models.SessionTokenRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		a.logger.Error("corrupt session token record", "error", err)
		_ = a.store.Delete(ctx, key)
		return false
	}

	if record.UserID != userID || record.TenantID != tenantID || a.now().UTC().After(record.ExpiresAt) {
		_ = a.store.Delete(ctx, key)
		return false
	}

	return true
}

func (a *Authenticator) verificationFailed(
	ctx context.Context,
	req *models.BiometricAuthRequest,
	failKey string,
	registration *models.BiometricRegistration,
) (*models.BiometricAuthResult, error) {
	failures, err := a.store.Incr(ctx, failKey, 0)
	if err != nil {
		return nil, fmt.Errorf("biometric: failed to increment failure counter: %w", err)
	}

	if failures == int64(registration.MaxFailures) {
		a.publishSecurityEvent(ctx, models.SecurityEvent{
			Kind:           models.SecurityEventSuspiciousActivity,
			Severity:       models.SeverityWarning,
			TenantID:       req.TenantID,
			UserID:         req.UserID,
			DeviceID:       req.DeviceID,
			Message:        fmt.Sprintf("biometric %s locked out after %d failures", req.Modality, failures),
			ActionRequired: true,
		})
	}

	return &models.BiometricAuthResult{
		Failure:      models.FailureVerificationFailed,
		FailureCount: int(failures),
	}, nil
}

// expectedSignature derives the signature a genuine device would produce
// for this challenge, deterministically from the request fields.
func (a *Authenticator) expectedSignature(ctx context.Context, req *models.BiometricAuthRequest) ([]byte, error) {
	payload := req.Challenge + "\n" + req.PublicKey + "\n" + req.Timestamp.UTC().Format(time.RFC3339)
	return a.signer.Sign(ctx, []byte(payload))
}

func (a *Authenticator) issueSessionToken(ctx context.Context, req *models.BiometricAuthRequest) (string, time.Time, error) {
	token, err := security.NewSessionToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("biometric: failed to generate session token: %w", err)
	}

	expiresAt := a.now().UTC().Add(a.config.SessionTokenTTL)
	record := models.SessionTokenRecord{
		Token:     token,
		UserID:    req.UserID,
		TenantID:  req.TenantID,
		DeviceID:  req.DeviceID,
		ExpiresAt: expiresAt,
	}

	value, err := json.Marshal(record)
	if err != nil {
		return "", time.Time{}, err
	}

	key := credstore.SessionTokenKey(token)
	if err := a.store.Set(ctx, key, string(value), a.config.SessionTokenTTL); err != nil {
		return "", time.Time{}, fmt.Errorf("biometric: failed to persist session token: %w", err)
	}

	return token, expiresAt, nil
}

func (a *Authenticator) loadRegistration(ctx context.Context, tenantID, userID, deviceID string, modality models.Modality) (*models.BiometricRegistration, error) {
	key := credstore.RegistrationKey(tenantID, userID, deviceID, string(modality))

	value, found, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("biometric: failed to read registration: %w", err)
	}
	if !found {
		return nil, nil
	}

	var registration models.BiometricRegistration
	if err := json.Unmarshal([]byte(value), &registration); err != nil {
		return nil, fmt.Errorf("biometric: corrupt registration record: %w", err)
	}
	return &registration, nil
}

func (a *Authenticator) saveRegistration(ctx context.Context, registration *models.BiometricRegistration) error {
	value, err := json.Marshal(registration)
	if err != nil {
		return err
	}

	key := credstore.RegistrationKey(
		registration.TenantID,
		registration.UserID,
		registration.DeviceID,
		string(registration.Modality),
	)
	if err := a.store.Set(ctx, key, string(value), 0); err != nil {
		return fmt.Errorf("biometric: failed to persist registration: %w", err)
	}
	return nil
}

func (a *Authenticator) indexModality(ctx context.Context, registration *models.BiometricRegistration) error {
	key := credstore.ModalitiesKey(registration.TenantID, registration.UserID, registration.DeviceID)

	enrolled, err := a.enrolledModalities(ctx, registration.TenantID, registration.UserID, registration.DeviceID)
	if err != nil {
		return err
	}
	if slices.Contains(enrolled, registration.Modality) {
		return nil
	}

	enrolled = append(enrolled, registration.Modality)
	value, err := json.Marshal(enrolled)
	if err != nil {
		return err
	}
	if err := a.store.Set(ctx, key, string(value), 0); err != nil {
		return fmt.Errorf("biometric: failed to index modality: %w", err)
	}
	return nil
}

func (a *Authenticator) enrolledModalities(ctx context.Context, tenantID, userID, deviceID string) ([]models.Modality, error) {
	key := credstore.ModalitiesKey(tenantID, userID, deviceID)

	value, found, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("biometric: failed to read modality index: %w", err)
	}
	if !found {
		return nil, nil
	}

	var enrolled []models.Modality
	if err := json.Unmarshal([]byte(value), &enrolled); err != nil {
		return nil, fmt.Errorf("biometric: corrupt modality index: %w", err)
	}
	return enrolled, nil
}

func (a *Authenticator) failureCount(ctx context.Context, key string) (int64, error) {
	value, found, err := a.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("biometric: failed to read failure counter: %w", err)
	}
	if !found {
		return 0, nil
	}
	count, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("biometric: corrupt failure counter: %w", err)
	}
	return count, nil
}

func (a *Authenticator) publishSecurityEvent(ctx context.Context, event models.SecurityEvent) {
	if a.bus == nil {
		return
	}

	event.ID = uuid.NewString()
	event.Timestamp = a.now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		a.logger.Error("failed to marshal security event", "error", err)
		return
	}

	err = a.bus.Publish(ctx, models.Event{
		Type:    events.TypeSecurityEvent,
		Payload: payload,
	})
	if err != nil {
		a.logger.Error("failed to publish security event", "error", err, "kind", event.Kind)
	}
}

// decodeSignature accepts base64url signatures, falling back to the raw
// bytes for clients that send unencoded matcher output.
func decodeSignature(signature string) []byte {
	if decoded, err := base64.RawURLEncoding.DecodeString(signature); err == nil {
		return decoded
	}
	return []byte(signature)
}
