package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/SessionWarden/go-session-warden/internal/credstore"
	"github.com/SessionWarden/go-session-warden/models"
)

// Registry tracks per-device push tokens, keyed by the physical token
// string, with per-user and per-tenant indexes for fan-out resolution.
type Registry struct {
	store  models.CredentialStore
	logger models.Logger

	now func() time.Time
}

func NewRegistry(store models.CredentialStore, logger models.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterParams describes one push-token registration.
type RegisterParams struct {
	TenantID   string
	UserID     string
	DeviceID   string
	Platform   models.Platform
	Token      string
	AppVersion string
}

// RegisterToken registers a push token. Re-registering an existing token
// string updates app version and last-used and re-activates it instead of
// duplicating the record.
func (r *Registry) RegisterToken(ctx context.Context, params RegisterParams) (*models.DeviceToken, error) {
	if params.Token == "" {
		return nil, fmt.Errorf("notify: token is required")
	}
	if !params.Platform.Valid() {
		return nil, fmt.Errorf("notify: invalid platform %q", params.Platform)
	}

	now := r.now().UTC()
	key := credstore.DeviceTokenKey(params.Token)

	token, err := r.lookupToken(ctx, params.Token)
	if err != nil {
		return nil, err
	}

	if token != nil {
		token.AppVersion = params.AppVersion
		token.LastUsedAt = now
		token.Active = true
	} else {
		token = &models.DeviceToken{
			TenantID:   params.TenantID,
			UserID:     params.UserID,
			DeviceID:   params.DeviceID,
			Platform:   params.Platform,
			Token:      params.Token,
			AppVersion: params.AppVersion,
			Active:     true,
			LastUsedAt: now,
			CreatedAt:  now,
		}
	}

	value, err := json.Marshal(token)
	if err != nil {
		return nil, err
	}
	if err := r.store.Set(ctx, key, string(value), 0); err != nil {
		return nil, fmt.Errorf("notify: failed to persist device token: %w", err)
	}

	if err := r.appendIndex(ctx, credstore.UserTokensKey(params.TenantID, params.UserID), params.Token); err != nil {
		return nil, err
	}
	if err := r.appendIndex(ctx, credstore.TenantUsersKey(params.TenantID), params.UserID); err != nil {
		return nil, err
	}

	return token, nil
}

// UnregisterToken marks a token inactive. The record stays for audit; the
// indexes filter on the active flag at resolution time.
func (r *Registry) UnregisterToken(ctx context.Context, token string) error {
	record, err := r.lookupToken(ctx, token)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}

	record.Active = false
	value, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, credstore.DeviceTokenKey(token), string(value), 0); err != nil {
		return fmt.Errorf("notify: failed to deactivate device token: %w", err)
	}
	return nil
}

// ActiveTokensForUser resolves the live device tokens of one user.
func (r *Registry) ActiveTokensForUser(ctx context.Context, tenantID, userID string) ([]models.DeviceToken, error) {
	tokens, err := r.readIndex(ctx, credstore.UserTokensKey(tenantID, userID))
	if err != nil {
		return nil, err
	}

	var active []models.DeviceToken
	for _, token := range tokens {
		record, err := r.lookupToken(ctx, token)
		if err != nil {
			return nil, err
		}
		if record != nil && record.Active {
			active = append(active, *record)
		}
	}
	return active, nil
}

// ActiveUsersForTenant lists users of a tenant with at least one
// registered push token.
func (r *Registry) ActiveUsersForTenant(ctx context.Context, tenantID string) ([]string, error) {
	return r.readIndex(ctx, credstore.TenantUsersKey(tenantID))
}

func (r *Registry) lookupToken(ctx context.Context, token string) (*models.DeviceToken, error) {
	value, found, err := r.store.Get(ctx, credstore.DeviceTokenKey(token))
	if err != nil {
		return nil, fmt.Errorf("notify: failed to read device token: %w", err)
	}
	if !found {
		return nil, nil
	}

	var record models.DeviceToken
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return nil, fmt.Errorf("notify: corrupt device token record: %w", err)
	}
	return &record, nil
}

func (r *Registry) appendIndex(ctx context.Context, key, member string) error {
	members, err := r.readIndex(ctx, key)
	if err != nil {
		return err
	}
	if slices.Contains(members, member) {
		return nil
	}

	members = append(members, member)
	value, err := json.Marshal(members)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, key, string(value), 0); err != nil {
		return fmt.Errorf("notify: failed to update index %s: %w", key, err)
	}
	return nil
}

func (r *Registry) readIndex(ctx context.Context, key string) ([]string, error) {
	value, found, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("notify: failed to read index %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}

	var members []string
	if err := json.Unmarshal([]byte(value), &members); err != nil {
		return nil, fmt.Errorf("notify: corrupt index %s: %w", key, err)
	}
	return members, nil
}
