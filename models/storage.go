package models

import (
	"context"
	"time"
)

// CredentialStore is the shared key-value store persisting biometric
// registrations, device tokens and session records. Keys are namespaced
// strings; semantics are per-key last-writer-wins with no cross-key
// transactions. A zero TTL means the key does not expire.
type CredentialStore interface {
	// Get returns the value for key, with found=false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	Set(ctx context.Context, key, value string, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// Incr atomically increments the integer value at key and returns the
	// new value. A missing key counts from zero. The TTL is applied only
	// when the key is created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// TTL reports the remaining lifetime of key; found is false when the
	// key is absent or has no expiry.
	TTL(ctx context.Context, key string) (ttl time.Duration, found bool, err error)

	Close() error
}
