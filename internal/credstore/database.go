package credstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/uptrace/bun"

	"github.com/SessionWarden/go-session-warden/models"
)

// CredentialRecord is the key-value row backing the database credential
// store.
type CredentialRecord struct {
	bun.BaseModel `bun:"table:credential_records"`

	Key       string     `bun:",pk,type:varchar(255)"`
	Value     string     `bun:"value"`
	ExpiresAt *time.Time `bun:"expires_at,nullzero"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

// DatabaseStore implements the credential store on a SQL database through
// Bun. Expired rows are dropped lazily on read; Incr runs inside a
// transaction so concurrent counters do not race.
type DatabaseStore struct {
	db  *bun.DB
	now func() time.Time
}

var _ models.CredentialStore = (*DatabaseStore)(nil)

func NewDatabaseStore(db *bun.DB) *DatabaseStore {
	return &DatabaseStore{db: db, now: time.Now}
}

// Migrate creates the backing table if it does not exist.
func (ds *DatabaseStore) Migrate(ctx context.Context) error {
	_, err := ds.db.NewCreateTable().
		Model((*CredentialRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create credential_records table: %w", err)
	}
	return nil
}

func (ds *DatabaseStore) Get(ctx context.Context, key string) (string, bool, error) {
	record := new(CredentialRecord)
	err := ds.db.NewSelect().Model(record).Where("? = ?", bun.Ident("key"), key).Scan(ctx)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("credential store get error: %w", err)
	}

	if ds.expired(record) {
		_, _ = ds.db.NewDelete().Model((*CredentialRecord)(nil)).Where("? = ?", bun.Ident("key"), key).Exec(ctx)
		return "", false, nil
	}

	return record.Value, true, nil
}

func (ds *DatabaseStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	now := ds.now().UTC()
	record := &CredentialRecord{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ttl > 0 {
		expiresAt := now.Add(ttl)
		record.ExpiresAt = &expiresAt
	}

	_, err := ds.db.NewInsert().
		Model(record).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credential store set error: %w", err)
	}
	return nil
}

func (ds *DatabaseStore) Delete(ctx context.Context, key string) error {
	_, err := ds.db.NewDelete().Model((*CredentialRecord)(nil)).Where("? = ?", bun.Ident("key"), key).Exec(ctx)
	if err != nil {
		return fmt.Errorf("credential store delete error: %w", err)
	}
	return nil
}

func (ds *DatabaseStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var result int64

	err := ds.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := new(CredentialRecord)
		err := tx.NewSelect().Model(record).Where("? = ?", bun.Ident("key"), key).For("UPDATE").Scan(ctx)

		now := ds.now().UTC()

		switch {
		case err == sql.ErrNoRows:
			record = &CredentialRecord{
				Key:       key,
				Value:     "1",
				CreatedAt: now,
				UpdatedAt: now,
			}
			if ttl > 0 {
				expiresAt := now.Add(ttl)
				record.ExpiresAt = &expiresAt
			}
			if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
				return err
			}
			result = 1
			return nil

		case err != nil:
			return err
		}

		if ds.expired(record) {
			record.Value = "0"
			record.ExpiresAt = nil
			if ttl > 0 {
				expiresAt := now.Add(ttl)
				record.ExpiresAt = &expiresAt
			}
		}

		current, err := strconv.ParseInt(record.Value, 10, 64)
		if err != nil {
			return fmt.Errorf("non-integer value at %s: %w", key, err)
		}

		current++
		record.Value = strconv.FormatInt(current, 10)
		record.UpdatedAt = now

		if _, err := tx.NewUpdate().Model(record).WherePK().Exec(ctx); err != nil {
			return err
		}
		result = current
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("credential store incr error: %w", err)
	}

	return result, nil
}

func (ds *DatabaseStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	record := new(CredentialRecord)
	err := ds.db.NewSelect().Model(record).Where("? = ?", bun.Ident("key"), key).Scan(ctx)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("credential store ttl error: %w", err)
	}

	if record.ExpiresAt == nil || ds.expired(record) {
		return 0, false, nil
	}
	return record.ExpiresAt.Sub(ds.now()), true, nil
}

func (ds *DatabaseStore) Close() error {
	return ds.db.Close()
}

func (ds *DatabaseStore) expired(record *CredentialRecord) bool {
	return record.ExpiresAt != nil && ds.now().After(*record.ExpiresAt)
}
