package credstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SessionWarden/go-session-warden/env"
	"github.com/SessionWarden/go-session-warden/models"
)

// RedisStoreOptions configures a Redis credential store instance
type RedisStoreOptions struct {
	URL         string
	MaxRetries  int
	PoolSize    int
	PoolTimeout time.Duration
}

// RedisStore implements the credential store on Redis. Incr maps onto
// INCR, which makes lockout counters safe under concurrent attempts.
type RedisStore struct {
	client *redis.Client
}

var _ models.CredentialStore = (*RedisStore)(nil)

func NewRedisStore(opts RedisStoreOptions) (*RedisStore, error) {
	if envURL := os.Getenv(env.EnvRedisURL); envURL != "" {
		opts.URL = envURL
	}
	if opts.URL == "" {
		return nil, fmt.Errorf("redis URL must be provided via config or %s", env.EnvRedisURL)
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = 10
	}
	if opts.PoolTimeout == 0 {
		opts.PoolTimeout = 30 * time.Second
	}

	opt, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	opt.MaxRetries = opts.MaxRetries
	opt.PoolSize = opts.PoolSize
	opt.PoolTimeout = opts.PoolTimeout
	opt.ReadTimeout = 5 * time.Second
	opt.WriteTimeout = 5 * time.Second

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.URL, err)
	}

	return &RedisStore{client: client}, nil
}

func (rs *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := rs.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get error: %w", err)
	}
	return val, true, nil
}

func (rs *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := rs.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (rs *RedisStore) Delete(ctx context.Context, key string) error {
	if err := rs.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

func (rs *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	exists, err := rs.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis exists check error: %w", err)
	}

	val, err := rs.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr error: %w", err)
	}

	// TTL only applies on key creation.
	if exists == 0 && ttl > 0 {
		if err := rs.client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("redis expire error: %w", err)
		}
	}

	return val, nil
}

func (rs *RedisStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, err := rs.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("redis ttl error: %w", err)
	}

	// -1 is "no expiry", -2 is "no such key".
	if ttl < 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}

func (rs *RedisStore) Close() error {
	if rs.client != nil {
		return rs.client.Close()
	}
	return nil
}
