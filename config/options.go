package config

import (
	"fmt"
	"os"
	"time"

	"github.com/SessionWarden/go-session-warden/env"
	"github.com/SessionWarden/go-session-warden/events"
	"github.com/SessionWarden/go-session-warden/models"
)

const defaultSecret = "session-warden-secret-0123456789"

type ConfigOption func(*models.Config)

// NewConfig builds a Config using functional options with sensible defaults.
// Panics if the event bus configuration is invalid or the default secret is
// still set in production.
func NewConfig(options ...ConfigOption) *models.Config {
	config := &models.Config{
		AppName: "SessionWarden",
		Secret:  defaultSecret,
		Logger:  models.LoggerConfig{},
		CredentialStore: models.CredentialStoreConfig{
			Provider:        "memory",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Minute * 10,
		},
		EventBus: models.EventBusConfig{},
		Biometric: models.BiometricConfig{
			MaxFailures:         5,
			SessionTokenTTL:     time.Hour,
			ReplayWindowPast:    5 * time.Minute,
			ReplayWindowFuture:  time.Minute,
			SimilarityThreshold: 0.85,
		},
		Notify: models.NotifyConfig{
			DefaultTTL: time.Hour,
		},
		Sync: models.SyncConfig{
			Interval: 5 * time.Minute,
		},
		Realtime: models.RealtimeConfig{
			ReconnectBase:        time.Second,
			MaxReconnectAttempts: 5,
		},
	}

	for _, option := range options {
		option(config)
	}

	if config.Sync.HeartbeatTTL == 0 {
		config.Sync.HeartbeatTTL = 2 * config.Sync.Interval
	}

	if err := validateEventBusConfig(&config.EventBus); err != nil {
		panic(fmt.Errorf("invalid event bus configuration: %w", err))
	}

	if os.Getenv(env.EnvGoEnvironment) == "production" && config.Secret == defaultSecret {
		panic(fmt.Errorf("a custom secret must be set in production mode. Please set a custom secret via configuration or the %s environment variable", env.EnvSecret))
	}

	return config
}

func validateEventBusConfig(config *models.EventBusConfig) error {
	if config.Provider == "" {
		return nil
	}
	provider := events.EventBusProvider(config.Provider)
	if !provider.Valid() {
		return fmt.Errorf("unknown provider %q", config.Provider)
	}
	return nil
}

func WithAppName(name string) ConfigOption {
	return func(c *models.Config) {
		if name != "" {
			c.AppName = name
		}
	}
}

func WithSecret(secret string) ConfigOption {
	return func(c *models.Config) {
		if envValue := os.Getenv(env.EnvSecret); envValue != "" {
			c.Secret = envValue
		} else if secret != "" {
			c.Secret = secret
		}
	}
}

func WithLogger(config models.LoggerConfig) ConfigOption {
	return func(c *models.Config) {
		if config.Level != "" {
			c.Logger = config
		}
	}
}

func WithCredentialStore(config models.CredentialStoreConfig) ConfigOption {
	return func(c *models.Config) {
		if config.Provider != "" {
			c.CredentialStore.Provider = config.Provider
		}
		if config.URL != "" {
			c.CredentialStore.URL = config.URL
		}
		if config.DatabaseProvider != "" {
			c.CredentialStore.DatabaseProvider = config.DatabaseProvider
		}
		if config.MaxOpenConns > 0 {
			c.CredentialStore.MaxOpenConns = config.MaxOpenConns
		}
		if config.MaxIdleConns > 0 {
			c.CredentialStore.MaxIdleConns = config.MaxIdleConns
		}
		if config.ConnMaxLifetime > 0 {
			c.CredentialStore.ConnMaxLifetime = config.ConnMaxLifetime
		}
	}
}

func WithEventBus(config models.EventBusConfig) ConfigOption {
	return func(c *models.Config) {
		if config.Provider != "" {
			c.EventBus = config
		}
	}
}

func WithBiometric(config models.BiometricConfig) ConfigOption {
	return func(c *models.Config) {
		if config.MaxFailures > 0 {
			c.Biometric.MaxFailures = config.MaxFailures
		}
		if config.SessionTokenTTL > 0 {
			c.Biometric.SessionTokenTTL = config.SessionTokenTTL
		}
		if config.ReplayWindowPast > 0 {
			c.Biometric.ReplayWindowPast = config.ReplayWindowPast
		}
		if config.ReplayWindowFuture > 0 {
			c.Biometric.ReplayWindowFuture = config.ReplayWindowFuture
		}
		if config.SimilarityThreshold > 0 {
			c.Biometric.SimilarityThreshold = config.SimilarityThreshold
		}
	}
}

func WithNotify(config models.NotifyConfig) ConfigOption {
	return func(c *models.Config) {
		if config.DefaultTTL > 0 {
			c.Notify.DefaultTTL = config.DefaultTTL
		}
		if envValue := os.Getenv(env.EnvPushWebhookURL); envValue != "" {
			c.Notify.WebhookURL = envValue
		} else if config.WebhookURL != "" {
			c.Notify.WebhookURL = config.WebhookURL
		}
	}
}

func WithSync(config models.SyncConfig) ConfigOption {
	return func(c *models.Config) {
		if config.Interval > 0 {
			c.Sync.Interval = config.Interval
		}
		if config.HeartbeatTTL > 0 {
			c.Sync.HeartbeatTTL = config.HeartbeatTTL
		}
	}
}

func WithRealtime(config models.RealtimeConfig) ConfigOption {
	return func(c *models.Config) {
		if config.ReconnectBase > 0 {
			c.Realtime.ReconnectBase = config.ReconnectBase
		}
		if config.MaxReconnectAttempts > 0 {
			c.Realtime.MaxReconnectAttempts = config.MaxReconnectAttempts
		}
	}
}
