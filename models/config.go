package models

import "time"

type Config struct {
	AppName string `json:"app_name" toml:"app_name"`

	// Secret is the application master secret. Tenant-scoped template
	// encryption keys and signing keys are derived from it.
	Secret string `json:"secret" toml:"secret"`

	Logger          LoggerConfig          `json:"logger" toml:"logger"`
	CredentialStore CredentialStoreConfig `json:"credential_store" toml:"credential_store"`
	EventBus        EventBusConfig        `json:"event_bus" toml:"event_bus"`
	Biometric       BiometricConfig       `json:"biometric" toml:"biometric"`
	Notify          NotifyConfig          `json:"notify" toml:"notify"`
	Sync            SyncConfig            `json:"sync" toml:"sync"`
	Realtime        RealtimeConfig        `json:"realtime" toml:"realtime"`
}

type LoggerConfig struct {
	Level string `json:"level" toml:"level"`
}

// CredentialStoreConfig selects the backing store for registrations,
// device tokens and session records.
type CredentialStoreConfig struct {
	Provider string `json:"provider" toml:"provider"` // memory | redis | database
	URL      string `json:"url" toml:"url"`

	// Database settings, used when Provider is "database".
	DatabaseProvider string        `json:"database_provider" toml:"database_provider"` // postgres | sqlite | mysql
	MaxOpenConns     int           `json:"max_open_conns" toml:"max_open_conns"`
	MaxIdleConns     int           `json:"max_idle_conns" toml:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `json:"conn_max_lifetime" toml:"conn_max_lifetime"`
}

type EventBusConfig struct {
	Provider string `json:"provider" toml:"provider"`
	Prefix   string `json:"prefix" toml:"prefix"`

	GoChannel  *GoChannelConfig  `json:"gochannel" toml:"gochannel"`
	Redis      *RedisConfig      `json:"redis" toml:"redis"`
	Kafka      *KafkaConfig      `json:"kafka" toml:"kafka"`
	NATS       *NatsConfig       `json:"nats" toml:"nats"`
	RabbitMQ   *RabbitMQConfig   `json:"rabbitmq" toml:"rabbitmq"`
	PostgreSQL *PostgreSQLConfig `json:"postgresql" toml:"postgresql"`
}

type GoChannelConfig struct {
	BufferSize int `json:"buffer_size" toml:"buffer_size"`
}

type RedisConfig struct {
	URL           string `json:"url" toml:"url"`
	ConsumerGroup string `json:"consumer_group" toml:"consumer_group"`
}

type KafkaConfig struct {
	Brokers       string `json:"brokers" toml:"brokers"`
	ConsumerGroup string `json:"consumer_group" toml:"consumer_group"`
}

type NatsConfig struct {
	URL string `json:"url" toml:"url"`
}

type RabbitMQConfig struct {
	URL string `json:"url" toml:"url"`
}

type PostgreSQLConfig struct {
	URL string `json:"url" toml:"url"`
}

type BiometricConfig struct {
	// MaxFailures is the hard lockout threshold. Once the failure counter
	// reaches it, every authentication attempt is rejected until the
	// device re-registers.
	MaxFailures int `json:"max_failures" toml:"max_failures"`

	SessionTokenTTL time.Duration `json:"session_token_ttl" toml:"session_token_ttl"`

	// Replay window bounds. Requests older than ReplayWindowPast or more
	// than ReplayWindowFuture ahead of the server clock are rejected.
	ReplayWindowPast   time.Duration `json:"replay_window_past" toml:"replay_window_past"`
	ReplayWindowFuture time.Duration `json:"replay_window_future" toml:"replay_window_future"`

	// SimilarityThreshold is the minimum signature similarity score
	// accepted by the matcher.
	SimilarityThreshold float64 `json:"similarity_threshold" toml:"similarity_threshold"`
}

type NotifyConfig struct {
	// DefaultTTL is applied to payloads that do not carry their own.
	DefaultTTL time.Duration `json:"default_ttl" toml:"default_ttl"`

	// WebhookURL is the endpoint of the webhook push provider, when used.
	WebhookURL string `json:"webhook_url" toml:"webhook_url"`
}

type SyncConfig struct {
	Interval time.Duration `json:"interval" toml:"interval"`

	// HeartbeatTTL bounds how long a pushed heartbeat stays visible to
	// other devices. Defaults to twice the sync interval.
	HeartbeatTTL time.Duration `json:"heartbeat_ttl" toml:"heartbeat_ttl"`
}

type RealtimeConfig struct {
	ReconnectBase        time.Duration `json:"reconnect_base" toml:"reconnect_base"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts" toml:"max_reconnect_attempts"`
}
