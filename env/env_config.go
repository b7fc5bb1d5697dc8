package env

const (
	// CREDENTIAL STORE

	EnvRedisURL    = "REDIS_URL"
	EnvDatabaseURL = "SESSION_WARDEN_DATABASE_URL"

	// EVENT BUS

	EnvKafkaBrokers          = "KAFKA_BROKERS"
	EnvNatsURL               = "NATS_URL"
	EnvRabbitMQURL           = "RABBITMQ_URL"
	EnvPostgresURL           = "POSTGRES_URL"
	EnvEventBusConsumerGroup = "EVENT_BUS_CONSUMER_GROUP"

	// PUSH DELIVERY

	EnvPushWebhookURL = "PUSH_WEBHOOK_URL"

	// SESSION WARDEN

	EnvConfigPath = "SESSION_WARDEN_CONFIG_PATH"
	EnvSecret     = "SESSION_WARDEN_SECRET"

	// ENVIRONMENT

	EnvGoEnvironment = "GO_ENV"
)
