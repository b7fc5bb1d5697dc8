package sessionwarden

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/SessionWarden/go-session-warden/events"
	internalbootstrap "github.com/SessionWarden/go-session-warden/internal/bootstrap"
	internalcredstore "github.com/SessionWarden/go-session-warden/internal/credstore"
	internalevents "github.com/SessionWarden/go-session-warden/internal/events"
	"github.com/SessionWarden/go-session-warden/models"
)

// InitLogger initializes the logger based on configuration
func InitLogger(config *models.Config) models.Logger {
	return internalbootstrap.InitLogger(internalbootstrap.LoggerOptions{Level: config.Logger.Level})
}

// InitCredentialStore creates the credential store named by the
// configuration. The database flavour is migrated before use.
func InitCredentialStore(ctx context.Context, config *models.Config) (models.CredentialStore, error) {
	switch config.CredentialStore.Provider {
	case "", "memory":
		return internalcredstore.NewMemoryStore(), nil

	case "redis":
		return internalcredstore.NewRedisStore(internalcredstore.RedisStoreOptions{
			URL: config.CredentialStore.URL,
		})

	case "database":
		db, err := internalbootstrap.InitDatabase(internalbootstrap.DatabaseOptions{
			Provider:        config.CredentialStore.DatabaseProvider,
			URL:             config.CredentialStore.URL,
			MaxOpenConns:    config.CredentialStore.MaxOpenConns,
			MaxIdleConns:    config.CredentialStore.MaxIdleConns,
			ConnMaxLifetime: config.CredentialStore.ConnMaxLifetime,
			LogLevel:        config.Logger.Level,
		})
		if err != nil {
			return nil, err
		}

		store := internalcredstore.NewDatabaseStore(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}

	return nil, fmt.Errorf("unsupported credential store provider: %s", config.CredentialStore.Provider)
}

// InitEventBus creates an event bus based on the configuration
func InitEventBus(config *models.Config) (models.EventBus, error) {
	// Default to gochannel if not specified
	eventBusConfig := config.EventBus
	if eventBusConfig.Provider == "" {
		eventBusConfig.Provider = events.ProviderGoChannel.String()
	}
	if eventBusConfig.Provider == events.ProviderGoChannel.String() && eventBusConfig.GoChannel == nil {
		eventBusConfig.GoChannel = &models.GoChannelConfig{
			BufferSize: 100,
		}
	}

	logger := watermill.NewStdLogger(false, false)

	pubsub, err := internalevents.InitWatermillProvider(&eventBusConfig, logger)
	if err != nil {
		return nil, err
	}

	return events.NewEventBus(&eventBusConfig, pubsub), nil
}
