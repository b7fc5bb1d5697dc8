package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	sessionwarden "github.com/SessionWarden/go-session-warden"
	sessionwardenconfig "github.com/SessionWarden/go-session-warden/config"
	sessionwardenevents "github.com/SessionWarden/go-session-warden/events"
	sessionwardenmodels "github.com/SessionWarden/go-session-warden/models"
)

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// Run SessionWarden in standalone mode
func main() {
	err := godotenv.Load()
	if err != nil {
		env := os.Getenv("GO_ENV")
		if env != "production" {
			log.Println("No .env file found, relying on environment variables")
		}
	}

	// Load configuration from TOML file if available
	tomlConfig := loadConfigFromFile()

	// Apply environment variable overrides
	applyConfigOverrides(&tomlConfig)

	// Build config using functional options pattern to ensure all fields are set
	wardenConfig := sessionwardenconfig.NewConfig(
		sessionwardenconfig.WithAppName(tomlConfig.AppName),
		sessionwardenconfig.WithSecret(tomlConfig.Secret),
		sessionwardenconfig.WithLogger(tomlConfig.Logger),
		sessionwardenconfig.WithCredentialStore(tomlConfig.CredentialStore),
		sessionwardenconfig.WithEventBus(tomlConfig.EventBus),
		sessionwardenconfig.WithBiometric(tomlConfig.Biometric),
		sessionwardenconfig.WithNotify(tomlConfig.Notify),
		sessionwardenconfig.WithSync(tomlConfig.Sync),
		sessionwardenconfig.WithRealtime(tomlConfig.Realtime),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	warden, err := sessionwarden.New(ctx, wardenConfig, sessionwarden.Options{})
	if err != nil {
		slog.Error("Failed to initialize warden", "error", err)
		os.Exit(1)
	}
	logger := warden.Logger()

	// Forward security events to push notifications for events that need
	// the user's attention even when no session is live.
	_, err = warden.EventBus().Subscribe(sessionwardenevents.TypeSecurityEvent, func(ctx context.Context, event sessionwardenmodels.Event) error {
		var secEvent sessionwardenmodels.SecurityEvent
		if err := json.Unmarshal(event.Payload, &secEvent); err != nil {
			return err
		}
		if secEvent.Severity == sessionwardenmodels.SeverityInfo {
			return nil
		}

		_, err := warden.Push().SendToUsers(ctx, secEvent.TenantID, []string{secEvent.UserID}, sessionwardenmodels.PushPayload{
			Title: "Security alert",
			Body:  secEvent.Message,
			Data: map[string]string{
				"event_id": secEvent.ID,
				"kind":     string(secEvent.Kind),
			},
		})
		return err
	})
	if err != nil {
		logger.Error("Failed to subscribe to security events", "error", err)
	}

	logger.Info("SessionWarden started",
		"app_name", wardenConfig.AppName,
		"credential_store", wardenConfig.CredentialStore.Provider,
		"event_bus", wardenConfig.EventBus.Provider,
	)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-shutdownChan
	logger.Info("Shutdown signal received", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	done := make(chan error, 1)
	go func() { done <- warden.Close() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("Shutdown error", "error", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logger.Error("Shutdown timed out")
		os.Exit(1)
	}
}

// loadConfigFromFile attempts to load configuration from TOML file if it exists
func loadConfigFromFile() sessionwardenmodels.Config {
	configPath := getEnv("SESSION_WARDEN_CONFIG_PATH", "config.toml")
	var config sessionwardenmodels.Config

	if _, err := os.Stat(configPath); err != nil {
		// File doesn't exist, return empty config - will use env vars and defaults
		return config
	}

	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		slog.Warn("Failed to parse TOML config file, will use environment variables and defaults", "path", configPath, "error", err)
	}

	return config
}

// applyConfigOverrides applies environment variable overrides
func applyConfigOverrides(config *sessionwardenmodels.Config) {
	if secret := os.Getenv("SESSION_WARDEN_SECRET"); secret != "" {
		config.Secret = secret
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" && config.CredentialStore.Provider == "redis" {
		config.CredentialStore.URL = redisURL
	}
}
