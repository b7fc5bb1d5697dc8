// Package sessionwarden wires the cross-device session security core:
// biometric authentication, device token registry with push fan-out,
// per-device session synchronization and live event propagation.
package sessionwarden

import (
	"context"
	"errors"
	"fmt"

	"github.com/SessionWarden/go-session-warden/biometric"
	"github.com/SessionWarden/go-session-warden/events"
	internalsecurity "github.com/SessionWarden/go-session-warden/internal/security"
	"github.com/SessionWarden/go-session-warden/models"
	"github.com/SessionWarden/go-session-warden/notify"
	"github.com/SessionWarden/go-session-warden/notify/providers"
	"github.com/SessionWarden/go-session-warden/realtime"
	"github.com/SessionWarden/go-session-warden/sessionsync"
)

// Warden is the composition root. Every subsystem receives its
// dependencies here; none of them reaches for globals.
type Warden struct {
	Config *models.Config

	logger models.Logger
	store  models.CredentialStore
	bus    models.EventBus

	authenticator *biometric.Authenticator
	registry      *notify.Registry
	fanOut        *notify.FanOut
	realtimeBus   *realtime.Bus
}

// Options carries the pieces a host can inject instead of the
// configuration-driven defaults. Any nil field is built from config.
type Options struct {
	Logger          models.Logger
	CredentialStore models.CredentialStore
	EventBus        models.EventBus

	// PushProviders deliver platform pushes. When empty and a webhook URL
	// is configured, one webhook provider per platform is installed.
	PushProviders []notify.PushProvider

	// RealtimeTransport carries live event streams. Defaults to an
	// in-process transport sharing the event bus process space.
	RealtimeTransport realtime.Transport
}

// New wires a Warden from configuration.
func New(ctx context.Context, config *models.Config, opts Options) (*Warden, error) {
	if config == nil {
		return nil, fmt.Errorf("sessionwarden: config must not be nil")
	}

	logger := opts.Logger
	if logger == nil {
		logger = InitLogger(config)
	}

	store := opts.CredentialStore
	if store == nil {
		var err error
		store, err = InitCredentialStore(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("sessionwarden: credential store init failed: %w", err)
		}
	}

	bus := opts.EventBus
	if bus == nil {
		var err error
		bus, err = InitEventBus(config)
		if err != nil {
			return nil, fmt.Errorf("sessionwarden: event bus init failed: %w", err)
		}
	}

	signer := internalsecurity.NewHMACSigner(config.Secret)
	cipher := internalsecurity.NewTemplateCipher(config.Secret)

	authenticator := biometric.NewAuthenticator(store, signer, cipher, bus, logger, config.Biometric)

	registry := notify.NewRegistry(store, logger)

	pushProviders := opts.PushProviders
	if len(pushProviders) == 0 && config.Notify.WebhookURL != "" {
		for _, platform := range []models.Platform{models.PlatformIOS, models.PlatformAndroid, models.PlatformWeb} {
			provider, err := providers.NewWebhookProvider(platform, config.Notify.WebhookURL, logger)
			if err != nil {
				return nil, fmt.Errorf("sessionwarden: push provider init failed: %w", err)
			}
			pushProviders = append(pushProviders, provider)
		}
	}
	fanOut := notify.NewFanOut(registry, pushProviders, logger, config.Notify)

	transport := opts.RealtimeTransport
	if transport == nil {
		transport = realtime.NewPubSubTransport(events.NewInMemoryPubSub(16))
	}
	realtimeBus := realtime.NewBus(transport, logger, config.Realtime)

	return &Warden{
		Config:        config,
		logger:        logger,
		store:         store,
		bus:           bus,
		authenticator: authenticator,
		registry:      registry,
		fanOut:        fanOut,
		realtimeBus:   realtimeBus,
	}, nil
}

// Biometric returns the biometric authenticator.
func (w *Warden) Biometric() *biometric.Authenticator {
	return w.authenticator
}

// Tokens returns the device token registry.
func (w *Warden) Tokens() *notify.Registry {
	return w.registry
}

// Push returns the notification fan-out.
func (w *Warden) Push() *notify.FanOut {
	return w.fanOut
}

// Realtime returns the live event propagation bus.
func (w *Warden) Realtime() *realtime.Bus {
	return w.realtimeBus
}

// EventBus returns the internal event bus, for hosts that publish or
// consume their own events.
func (w *Warden) EventBus() models.EventBus {
	return w.bus
}

// Logger returns the configured logger.
func (w *Warden) Logger() models.Logger {
	return w.logger
}

// NewSynchronizer builds a session synchronizer for one device. Each
// device connection gets its own instance.
func (w *Warden) NewSynchronizer(device sessionsync.DeviceInfo, push sessionsync.PushCapability) *sessionsync.Synchronizer {
	return sessionsync.NewSynchronizer(
		w.store,
		w.registry,
		w.bus,
		push,
		w.logger,
		w.Config.Sync,
		device,
	)
}

// Close releases the realtime bus, the event bus and the credential
// store, in that order. Errors are collected, not short-circuited.
func (w *Warden) Close() error {
	var errs []error

	if err := w.realtimeBus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("realtime bus close: %w", err))
	}
	if err := w.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("event bus close: %w", err))
	}
	if err := w.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("credential store close: %w", err))
	}

	return errors.Join(errs...)
}
