package notify

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/SessionWarden/go-session-warden/models"
)

var errNoProvider = errors.New("no provider configured for platform")

// PushProvider delivers a payload to a batch of tokens on one platform.
// Implementations wrap real delivery services; the contract is only the
// aggregate counts and the tokens found invalid.
type PushProvider interface {
	Platform() models.Platform
	Send(ctx context.Context, tokens []string, payload models.PushPayload) (models.DeliveryResult, error)
}

// FanOut delivers one payload to all tokens of a set of users, partitioned
// by platform. Platforms are delivered independently and concurrently, so
// one platform's outage does not block or abort another's send.
type FanOut struct {
	registry  *Registry
	providers map[models.Platform]PushProvider
	logger    models.Logger
	config    models.NotifyConfig
}

func NewFanOut(
	registry *Registry,
	providers []PushProvider,
	logger models.Logger,
	config models.NotifyConfig,
) *FanOut {
	byPlatform := make(map[models.Platform]PushProvider, len(providers))
	for _, provider := range providers {
		byPlatform[provider.Platform()] = provider
	}

	return &FanOut{
		registry:  registry,
		providers: byPlatform,
		logger:    logger,
		config:    config,
	}
}

type platformOutcome struct {
	platform models.Platform
	result   models.DeliveryResult
	err      error
}

// SendToUsers fans a payload out to every active token of the given users.
// An empty token set yields Success=false with zero counts, not an error.
func (f *FanOut) SendToUsers(ctx context.Context, tenantID string, userIDs []string, payload models.PushPayload) (*models.FanOutResult, error) {
	groups := make(map[models.Platform][]string)
	for _, userID := range userIDs {
		tokens, err := f.registry.ActiveTokensForUser(ctx, tenantID, userID)
		if err != nil {
			return nil, err
		}
		for _, token := range tokens {
			groups[token.Platform] = append(groups[token.Platform], token.Token)
		}
	}

	total := 0
	for _, tokens := range groups {
		total += len(tokens)
	}
	if total == 0 {
		return &models.FanOutResult{Success: false}, nil
	}

	outcomes := make(chan platformOutcome, len(groups))
	var wg sync.WaitGroup

	for platform, tokens := range groups {
		provider, ok := f.providers[platform]
		if !ok {
			outcomes <- platformOutcome{
				platform: platform,
				result:   models.DeliveryResult{Failed: len(tokens)},
				err:      errNoProvider,
			}
			continue
		}

		// Shape the payload once per platform group, not per token.
		optimized := OptimizeForPlatform(platform, payload, f.config.DefaultTTL)

		wg.Add(1)
		go func(platform models.Platform, tokens []string) {
			defer wg.Done()
			result, err := provider.Send(ctx, tokens, optimized)
			if err != nil {
				// The whole group counts as failed on a provider error.
				result = models.DeliveryResult{Failed: len(tokens)}
			}
			outcomes <- platformOutcome{platform: platform, result: result, err: err}
		}(platform, tokens)
	}

	wg.Wait()
	close(outcomes)

	result := &models.FanOutResult{Success: true}
	var invalid []string

	for outcome := range outcomes {
		result.DeliveredCount += outcome.result.Delivered
		result.FailedCount += outcome.result.Failed
		invalid = append(invalid, outcome.result.InvalidTokens...)

		if outcome.err != nil {
			if result.PlatformErrors == nil {
				result.PlatformErrors = make(map[models.Platform]string)
			}
			result.PlatformErrors[outcome.platform] = outcome.err.Error()
			f.logger.Warn("platform delivery failed",
				"platform", outcome.platform,
				"error", outcome.err,
			)
		}
	}

	// Prune invalid tokens only after every platform send has completed,
	// so one platform's pruning never interleaves with another's send.
	for _, token := range invalid {
		if err := f.registry.UnregisterToken(ctx, token); err != nil {
			f.logger.Error("failed to deactivate invalid token", "error", err)
		}
	}
	result.InvalidTokens = invalid

	if result.DeliveredCount == 0 {
		result.Success = false
	}

	return result, nil
}

// SendToTenant fans a payload out to all active users of a tenant, minus
// the excluded ones.
func (f *FanOut) SendToTenant(ctx context.Context, tenantID string, payload models.PushPayload, excludeUserIDs []string) (*models.FanOutResult, error) {
	users, err := f.registry.ActiveUsersForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var targets []string
	for _, userID := range users {
		if !slices.Contains(excludeUserIDs, userID) {
			targets = append(targets, userID)
		}
	}

	return f.SendToUsers(ctx, tenantID, targets, payload)
}
