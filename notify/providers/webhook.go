// Package providers contains push-delivery provider implementations.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/SessionWarden/go-session-warden/models"
)

// WebhookProvider delivers pushes through an HTTP relay that speaks the
// generic delivery contract: it accepts a token batch plus payload and
// answers with delivered/failed counts and the tokens it found invalid.
// Real platform SDKs sit behind the relay, outside this core.
type WebhookProvider struct {
	platform models.Platform
	endpoint string
	client   *http.Client
	logger   models.Logger
}

func NewWebhookProvider(platform models.Platform, endpoint string, logger models.Logger) (*WebhookProvider, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("webhook provider endpoint must not be empty")
	}

	return &WebhookProvider{
		platform: platform,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}, nil
}

func (p *WebhookProvider) Platform() models.Platform {
	return p.platform
}

type webhookRequest struct {
	Platform models.Platform    `json:"platform"`
	Tokens   []string           `json:"tokens"`
	Payload  models.PushPayload `json:"payload"`
}

func (p *WebhookProvider) Send(ctx context.Context, tokens []string, payload models.PushPayload) (models.DeliveryResult, error) {
	body, err := json.Marshal(webhookRequest{
		Platform: p.platform,
		Tokens:   tokens,
		Payload:  payload,
	})
	if err != nil {
		return models.DeliveryResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return models.DeliveryResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return models.DeliveryResult{}, fmt.Errorf("webhook send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.DeliveryResult{}, fmt.Errorf("webhook send failed: status %d", resp.StatusCode)
	}

	var result models.DeliveryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.DeliveryResult{}, fmt.Errorf("webhook send failed: invalid response: %w", err)
	}

	return result, nil
}
