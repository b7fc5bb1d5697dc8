package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SessionWarden/go-session-warden/models"
)

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}

func TestWebhookProvider_Send(t *testing.T) {
	var got webhookRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode failed: %v", err)
		}
		json.NewEncoder(w).Encode(models.DeliveryResult{
			Delivered:     1,
			Failed:        1,
			InvalidTokens: []string{"tok-bad"},
		})
	}))
	defer server.Close()

	provider, err := NewWebhookProvider(models.PlatformIOS, server.URL, nopLogger{})
	if err != nil {
		t.Fatalf("provider init failed: %v", err)
	}

	result, err := provider.Send(context.Background(), []string{"tok-ok", "tok-bad"}, models.PushPayload{Title: "hello"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if got.Platform != models.PlatformIOS {
		t.Errorf("expected platform ios, got %q", got.Platform)
	}
	if len(got.Tokens) != 2 {
		t.Errorf("expected 2 tokens in request, got %d", len(got.Tokens))
	}
	if result.Delivered != 1 || result.Failed != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(result.InvalidTokens) != 1 || result.InvalidTokens[0] != "tok-bad" {
		t.Errorf("expected tok-bad reported invalid, got %v", result.InvalidTokens)
	}
}

func TestWebhookProvider_Non200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider, err := NewWebhookProvider(models.PlatformWeb, server.URL, nopLogger{})
	if err != nil {
		t.Fatalf("provider init failed: %v", err)
	}

	if _, err := provider.Send(context.Background(), []string{"tok"}, models.PushPayload{}); err == nil {
		t.Error("expected an error for a non-200 response")
	}
}

func TestWebhookProvider_EmptyEndpoint(t *testing.T) {
	if _, err := NewWebhookProvider(models.PlatformIOS, "", nopLogger{}); err == nil {
		t.Error("expected an error for an empty endpoint")
	}
}
