package models

import "time"

// Platform identifies a push delivery platform.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformWeb:
		return true
	}
	return false
}

// DeviceToken is one registered push token. Unique per physical token
// string; re-registration from the same device updates the record in
// place rather than duplicating it.
type DeviceToken struct {
	TenantID   string   `json:"tenant_id"`
	UserID     string   `json:"user_id"`
	DeviceID   string   `json:"device_id"`
	Platform   Platform `json:"platform"`
	Token      string   `json:"token"`
	AppVersion string   `json:"app_version"`

	Active bool `json:"active"`

	LastUsedAt time.Time `json:"last_used_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// PushPayload is a platform-neutral notification body. Platform-specific
// shaping happens in the fan-out engine, once per platform group.
type PushPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
	Icon  string            `json:"icon,omitempty"`
	Badge int               `json:"badge,omitempty"`
	TTL   time.Duration     `json:"ttl,omitempty"`
}

// DeliveryResult is what a push provider reports for one platform send.
type DeliveryResult struct {
	Delivered     int      `json:"delivered"`
	Failed        int      `json:"failed"`
	InvalidTokens []string `json:"invalid_tokens,omitempty"`
}

// FanOutResult aggregates per-platform delivery results. One platform's
// outage never aborts another's send; its error lands in PlatformErrors.
type FanOutResult struct {
	Success        bool                `json:"success"`
	DeliveredCount int                 `json:"delivered_count"`
	FailedCount    int                 `json:"failed_count"`
	InvalidTokens  []string            `json:"invalid_tokens,omitempty"`
	PlatformErrors map[Platform]string `json:"platform_errors,omitempty"`
}
