package sessionsync

import (
	"net/url"
	"strings"
)

// Flow classifies an authentication callback deep link.
type Flow string

const (
	FlowNone               Flow = ""
	FlowOAuthCallback      Flow = "oauth_callback"
	FlowPasswordReset      Flow = "password_reset"
	FlowEmailVerification  Flow = "email_verification"
	FlowDeviceVerification Flow = "device_verification"
)

// DeepLink is the parsed form of an authentication callback URL. A zero
// Flow means the URL did not match any known flow; that is not an error,
// the caller decides whether it is notable.
type DeepLink struct {
	Flow     Flow
	Provider string
	Token    string
	Code     string
	State    string
	DeviceID string
	Error    string
}

// ParseDeepLink maps a callback URL onto a flow. The host segment selects
// the flow type:
//
//	scheme://auth/{provider}?code=&state=&error=
//	scheme://reset-password?token=
//	scheme://verify-email?token=
//	scheme://verify-device?token=&deviceId=
func ParseDeepLink(raw string) DeepLink {
	parsed, err := url.Parse(raw)
	if err != nil {
		return DeepLink{}
	}

	query := parsed.Query()

	switch parsed.Host {
	case "auth":
		provider := strings.Trim(parsed.Path, "/")
		if slash := strings.IndexByte(provider, '/'); slash >= 0 {
			provider = provider[:slash]
		}
		if provider == "" {
			return DeepLink{}
		}
		return DeepLink{
			Flow:     FlowOAuthCallback,
			Provider: provider,
			Code:     query.Get("code"),
			State:    query.Get("state"),
			Error:    query.Get("error"),
		}

	case "reset-password":
		return DeepLink{
			Flow:  FlowPasswordReset,
			Token: query.Get("token"),
		}

	case "verify-email":
		return DeepLink{
			Flow:  FlowEmailVerification,
			Token: query.Get("token"),
		}

	case "verify-device":
		return DeepLink{
			Flow:     FlowDeviceVerification,
			Token:    query.Get("token"),
			DeviceID: query.Get("deviceId"),
		}
	}

	return DeepLink{}
}
