package notify

import (
	"time"

	"github.com/SessionWarden/go-session-warden/models"
)

// Per-platform payload limits. Delivery services truncate oversized
// payloads anyway; trimming here keeps behavior predictable.
var platformLimits = map[models.Platform]struct {
	titleLen int
	bodyLen  int
	icon     string
	sound    string
}{
	models.PlatformIOS:     {titleLen: 50, bodyLen: 178, icon: "", sound: "default"},
	models.PlatformAndroid: {titleLen: 65, bodyLen: 240, icon: "ic_notification", sound: "default"},
	models.PlatformWeb:     {titleLen: 50, bodyLen: 120, icon: "/icons/badge.png", sound: ""},
}

const fallbackTTL = time.Hour

// OptimizeForPlatform shapes a payload for one delivery platform: size
// truncation, default sound/icon substitution, default TTL. The input
// payload is never mutated. Applied once per platform group, not per
// token.
func OptimizeForPlatform(platform models.Platform, payload models.PushPayload, defaultTTL time.Duration) models.PushPayload {
	out := payload
	if payload.Data != nil {
		out.Data = make(map[string]string, len(payload.Data))
		for k, v := range payload.Data {
			out.Data[k] = v
		}
	}

	limits, ok := platformLimits[platform]
	if !ok {
		return out
	}

	out.Title = truncate(out.Title, limits.titleLen)
	out.Body = truncate(out.Body, limits.bodyLen)

	if out.Sound == "" {
		out.Sound = limits.sound
	}
	if out.Icon == "" {
		out.Icon = limits.icon
	}
	if out.TTL == 0 {
		if defaultTTL > 0 {
			out.TTL = defaultTTL
		} else {
			out.TTL = fallbackTTL
		}
	}

	return out
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
