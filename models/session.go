package models

import "time"

// GeoPoint is an optional coarse location attached to a session.
type GeoPoint struct {
	City    string  `json:"city,omitempty"`
	Country string  `json:"country,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lon     float64 `json:"lon,omitempty"`
}

// UserSession is one authenticated device as seen in the authoritative
// session list. Synchronized periodically; terminated explicitly or on
// expiry.
type UserSession struct {
	SessionID  string    `json:"session_id"`
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name,omitempty"`
	Platform   Platform  `json:"platform"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	LastActive time.Time `json:"last_active"`
	Active     bool      `json:"active"`
	Trusted    bool      `json:"trusted"`
	Geo        *GeoPoint `json:"geo,omitempty"`
}

// Heartbeat is the periodic liveness record a device pushes for itself.
type Heartbeat struct {
	DeviceID   string    `json:"device_id"`
	Platform   Platform  `json:"platform"`
	AppVersion string    `json:"app_version"`
	Timestamp  time.Time `json:"timestamp"`
}
