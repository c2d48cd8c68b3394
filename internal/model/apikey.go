package model

import "time"

// API key scopes
const (
	ScopeRead    = "read"
	ScopeWrite   = "write"
	ScopeDevices = "devices"
	ScopeAlerts  = "alerts"
	ScopeSync    = "sync"
)

// APIKey is a programmatic-access credential. Only the SHA-256 hash is stored;
// KeyPrefix keeps the first characters for display in the dashboard.
type APIKey struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `json:"key_prefix"`
	Name       string     `json:"name"`
	Scopes     []string   `json:"scopes"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	IsRevoked  bool       `json:"is_revoked"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Expired reports whether the key is past its expiry at the given time.
// Keys with no expiry never expire.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}
