package model

import "time"

// Pairing code kinds
const (
	// PairingActivation codes are minted by an authenticated user and entered
	// on an unauthenticated device.
	PairingActivation = "activation"
	// PairingLink codes go the other way: minted by the device, entered by
	// the user on the web dashboard.
	PairingLink = "link"
)

// PairingCode is a short-lived, single-use code binding an unauthenticated
// device to an authenticated account. For link codes, the minted token pair
// is parked on the row until the device polls it off.
type PairingCode struct {
	ID           int64      `json:"id"`
	Kind         string     `json:"kind"`
	Code         string     `json:"code"`
	UserID       *int64     `json:"user_id,omitempty"`
	DeviceID     string     `json:"device_id,omitempty"`
	DeviceName   string     `json:"device_name,omitempty"`
	Platform     string     `json:"platform,omitempty"`
	IsUsed       bool       `json:"is_used"`
	IsLinked     bool       `json:"is_linked"`
	AccessToken  *string    `json:"-"`
	RefreshToken *string    `json:"-"`
	ExpiresAt    time.Time  `json:"expires_at"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Expired reports whether the code is past its expiry at the given time.
func (c *PairingCode) Expired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}
