package model

import "time"

// Platforms
const (
	PlatformWindows = "windows"
	PlatformMacOS   = "macos"
	PlatformLinux   = "linux"
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
)

// ValidPlatform reports whether p is a known platform value.
func ValidPlatform(p string) bool {
	switch p {
	case PlatformWindows, PlatformMacOS, PlatformLinux, PlatformAndroid, PlatformIOS:
		return true
	}
	return false
}

// Download sources
const (
	SourceWebsite   = "website"
	SourceDashboard = "dashboard"
	SourceEmail     = "email"
	SourceReferral  = "referral"
	SourceOther     = "other"
)

// ValidSource reports whether s is a known download source.
func ValidSource(s string) bool {
	switch s {
	case SourceWebsite, SourceDashboard, SourceEmail, SourceReferral, SourceOther:
		return true
	}
	return false
}

// Installation statuses
const (
	InstallStatusPending     = "pending"
	InstallStatusActive      = "active"
	InstallStatusInactive    = "inactive"
	InstallStatusUninstalled = "uninstalled"
)

// ValidInstallStatus reports whether s is a known installation status.
func ValidInstallStatus(s string) bool {
	switch s {
	case InstallStatusPending, InstallStatusActive, InstallStatusInactive, InstallStatusUninstalled:
		return true
	}
	return false
}

// Download records a download-button click. The token is an opaque UUID that
// an installation can later present to link itself back to the download.
type Download struct {
	ID         int64     `json:"id"`
	UserID     *int64    `json:"user_id,omitempty"`
	Token      string    `json:"download_token"`
	Platform   string    `json:"platform"`
	AppVersion string    `json:"app_version"`
	Source     string    `json:"source"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Referrer   string    `json:"referrer,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Installation is one instance of the client application bound to a user and
// a device. DeviceID is globally unique; re-registering an existing device
// rebinds it to the calling user.
type Installation struct {
	ID            int64     `json:"id"`
	PublicID      string    `json:"installation_id"`
	UserID        int64     `json:"user_id"`
	DownloadID    *int64    `json:"download_id,omitempty"`
	DeviceID      string    `json:"device_id"`
	DeviceName    string    `json:"device_name,omitempty"`
	Platform      string    `json:"platform"`
	OSVersion     string    `json:"os_version,omitempty"`
	AppVersion    string    `json:"app_version"`
	Status        string    `json:"status"`
	IsBlocked     bool      `json:"is_blocked"`
	BlockedReason *string   `json:"blocked_reason,omitempty"`
	LastSeen      time.Time `json:"last_seen"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
