package model

import "time"

// Alert types
const (
	AlertBlockedSite     = "blocked_site"
	AlertBlockedApp      = "blocked_app"
	AlertScreenTimeLimit = "screen_time_limit"
	AlertTamperAttempt   = "tamper_attempt"
	AlertDeviceOffline   = "device_offline"
	AlertNewAppInstalled = "new_app_installed"
)

// ValidAlertType reports whether t is a known alert type.
func ValidAlertType(t string) bool {
	switch t {
	case AlertBlockedSite, AlertBlockedApp, AlertScreenTimeLimit,
		AlertTamperAttempt, AlertDeviceOffline, AlertNewAppInstalled:
		return true
	}
	return false
}

// Alert severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// ValidSeverity reports whether s is a known alert severity.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// Alert is a notification raised by a client installation. Details is an
// optional JSON blob. Mutated only by read/dismiss.
type Alert struct {
	ID             int64     `json:"id"`
	InstallationID int64     `json:"installation_id"`
	UserID         int64     `json:"user_id"`
	Type           string    `json:"alert_type"`
	Severity       string    `json:"severity"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Details        *string   `json:"details,omitempty"`
	IsRead         bool      `json:"is_read"`
	IsDismissed    bool      `json:"is_dismissed"`
	CreatedAt      time.Time `json:"created_at"`
}
