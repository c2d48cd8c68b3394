package model

import "time"

// Web filter categories
const (
	CategoryAdult       = "adult"
	CategorySocialMedia = "social_media"
	CategoryGaming      = "gaming"
	CategoryGambling    = "gambling"
	CategoryStreaming   = "streaming"
	CategoryShopping    = "shopping"
	CategoryNews        = "news"
	CategoryForums      = "forums"
)

// ValidCategory reports whether c is a known web filter category.
func ValidCategory(c string) bool {
	switch c {
	case CategoryAdult, CategorySocialMedia, CategoryGaming, CategoryGambling,
		CategoryStreaming, CategoryShopping, CategoryNews, CategoryForums:
		return true
	}
	return false
}

// ScreenTimeConfig holds per-weekday minute limits for one installation.
// A limit of 0 means unlimited.
type ScreenTimeConfig struct {
	ID             int64     `json:"id"`
	InstallationID int64     `json:"installation_id"`
	IsEnabled      bool      `json:"is_enabled"`
	MondayLimit    int       `json:"monday_limit"`
	TuesdayLimit   int       `json:"tuesday_limit"`
	WednesdayLimit int       `json:"wednesday_limit"`
	ThursdayLimit  int       `json:"thursday_limit"`
	FridayLimit    int       `json:"friday_limit"`
	SaturdayLimit  int       `json:"saturday_limit"`
	SundayLimit    int       `json:"sunday_limit"`
	AllowedStart   *string   `json:"allowed_start_time,omitempty"`
	AllowedEnd     *string   `json:"allowed_end_time,omitempty"`
	GracePeriod    int       `json:"grace_period"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BlockedApp is a blocked application or game on one installation.
// Schedule is an optional JSON blob of per-weekday time windows.
type BlockedApp struct {
	ID             int64     `json:"id"`
	InstallationID int64     `json:"installation_id"`
	AppName        string    `json:"app_name"`
	AppIdentifier  string    `json:"app_identifier"`
	Platform       string    `json:"platform"`
	IsGame         bool      `json:"is_game"`
	IsEnabled      bool      `json:"is_enabled"`
	Schedule       *string   `json:"schedule,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// WebFilterConfig is the per-installation web filtering configuration.
// BlockedCategories is stored as a JSON array of category strings.
type WebFilterConfig struct {
	ID                int64     `json:"id"`
	InstallationID    int64     `json:"installation_id"`
	IsEnabled         bool      `json:"is_enabled"`
	BlockedCategories []string  `json:"blocked_categories"`
	EnforceSafeSearch bool      `json:"enforce_safe_search"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// WebFilterRule is a custom URL block/allow rule under a WebFilterConfig.
type WebFilterRule struct {
	ID         int64     `json:"id"`
	ConfigID   int64     `json:"config_id"`
	URLPattern string    `json:"url_pattern"`
	IsBlocked  bool      `json:"is_blocked"`
	IsEnabled  bool      `json:"is_enabled"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserSettings holds account-level notification preferences.
type UserSettings struct {
	ID                  int64     `json:"id"`
	UserID              int64     `json:"user_id"`
	EmailAlerts         bool      `json:"email_alerts"`
	EmailWeeklyReport   bool      `json:"email_weekly_report"`
	EmailSecurityAlerts bool      `json:"email_security_alerts"`
	AlertBlockedSites   bool      `json:"alert_blocked_sites"`
	AlertBlockedApps    bool      `json:"alert_blocked_apps"`
	AlertScreenTime     bool      `json:"alert_screen_time"`
	AlertTamperAttempts bool      `json:"alert_tamper_attempts"`
	Timezone            string    `json:"timezone"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
