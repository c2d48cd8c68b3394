package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/homeguard/internal/model"
)

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func scanSettings(scanner interface{ Scan(...any) error }) (*model.UserSettings, error) {
	var us model.UserSettings
	err := scanner.Scan(
		&us.ID, &us.UserID, &us.EmailAlerts, &us.EmailWeeklyReport, &us.EmailSecurityAlerts,
		&us.AlertBlockedSites, &us.AlertBlockedApps, &us.AlertScreenTime, &us.AlertTamperAttempts,
		&us.Timezone, &us.CreatedAt, &us.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &us, nil
}

const settingsCols = `id, user_id, email_alerts, email_weekly_report, email_security_alerts, alert_blocked_sites, alert_blocked_apps, alert_screen_time, alert_tamper_attempts, timezone, created_at, updated_at`

// GetOrCreate returns the user's notification settings, inserting the
// defaults on first access.
func (s *SettingsStore) GetOrCreate(userID int64) (*model.UserSettings, error) {
	us, err := s.get(userID)
	if err != nil {
		return nil, err
	}
	if us != nil {
		return us, nil
	}

	_, err = s.db.Exec(
		`INSERT INTO user_settings (user_id) VALUES (?) ON CONFLICT(user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user settings: %w", err)
	}
	return s.get(userID)
}

func (s *SettingsStore) get(userID int64) (*model.UserSettings, error) {
	row := s.db.QueryRow(`SELECT `+settingsCols+` FROM user_settings WHERE user_id = ?`, userID)
	us, err := scanSettings(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user settings: %w", err)
	}
	return us, nil
}

func (s *SettingsStore) Update(us *model.UserSettings) (*model.UserSettings, error) {
	if _, err := s.GetOrCreate(us.UserID); err != nil {
		return nil, err
	}
	_, err := s.db.Exec(
		`UPDATE user_settings SET email_alerts = ?, email_weekly_report = ?, email_security_alerts = ?,
		 alert_blocked_sites = ?, alert_blocked_apps = ?, alert_screen_time = ?, alert_tamper_attempts = ?,
		 timezone = ?, updated_at = datetime('now') WHERE user_id = ?`,
		us.EmailAlerts, us.EmailWeeklyReport, us.EmailSecurityAlerts,
		us.AlertBlockedSites, us.AlertBlockedApps, us.AlertScreenTime, us.AlertTamperAttempts,
		us.Timezone, us.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("update user settings: %w", err)
	}
	return s.get(us.UserID)
}
