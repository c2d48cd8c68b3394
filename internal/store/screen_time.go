package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/homeguard/internal/model"
)

type ScreenTimeStore struct {
	db *sql.DB
}

func NewScreenTimeStore(db *sql.DB) *ScreenTimeStore {
	return &ScreenTimeStore{db: db}
}

func scanScreenTime(scanner interface{ Scan(...any) error }) (*model.ScreenTimeConfig, error) {
	var c model.ScreenTimeConfig
	var allowedStart, allowedEnd sql.NullString

	err := scanner.Scan(
		&c.ID, &c.InstallationID, &c.IsEnabled,
		&c.MondayLimit, &c.TuesdayLimit, &c.WednesdayLimit, &c.ThursdayLimit,
		&c.FridayLimit, &c.SaturdayLimit, &c.SundayLimit,
		&allowedStart, &allowedEnd, &c.GracePeriod, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if allowedStart.Valid {
		c.AllowedStart = &allowedStart.String
	}
	if allowedEnd.Valid {
		c.AllowedEnd = &allowedEnd.String
	}
	return &c, nil
}

const screenTimeCols = `id, installation_id, is_enabled, monday_limit, tuesday_limit, wednesday_limit, thursday_limit, friday_limit, saturday_limit, sunday_limit, allowed_start_time, allowed_end_time, grace_period, created_at, updated_at`

func (s *ScreenTimeStore) GetByInstallation(installationID int64) (*model.ScreenTimeConfig, error) {
	row := s.db.QueryRow(
		`SELECT `+screenTimeCols+` FROM screen_time_configs WHERE installation_id = ?`,
		installationID,
	)
	c, err := scanScreenTime(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get screen time config: %w", err)
	}
	return c, nil
}

// Upsert writes the full screen time config for an installation. Each
// installation carries at most one config row.
func (s *ScreenTimeStore) Upsert(c *model.ScreenTimeConfig) (*model.ScreenTimeConfig, error) {
	var allowedStart, allowedEnd sql.NullString
	if c.AllowedStart != nil {
		allowedStart = sql.NullString{String: *c.AllowedStart, Valid: true}
	}
	if c.AllowedEnd != nil {
		allowedEnd = sql.NullString{String: *c.AllowedEnd, Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO screen_time_configs (installation_id, is_enabled, monday_limit, tuesday_limit, wednesday_limit, thursday_limit, friday_limit, saturday_limit, sunday_limit, allowed_start_time, allowed_end_time, grace_period)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(installation_id) DO UPDATE SET
		   is_enabled = excluded.is_enabled,
		   monday_limit = excluded.monday_limit,
		   tuesday_limit = excluded.tuesday_limit,
		   wednesday_limit = excluded.wednesday_limit,
		   thursday_limit = excluded.thursday_limit,
		   friday_limit = excluded.friday_limit,
		   saturday_limit = excluded.saturday_limit,
		   sunday_limit = excluded.sunday_limit,
		   allowed_start_time = excluded.allowed_start_time,
		   allowed_end_time = excluded.allowed_end_time,
		   grace_period = excluded.grace_period,
		   updated_at = datetime('now')`,
		c.InstallationID, c.IsEnabled,
		c.MondayLimit, c.TuesdayLimit, c.WednesdayLimit, c.ThursdayLimit,
		c.FridayLimit, c.SaturdayLimit, c.SundayLimit,
		allowedStart, allowedEnd, c.GracePeriod,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert screen time config: %w", err)
	}
	return s.GetByInstallation(c.InstallationID)
}
