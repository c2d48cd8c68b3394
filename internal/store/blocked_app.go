package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/homeguard/internal/model"
)

type BlockedAppStore struct {
	db *sql.DB
}

func NewBlockedAppStore(db *sql.DB) *BlockedAppStore {
	return &BlockedAppStore{db: db}
}

func scanBlockedApp(scanner interface{ Scan(...any) error }) (*model.BlockedApp, error) {
	var a model.BlockedApp
	var schedule sql.NullString

	err := scanner.Scan(
		&a.ID, &a.InstallationID, &a.AppName, &a.AppIdentifier, &a.Platform,
		&a.IsGame, &a.IsEnabled, &schedule, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if schedule.Valid {
		a.Schedule = &schedule.String
	}
	return &a, nil
}

const blockedAppCols = `id, installation_id, app_name, app_identifier, platform, is_game, is_enabled, schedule, created_at, updated_at`

func (s *BlockedAppStore) Create(a *model.BlockedApp) (*model.BlockedApp, error) {
	var schedule sql.NullString
	if a.Schedule != nil {
		schedule = sql.NullString{String: *a.Schedule, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO blocked_apps (installation_id, app_name, app_identifier, platform, is_game, is_enabled, schedule)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.InstallationID, a.AppName, a.AppIdentifier, a.Platform, a.IsGame, a.IsEnabled, schedule,
	)
	if err != nil {
		return nil, fmt.Errorf("insert blocked app: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *BlockedAppStore) GetByID(id int64) (*model.BlockedApp, error) {
	row := s.db.QueryRow(`SELECT `+blockedAppCols+` FROM blocked_apps WHERE id = ?`, id)
	a, err := scanBlockedApp(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get blocked app: %w", err)
	}
	return a, nil
}

func (s *BlockedAppStore) ListByInstallation(installationID int64) ([]*model.BlockedApp, error) {
	rows, err := s.db.Query(
		`SELECT `+blockedAppCols+` FROM blocked_apps WHERE installation_id = ? ORDER BY app_name`,
		installationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list blocked apps: %w", err)
	}
	defer rows.Close()

	var apps []*model.BlockedApp
	for rows.Next() {
		a, err := scanBlockedApp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blocked app: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

// ListEnabledByInstallation returns only the rules the desktop app
// should enforce.
func (s *BlockedAppStore) ListEnabledByInstallation(installationID int64) ([]*model.BlockedApp, error) {
	rows, err := s.db.Query(
		`SELECT `+blockedAppCols+` FROM blocked_apps WHERE installation_id = ? AND is_enabled = 1 ORDER BY app_name`,
		installationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list enabled blocked apps: %w", err)
	}
	defer rows.Close()

	var apps []*model.BlockedApp
	for rows.Next() {
		a, err := scanBlockedApp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blocked app: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (s *BlockedAppStore) SetEnabled(id int64, enabled bool) error {
	_, err := s.db.Exec(
		`UPDATE blocked_apps SET is_enabled = ?, updated_at = datetime('now') WHERE id = ?`,
		enabled, id,
	)
	if err != nil {
		return fmt.Errorf("set blocked app enabled: %w", err)
	}
	return nil
}

func (s *BlockedAppStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM blocked_apps WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete blocked app: %w", err)
	}
	return nil
}
