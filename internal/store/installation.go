package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/homeguard/internal/model"
	"github.com/google/uuid"
)

// LivenessWindow is how recently an installation must have checked in
// to be considered online.
const LivenessWindow = 7 * 24 * time.Hour

type InstallationStore struct {
	db *sql.DB
}

func NewInstallationStore(db *sql.DB) *InstallationStore {
	return &InstallationStore{db: db}
}

func scanInstallation(scanner interface{ Scan(...any) error }) (*model.Installation, error) {
	var inst model.Installation
	var downloadID sql.NullInt64
	var blockedReason sql.NullString

	err := scanner.Scan(
		&inst.ID, &inst.PublicID, &inst.UserID, &downloadID, &inst.DeviceID,
		&inst.DeviceName, &inst.Platform, &inst.OSVersion, &inst.AppVersion,
		&inst.Status, &inst.IsBlocked, &blockedReason, &inst.LastSeen,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if downloadID.Valid {
		inst.DownloadID = &downloadID.Int64
	}
	if blockedReason.Valid {
		inst.BlockedReason = &blockedReason.String
	}
	return &inst, nil
}

const installationCols = `id, public_id, user_id, download_id, device_id, device_name, platform, os_version, app_version, status, is_blocked, blocked_reason, last_seen, created_at, updated_at`

// Register upserts an installation by hardware device id. A device id
// already on file is rebound to the registering user, so the last
// registerer wins. Returns the row and whether it was newly created.
func (s *InstallationStore) Register(userID int64, downloadID *int64, deviceID, deviceName, platform, osVersion, appVersion string) (*model.Installation, bool, error) {
	existing, err := s.GetByDeviceID(deviceID)
	if err != nil {
		return nil, false, err
	}

	var did sql.NullInt64
	if downloadID != nil {
		did = sql.NullInt64{Int64: *downloadID, Valid: true}
	}

	if existing != nil {
		_, err := s.db.Exec(
			`UPDATE installations SET user_id = ?, download_id = ?, device_name = ?, platform = ?,
			 os_version = ?, app_version = ?, status = ?, last_seen = datetime('now'), updated_at = datetime('now')
			 WHERE id = ?`,
			userID, did, deviceName, platform, osVersion, appVersion,
			model.InstallStatusActive, existing.ID,
		)
		if err != nil {
			return nil, false, fmt.Errorf("rebind installation: %w", err)
		}
		inst, err := s.GetByID(existing.ID)
		return inst, false, err
	}

	result, err := s.db.Exec(
		`INSERT INTO installations (public_id, user_id, download_id, device_id, device_name, platform, os_version, app_version, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, did, deviceID, deviceName, platform, osVersion, appVersion,
		model.InstallStatusActive,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert installation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}
	inst, err := s.GetByID(id)
	return inst, true, err
}

func (s *InstallationStore) GetByID(id int64) (*model.Installation, error) {
	row := s.db.QueryRow(`SELECT `+installationCols+` FROM installations WHERE id = ?`, id)
	inst, err := scanInstallation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get installation: %w", err)
	}
	return inst, nil
}

func (s *InstallationStore) GetByDeviceID(deviceID string) (*model.Installation, error) {
	row := s.db.QueryRow(`SELECT `+installationCols+` FROM installations WHERE device_id = ?`, deviceID)
	inst, err := scanInstallation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get installation by device id: %w", err)
	}
	return inst, nil
}

// GetForUser returns the installation only if it belongs to the user.
// A row owned by someone else reads as not found.
func (s *InstallationStore) GetForUser(publicID string, userID int64) (*model.Installation, error) {
	row := s.db.QueryRow(
		`SELECT `+installationCols+` FROM installations WHERE public_id = ? AND user_id = ?`,
		publicID, userID,
	)
	inst, err := scanInstallation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get installation for user: %w", err)
	}
	return inst, nil
}

func (s *InstallationStore) ListByUser(userID int64) ([]*model.Installation, error) {
	rows, err := s.db.Query(
		`SELECT `+installationCols+` FROM installations WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list installations: %w", err)
	}
	defer rows.Close()

	var insts []*model.Installation
	for rows.Next() {
		inst, err := scanInstallation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan installation: %w", err)
		}
		insts = append(insts, inst)
	}
	return insts, rows.Err()
}

func (s *InstallationStore) ListAll(limit, offset int) ([]*model.Installation, error) {
	rows, err := s.db.Query(
		`SELECT `+installationCols+` FROM installations ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list all installations: %w", err)
	}
	defer rows.Close()

	var insts []*model.Installation
	for rows.Next() {
		inst, err := scanInstallation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan installation: %w", err)
		}
		insts = append(insts, inst)
	}
	return insts, rows.Err()
}

// Heartbeat stamps last_seen and forces the installation back to active
// if the device id belongs to the user. Returns nil when the device is
// unknown or owned by someone else.
func (s *InstallationStore) Heartbeat(deviceID string, userID int64, osVersion, appVersion string) (*model.Installation, error) {
	inst, err := s.GetByDeviceID(deviceID)
	if err != nil {
		return nil, err
	}
	if inst == nil || inst.UserID != userID {
		return nil, nil
	}

	_, err = s.db.Exec(
		`UPDATE installations SET status = ?, os_version = ?, app_version = ?, last_seen = datetime('now'), updated_at = datetime('now') WHERE id = ?`,
		model.InstallStatusActive, osVersion, appVersion, inst.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("heartbeat installation: %w", err)
	}
	return s.GetByID(inst.ID)
}

// Unregister marks the installation uninstalled. The row is retained
// for history and can be revived by a later register. An installation
// that is already uninstalled does not match again, so a repeated call
// reports not-found.
func (s *InstallationStore) Unregister(deviceID string, userID int64) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE installations SET status = ?, updated_at = datetime('now') WHERE device_id = ? AND user_id = ? AND status != ?`,
		model.InstallStatusUninstalled, deviceID, userID, model.InstallStatusUninstalled,
	)
	if err != nil {
		return false, fmt.Errorf("unregister installation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *InstallationStore) SetBlocked(id int64, blocked bool, reason *string) error {
	var r sql.NullString
	if reason != nil {
		r = sql.NullString{String: *reason, Valid: true}
	}
	_, err := s.db.Exec(
		`UPDATE installations SET is_blocked = ?, blocked_reason = ?, updated_at = datetime('now') WHERE id = ?`,
		blocked, r, id,
	)
	if err != nil {
		return fmt.Errorf("set installation blocked: %w", err)
	}
	return nil
}

// Online reports whether an installation counts as live: active status
// and a heartbeat within the liveness window. Computed at read time,
// never stored.
func Online(inst *model.Installation, now time.Time) bool {
	return inst.Status == model.InstallStatusActive && now.Sub(inst.LastSeen) <= LivenessWindow
}

func (s *InstallationStore) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM installations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count installations: %w", err)
	}
	return n, nil
}

// CountOnline counts installations that are active and checked in
// within the liveness window.
func (s *InstallationStore) CountOnline() (int64, error) {
	var n int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM installations WHERE status = ? AND last_seen >= datetime('now', '-7 days')`,
		model.InstallStatusActive,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count online installations: %w", err)
	}
	return n, nil
}
