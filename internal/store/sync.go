package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/homeguard/internal/model"
)

type SyncStore struct {
	db *sql.DB
}

func NewSyncStore(db *sql.DB) *SyncStore {
	return &SyncStore{db: db}
}

func scanSyncMetadata(scanner interface{ Scan(...any) error }) (*model.SyncMetadata, error) {
	var sm model.SyncMetadata
	var lastPush, lastPull sql.NullTime

	err := scanner.Scan(
		&sm.ID, &sm.InstallationID, &sm.LastSyncAt, &lastPush, &lastPull,
		&sm.SyncVersion, &sm.CreatedAt, &sm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastPush.Valid {
		sm.LastPushAt = &lastPush.Time
	}
	if lastPull.Valid {
		sm.LastPullAt = &lastPull.Time
	}
	return &sm, nil
}

const syncMetadataCols = `id, installation_id, last_sync_at, last_push_at, last_pull_at, sync_version, created_at, updated_at`

// GetOrCreate returns the sync record for an installation, creating it
// at version 1 on first access.
func (s *SyncStore) GetOrCreate(installationID int64) (*model.SyncMetadata, error) {
	sm, err := s.Get(installationID)
	if err != nil {
		return nil, err
	}
	if sm != nil {
		return sm, nil
	}

	_, err = s.db.Exec(
		`INSERT INTO sync_metadata (installation_id) VALUES (?) ON CONFLICT(installation_id) DO NOTHING`,
		installationID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert sync metadata: %w", err)
	}
	return s.Get(installationID)
}

func (s *SyncStore) Get(installationID int64) (*model.SyncMetadata, error) {
	row := s.db.QueryRow(
		`SELECT `+syncMetadataCols+` FROM sync_metadata WHERE installation_id = ?`,
		installationID,
	)
	sm, err := scanSyncMetadata(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync metadata: %w", err)
	}
	return sm, nil
}

// StampPull records that the device fetched settings. Pulls never bump
// the version counter.
func (s *SyncStore) StampPull(installationID int64) (*model.SyncMetadata, error) {
	if _, err := s.GetOrCreate(installationID); err != nil {
		return nil, err
	}
	_, err := s.db.Exec(
		`UPDATE sync_metadata SET last_pull_at = datetime('now'), last_sync_at = datetime('now'), updated_at = datetime('now') WHERE installation_id = ?`,
		installationID,
	)
	if err != nil {
		return nil, fmt.Errorf("stamp pull: %w", err)
	}
	return s.Get(installationID)
}
