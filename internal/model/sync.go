package model

import "time"

// SyncMetadata tracks sync state per installation. At most one row exists per
// installation; SyncVersion increments on every push and never decreases.
type SyncMetadata struct {
	ID             int64      `json:"id"`
	InstallationID int64      `json:"installation_id"`
	LastSyncAt     time.Time  `json:"last_sync_at"`
	LastPushAt     *time.Time `json:"last_push_at,omitempty"`
	LastPullAt     *time.Time `json:"last_pull_at,omitempty"`
	SyncVersion    int64      `json:"sync_version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
