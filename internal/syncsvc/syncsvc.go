// Package syncsvc implements the settings sync between the web
// dashboard and the desktop app. Pushes replace whole rule categories
// inside one transaction and bump the version counter; pulls return the
// enabled configuration verbatim and never bump it. Last write wins,
// there is no merging.
package syncsvc

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/store"
)

type Service struct {
	db         *sql.DB
	syncs      *store.SyncStore
	screenTime *store.ScreenTimeStore
	apps       *store.BlockedAppStore
	webFilter  *store.WebFilterStore
	logger     *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Service {
	return &Service{
		db:         db,
		syncs:      store.NewSyncStore(db),
		screenTime: store.NewScreenTimeStore(db),
		apps:       store.NewBlockedAppStore(db),
		webFilter:  store.NewWebFilterStore(db),
		logger:     logger.With("component", "sync"),
	}
}

// PushItem is one entry in a pushed category.
type PushItem struct {
	Name       string  `json:"name"`
	Identifier string  `json:"identifier"`
	Platform   string  `json:"platform,omitempty"`
	Schedule   *string `json:"schedule,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}

// PushPayload carries the dashboard state for an installation. A nil
// category means "leave that category alone"; an empty slice clears it.
type PushPayload struct {
	BlockedSites *[]PushItem             `json:"blocked_sites"`
	BlockedGames *[]PushItem             `json:"blocked_games"`
	BlockedApps  *[]PushItem             `json:"blocked_apps"`
	ScreenTime   *model.ScreenTimeConfig `json:"screen_time"`
}

// PullPayload is what the desktop app receives: only enabled rules.
type PullPayload struct {
	WebFilter   *model.WebFilterConfig  `json:"web_filter"`
	FilterRules []*model.WebFilterRule  `json:"filter_rules"`
	BlockedApps []*model.BlockedApp     `json:"blocked_apps"`
	ScreenTime  *model.ScreenTimeConfig `json:"screen_time"`
	SyncVersion int64                   `json:"sync_version"`
}

// Push applies the dashboard state to an installation. All category
// replacements and the version bump commit together or not at all.
func (s *Service) Push(installationID int64, p *PushPayload) (*model.SyncMetadata, error) {
	if _, err := s.syncs.GetOrCreate(installationID); err != nil {
		return nil, err
	}
	cfg, err := s.webFilter.GetOrCreateConfig(installationID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin sync push: %w", err)
	}
	defer tx.Rollback()

	if p.BlockedSites != nil {
		if err := replaceFilterRules(tx, cfg.ID, *p.BlockedSites); err != nil {
			return nil, err
		}
	}
	if p.BlockedGames != nil || p.BlockedApps != nil {
		if err := replaceBlockedApps(tx, installationID, p.BlockedGames, p.BlockedApps); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(
		`UPDATE sync_metadata SET sync_version = sync_version + 1, last_push_at = datetime('now'), last_sync_at = datetime('now'), updated_at = datetime('now') WHERE installation_id = ?`,
		installationID,
	)
	if err != nil {
		return nil, fmt.Errorf("bump sync version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit sync push: %w", err)
	}

	// Screen time is a standalone upsert; it rides outside the
	// category replacement but still behind the committed bump.
	if p.ScreenTime != nil {
		p.ScreenTime.InstallationID = installationID
		if _, err := s.screenTime.Upsert(p.ScreenTime); err != nil {
			return nil, err
		}
	}

	sm, err := s.syncs.Get(installationID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("settings pushed", "installation_id", installationID, "version", sm.SyncVersion)
	return sm, nil
}

func replaceFilterRules(tx *sql.Tx, configID int64, sites []PushItem) error {
	if _, err := tx.Exec(`DELETE FROM web_filter_rules WHERE config_id = ?`, configID); err != nil {
		return fmt.Errorf("clear filter rules: %w", err)
	}
	for _, site := range sites {
		pattern := site.Identifier
		if pattern == "" {
			pattern = site.Name
		}
		_, err := tx.Exec(
			`INSERT INTO web_filter_rules (config_id, url_pattern, is_blocked, is_enabled, notes) VALUES (?, ?, 1, 1, ?)`,
			configID, pattern, site.Notes,
		)
		if err != nil {
			return fmt.Errorf("insert filter rule: %w", err)
		}
	}
	return nil
}

// replaceBlockedApps swaps out the pushed categories only. Games and
// apps share a table split by is_game, so the delete is scoped to keep
// an absent category's rows intact.
func replaceBlockedApps(tx *sql.Tx, installationID int64, games, apps *[]PushItem) error {
	clear := func(isGame bool) error {
		_, err := tx.Exec(`DELETE FROM blocked_apps WHERE installation_id = ? AND is_game = ?`, installationID, isGame)
		if err != nil {
			return fmt.Errorf("clear blocked apps: %w", err)
		}
		return nil
	}

	insert := func(items []PushItem, isGame bool) error {
		for _, item := range items {
			platform := item.Platform
			if platform == "" {
				platform = model.PlatformWindows
			}
			var schedule sql.NullString
			if item.Schedule != nil {
				schedule = sql.NullString{String: *item.Schedule, Valid: true}
			}
			_, err := tx.Exec(
				`INSERT INTO blocked_apps (installation_id, app_name, app_identifier, platform, is_game, is_enabled, schedule) VALUES (?, ?, ?, ?, ?, 1, ?)`,
				installationID, item.Name, item.Identifier, platform, isGame, schedule,
			)
			if err != nil {
				return fmt.Errorf("insert blocked app: %w", err)
			}
		}
		return nil
	}

	if games != nil {
		if err := clear(true); err != nil {
			return err
		}
		if err := insert(*games, true); err != nil {
			return err
		}
	}
	if apps != nil {
		if err := clear(false); err != nil {
			return err
		}
		if err := insert(*apps, false); err != nil {
			return err
		}
	}
	return nil
}

// Pull returns the enabled configuration for an installation and stamps
// the pull time.
func (s *Service) Pull(installationID int64) (*PullPayload, error) {
	cfg, err := s.webFilter.GetOrCreateConfig(installationID)
	if err != nil {
		return nil, err
	}
	rules, err := s.webFilter.ListEnabledRules(cfg.ID)
	if err != nil {
		return nil, err
	}
	apps, err := s.apps.ListEnabledByInstallation(installationID)
	if err != nil {
		return nil, err
	}
	screenTime, err := s.screenTime.GetByInstallation(installationID)
	if err != nil {
		return nil, err
	}

	sm, err := s.syncs.StampPull(installationID)
	if err != nil {
		return nil, err
	}

	if rules == nil {
		rules = []*model.WebFilterRule{}
	}
	if apps == nil {
		apps = []*model.BlockedApp{}
	}
	return &PullPayload{
		WebFilter:   cfg,
		FilterRules: rules,
		BlockedApps: apps,
		ScreenTime:  screenTime,
		SyncVersion: sm.SyncVersion,
	}, nil
}

// Status returns the sync record without touching any stamps.
func (s *Service) Status(installationID int64) (*model.SyncMetadata, error) {
	return s.syncs.GetOrCreate(installationID)
}
