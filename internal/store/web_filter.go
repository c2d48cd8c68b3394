package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/homeguard/internal/model"
)

type WebFilterStore struct {
	db *sql.DB
}

func NewWebFilterStore(db *sql.DB) *WebFilterStore {
	return &WebFilterStore{db: db}
}

func scanWebFilterConfig(scanner interface{ Scan(...any) error }) (*model.WebFilterConfig, error) {
	var c model.WebFilterConfig
	var categories string

	err := scanner.Scan(
		&c.ID, &c.InstallationID, &c.IsEnabled, &categories,
		&c.EnforceSafeSearch, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(categories), &c.BlockedCategories); err != nil {
		return nil, fmt.Errorf("decode blocked categories: %w", err)
	}
	return &c, nil
}

func scanWebFilterRule(scanner interface{ Scan(...any) error }) (*model.WebFilterRule, error) {
	var r model.WebFilterRule
	err := scanner.Scan(
		&r.ID, &r.ConfigID, &r.URLPattern, &r.IsBlocked, &r.IsEnabled,
		&r.Notes, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const webFilterConfigCols = `id, installation_id, is_enabled, blocked_categories, enforce_safe_search, created_at, updated_at`
const webFilterRuleCols = `id, config_id, url_pattern, is_blocked, is_enabled, notes, created_at`

// GetOrCreateConfig returns the filter config for an installation,
// creating the default one on first access.
func (s *WebFilterStore) GetOrCreateConfig(installationID int64) (*model.WebFilterConfig, error) {
	c, err := s.GetConfig(installationID)
	if err != nil {
		return nil, err
	}
	if c != nil {
		return c, nil
	}

	_, err = s.db.Exec(
		`INSERT INTO web_filter_configs (installation_id) VALUES (?) ON CONFLICT(installation_id) DO NOTHING`,
		installationID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert web filter config: %w", err)
	}
	return s.GetConfig(installationID)
}

func (s *WebFilterStore) GetConfig(installationID int64) (*model.WebFilterConfig, error) {
	row := s.db.QueryRow(
		`SELECT `+webFilterConfigCols+` FROM web_filter_configs WHERE installation_id = ?`,
		installationID,
	)
	c, err := scanWebFilterConfig(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get web filter config: %w", err)
	}
	return c, nil
}

func (s *WebFilterStore) UpdateConfig(installationID int64, enabled bool, categories []string, safeSearch bool) (*model.WebFilterConfig, error) {
	if categories == nil {
		categories = []string{}
	}
	encoded, err := json.Marshal(categories)
	if err != nil {
		return nil, fmt.Errorf("encode blocked categories: %w", err)
	}

	if _, err := s.GetOrCreateConfig(installationID); err != nil {
		return nil, err
	}
	_, err = s.db.Exec(
		`UPDATE web_filter_configs SET is_enabled = ?, blocked_categories = ?, enforce_safe_search = ?, updated_at = datetime('now') WHERE installation_id = ?`,
		enabled, string(encoded), safeSearch, installationID,
	)
	if err != nil {
		return nil, fmt.Errorf("update web filter config: %w", err)
	}
	return s.GetConfig(installationID)
}

func (s *WebFilterStore) CreateRule(configID int64, urlPattern string, isBlocked, isEnabled bool, notes string) (*model.WebFilterRule, error) {
	result, err := s.db.Exec(
		`INSERT INTO web_filter_rules (config_id, url_pattern, is_blocked, is_enabled, notes) VALUES (?, ?, ?, ?, ?)`,
		configID, urlPattern, isBlocked, isEnabled, notes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert web filter rule: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+webFilterRuleCols+` FROM web_filter_rules WHERE id = ?`, id)
	return scanWebFilterRule(row)
}

func (s *WebFilterStore) ListRules(configID int64) ([]*model.WebFilterRule, error) {
	rows, err := s.db.Query(
		`SELECT `+webFilterRuleCols+` FROM web_filter_rules WHERE config_id = ? ORDER BY url_pattern`,
		configID,
	)
	if err != nil {
		return nil, fmt.Errorf("list web filter rules: %w", err)
	}
	defer rows.Close()

	var rules []*model.WebFilterRule
	for rows.Next() {
		r, err := scanWebFilterRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan web filter rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// ListEnabledRules returns rules the desktop app should enforce.
func (s *WebFilterStore) ListEnabledRules(configID int64) ([]*model.WebFilterRule, error) {
	rows, err := s.db.Query(
		`SELECT `+webFilterRuleCols+` FROM web_filter_rules WHERE config_id = ? AND is_enabled = 1 ORDER BY url_pattern`,
		configID,
	)
	if err != nil {
		return nil, fmt.Errorf("list enabled web filter rules: %w", err)
	}
	defer rows.Close()

	var rules []*model.WebFilterRule
	for rows.Next() {
		r, err := scanWebFilterRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan web filter rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *WebFilterStore) DeleteRule(id int64) error {
	_, err := s.db.Exec(`DELETE FROM web_filter_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete web filter rule: %w", err)
	}
	return nil
}
