package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/homeguard/internal/model"
	"github.com/google/uuid"
)

type DownloadStore struct {
	db *sql.DB
}

func NewDownloadStore(db *sql.DB) *DownloadStore {
	return &DownloadStore{db: db}
}

func scanDownload(scanner interface{ Scan(...any) error }) (*model.Download, error) {
	var d model.Download
	var userID sql.NullInt64

	err := scanner.Scan(
		&d.ID, &userID, &d.Token, &d.Platform, &d.AppVersion, &d.Source,
		&d.IPAddress, &d.UserAgent, &d.Referrer, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		d.UserID = &userID.Int64
	}
	return &d, nil
}

const downloadCols = `id, user_id, token, platform, app_version, source, ip_address, user_agent, referrer, created_at`

// Create records a download event and mints its token. The token later
// ties an installation back to the download that produced it.
func (s *DownloadStore) Create(userID *int64, platform, appVersion, source, ipAddress, userAgent, referrer string) (*model.Download, error) {
	var uid sql.NullInt64
	if userID != nil {
		uid = sql.NullInt64{Int64: *userID, Valid: true}
	}

	token := uuid.NewString()
	result, err := s.db.Exec(
		`INSERT INTO downloads (user_id, token, platform, app_version, source, ip_address, user_agent, referrer)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uid, token, platform, appVersion, source, ipAddress, userAgent, referrer,
	)
	if err != nil {
		return nil, fmt.Errorf("insert download: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+downloadCols+` FROM downloads WHERE id = ?`, id)
	return scanDownload(row)
}

func (s *DownloadStore) GetByToken(token string) (*model.Download, error) {
	row := s.db.QueryRow(`SELECT `+downloadCols+` FROM downloads WHERE token = ?`, token)
	d, err := scanDownload(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get download by token: %w", err)
	}
	return d, nil
}

// List returns download events newest first, optionally restricted to one
// platform.
func (s *DownloadStore) List(platform string, limit, offset int) ([]*model.Download, error) {
	query := `SELECT ` + downloadCols + ` FROM downloads`
	args := []any{}
	if platform != "" {
		query += ` WHERE platform = ?`
		args = append(args, platform)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	defer rows.Close()

	var downloads []*model.Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		downloads = append(downloads, d)
	}
	return downloads, rows.Err()
}

func (s *DownloadStore) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM downloads`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count downloads: %w", err)
	}
	return n, nil
}

func (s *DownloadStore) CountByPlatform() (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT platform, COUNT(*) FROM downloads GROUP BY platform`)
	if err != nil {
		return nil, fmt.Errorf("count downloads by platform: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var platform string
		var n int64
		if err := rows.Scan(&platform, &n); err != nil {
			return nil, fmt.Errorf("scan platform count: %w", err)
		}
		counts[platform] = n
	}
	return counts, rows.Err()
}

func (s *DownloadStore) CountSince(days int) (int64, error) {
	var n int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM downloads WHERE created_at >= datetime('now', ?)`,
		fmt.Sprintf("-%d days", days),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent downloads: %w", err)
	}
	return n, nil
}
