package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/homeguard/internal/model"
)

type AlertStore struct {
	db *sql.DB
}

func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

func scanAlert(scanner interface{ Scan(...any) error }) (*model.Alert, error) {
	var a model.Alert
	var details sql.NullString

	err := scanner.Scan(
		&a.ID, &a.InstallationID, &a.UserID, &a.Type, &a.Severity,
		&a.Title, &a.Message, &details, &a.IsRead, &a.IsDismissed, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if details.Valid {
		a.Details = &details.String
	}
	return &a, nil
}

const alertCols = `id, installation_id, user_id, alert_type, severity, title, message, details, is_read, is_dismissed, created_at`

func (s *AlertStore) Create(a *model.Alert) (*model.Alert, error) {
	var details sql.NullString
	if a.Details != nil {
		details = sql.NullString{String: *a.Details, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO alerts (installation_id, user_id, alert_type, severity, title, message, details)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.InstallationID, a.UserID, a.Type, a.Severity, a.Title, a.Message, details,
	)
	if err != nil {
		return nil, fmt.Errorf("insert alert: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *AlertStore) GetByID(id int64) (*model.Alert, error) {
	row := s.db.QueryRow(`SELECT `+alertCols+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

// ListByUser returns a user's alerts, newest first. Filters narrow by
// type, severity, and unread-only; empty filter values match all rows.
func (s *AlertStore) ListByUser(userID int64, alertType, severity string, unreadOnly bool, limit, offset int) ([]*model.Alert, error) {
	query := `SELECT ` + alertCols + ` FROM alerts WHERE user_id = ? AND is_dismissed = 0`
	args := []any{userID}
	if alertType != "" {
		query += ` AND alert_type = ?`
		args = append(args, alertType)
	}
	if severity != "" {
		query += ` AND severity = ?`
		args = append(args, severity)
	}
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *AlertStore) CountUnread(userID int64) (int64, error) {
	var n int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM alerts WHERE user_id = ? AND is_read = 0 AND is_dismissed = 0`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread alerts: %w", err)
	}
	return n, nil
}

// MarkRead flags the alert read if it belongs to the user. Returns
// whether a row was updated.
func (s *AlertStore) MarkRead(id, userID int64) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE alerts SET is_read = 1 WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("mark alert read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *AlertStore) MarkAllRead(userID int64) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE alerts SET is_read = 1 WHERE user_id = ? AND is_read = 0`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all alerts read: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

// Dismiss hides the alert from listings if it belongs to the user.
func (s *AlertStore) Dismiss(id, userID int64) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE alerts SET is_dismissed = 1, is_read = 1 WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("dismiss alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
