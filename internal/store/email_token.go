package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/homeguard/internal/model"
)

type EmailTokenStore struct {
	db *sql.DB
}

func NewEmailTokenStore(db *sql.DB) *EmailTokenStore {
	return &EmailTokenStore{db: db}
}

func scanEmailToken(scanner interface{ Scan(...any) error }) (*model.EmailToken, error) {
	var et model.EmailToken
	err := scanner.Scan(&et.ID, &et.UserID, &et.Token, &et.Purpose, &et.ExpiresAt, &et.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &et, nil
}

const emailTokenCols = `id, user_id, token, purpose, expires_at, created_at`

// Create mints a token for email verification or password reset links.
// Previous pending tokens for the same user and purpose are dropped so
// only the newest link works.
func (s *EmailTokenStore) Create(userID int64, token, purpose string, ttl time.Duration) (*model.EmailToken, error) {
	_, err := s.db.Exec(
		`DELETE FROM email_tokens WHERE user_id = ? AND purpose = ?`,
		userID, purpose,
	)
	if err != nil {
		return nil, fmt.Errorf("drop previous tokens: %w", err)
	}

	expiresAt := time.Now().UTC().Add(ttl)
	result, err := s.db.Exec(
		`INSERT INTO email_tokens (user_id, token, purpose, expires_at) VALUES (?, ?, ?, ?)`,
		userID, token, purpose, expiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert email token: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+emailTokenCols+` FROM email_tokens WHERE id = ?`, id)
	return scanEmailToken(row)
}

// Consume returns the matching unexpired token and deletes it so each
// link works once. Returns nil if the token is unknown or expired.
func (s *EmailTokenStore) Consume(token, purpose string) (*model.EmailToken, error) {
	row := s.db.QueryRow(
		`SELECT `+emailTokenCols+` FROM email_tokens WHERE token = ? AND purpose = ? AND expires_at > datetime('now')`,
		token, purpose,
	)
	et, err := scanEmailToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get email token: %w", err)
	}

	if _, err := s.db.Exec(`DELETE FROM email_tokens WHERE id = ?`, et.ID); err != nil {
		return nil, fmt.Errorf("consume email token: %w", err)
	}
	return et, nil
}

func (s *EmailTokenStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM email_tokens WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("delete expired email tokens: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
