package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/homeguard/internal/model"
)

type RefreshTokenStore struct {
	db *sql.DB
}

func NewRefreshTokenStore(db *sql.DB) *RefreshTokenStore {
	return &RefreshTokenStore{db: db}
}

func scanRefreshToken(scanner interface{ Scan(...any) error }) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	err := scanner.Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.Revoked, &rt.ExpiresAt, &rt.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

const refreshTokenCols = `id, user_id, token_hash, revoked, expires_at, created_at`

func (s *RefreshTokenStore) Create(userID int64, tokenHash string, ttl time.Duration) (*model.RefreshToken, error) {
	expiresAt := time.Now().UTC().Add(ttl)
	result, err := s.db.Exec(
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)`,
		userID, tokenHash, expiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert refresh token: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+refreshTokenCols+` FROM refresh_tokens WHERE id = ?`, id)
	return scanRefreshToken(row)
}

// GetValid returns the token matching the hash if it is unexpired and
// not revoked, or nil otherwise.
func (s *RefreshTokenStore) GetValid(tokenHash string) (*model.RefreshToken, error) {
	row := s.db.QueryRow(
		`SELECT `+refreshTokenCols+` FROM refresh_tokens WHERE token_hash = ? AND revoked = 0 AND expires_at > datetime('now')`,
		tokenHash,
	)
	rt, err := scanRefreshToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return rt, nil
}

func (s *RefreshTokenStore) Revoke(id int64) error {
	_, err := s.db.Exec(`UPDATE refresh_tokens SET revoked = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser invalidates every outstanding refresh token for a
// user, used on password change and account deactivation.
func (s *RefreshTokenStore) RevokeAllForUser(userID int64) error {
	_, err := s.db.Exec(`UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ? AND revoked = 0`, userID)
	if err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

func (s *RefreshTokenStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM refresh_tokens WHERE expires_at <= datetime('now') OR revoked = 1`)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
