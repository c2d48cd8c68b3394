package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/dukerupert/homeguard/internal/model"
	"github.com/sethvargo/go-retry"
)

// PairingCodeTTL is how long a pairing code stays redeemable.
const PairingCodeTTL = 15 * time.Minute

var (
	// ErrCodeExpired means the code existed but its window passed.
	ErrCodeExpired = errors.New("pairing code expired")
	// ErrCodeUsed means the code was already redeemed.
	ErrCodeUsed = errors.New("pairing code already used")
	// ErrCodeNotFound means no code matches at all.
	ErrCodeNotFound = errors.New("pairing code not found")
)

type PairingStore struct {
	db *sql.DB
}

func NewPairingStore(db *sql.DB) *PairingStore {
	return &PairingStore{db: db}
}

func scanPairingCode(scanner interface{ Scan(...any) error }) (*model.PairingCode, error) {
	var pc model.PairingCode
	var userID sql.NullInt64
	var accessToken, refreshToken sql.NullString
	var usedAt sql.NullTime

	err := scanner.Scan(
		&pc.ID, &pc.Kind, &pc.Code, &userID, &pc.DeviceID, &pc.DeviceName,
		&pc.Platform, &pc.IsUsed, &pc.IsLinked, &accessToken, &refreshToken,
		&pc.ExpiresAt, &usedAt, &pc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		pc.UserID = &userID.Int64
	}
	if accessToken.Valid {
		pc.AccessToken = &accessToken.String
	}
	if refreshToken.Valid {
		pc.RefreshToken = &refreshToken.String
	}
	if usedAt.Valid {
		pc.UsedAt = &usedAt.Time
	}
	return &pc, nil
}

const pairingCodeCols = `id, kind, code, user_id, device_id, device_name, platform, is_used, is_linked, access_token, refresh_token, expires_at, used_at, created_at`

const codeLetters = "ABCDEFGHJKLMNPQRSTUVWXYZ"
const codeDigits = "23456789"

// generatePairingCode returns a code of three letters then three
// digits, like KXM492. Ambiguous characters are left out of the
// alphabet.
func generatePairingCode() (string, error) {
	var b strings.Builder
	for i := 0; i < 3; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeLetters))))
		if err != nil {
			return "", fmt.Errorf("generate pairing code: %w", err)
		}
		b.WriteByte(codeLetters[n.Int64()])
	}
	for i := 0; i < 3; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeDigits))))
		if err != nil {
			return "", fmt.Errorf("generate pairing code: %w", err)
		}
		b.WriteByte(codeDigits[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode maps user input onto stored form: uppercase with
// separators and whitespace stripped, so "abc-123" matches "ABC123".
func NormalizeCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DisplayCode formats a stored code for humans: ABC-123.
func DisplayCode(code string) string {
	if len(code) != 6 {
		return code
	}
	return code[:3] + "-" + code[3:]
}

// CreateActivation mints a code a signed-in user reads to a device that
// is waiting to be activated. Collisions against outstanding codes are
// retried a bounded number of times.
func (s *PairingStore) CreateActivation(ctx context.Context, userID int64) (*model.PairingCode, error) {
	return s.create(ctx, model.PairingActivation, &userID, "", "", "")
}

// CreateLink mints a code a device shows so the user can claim it from
// the web dashboard.
func (s *PairingStore) CreateLink(ctx context.Context, deviceID, deviceName, platform string) (*model.PairingCode, error) {
	return s.create(ctx, model.PairingLink, nil, deviceID, deviceName, platform)
}

func (s *PairingStore) create(ctx context.Context, kind string, userID *int64, deviceID, deviceName, platform string) (*model.PairingCode, error) {
	var uid sql.NullInt64
	if userID != nil {
		uid = sql.NullInt64{Int64: *userID, Valid: true}
	}
	expiresAt := time.Now().UTC().Add(PairingCodeTTL)

	var id int64
	backoff := retry.WithMaxRetries(5, retry.NewConstant(time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		code, err := generatePairingCode()
		if err != nil {
			return err
		}
		result, err := s.db.Exec(
			`INSERT INTO pairing_codes (kind, code, user_id, device_id, device_name, platform, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			kind, code, uid, deviceID, deviceName, platform, expiresAt,
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				return retry.RetryableError(err)
			}
			return fmt.Errorf("insert pairing code: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create pairing code: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+pairingCodeCols+` FROM pairing_codes WHERE id = ?`, id)
	return scanPairingCode(row)
}

// Lookup finds the newest code of the given kind matching the
// normalized input. Expired and used codes return distinct errors so
// the caller can tell the user which happened.
func (s *PairingStore) Lookup(kind, code string) (*model.PairingCode, error) {
	normalized := NormalizeCode(code)
	row := s.db.QueryRow(
		`SELECT `+pairingCodeCols+` FROM pairing_codes WHERE kind = ? AND code = ? ORDER BY created_at DESC LIMIT 1`,
		kind, normalized,
	)
	pc, err := scanPairingCode(row)
	if err == sql.ErrNoRows {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup pairing code: %w", err)
	}
	if pc.IsUsed {
		return nil, ErrCodeUsed
	}
	if pc.Expired(time.Now().UTC()) {
		return nil, ErrCodeExpired
	}
	return pc, nil
}

// ConsumeActivation redeems an activation code from a device, recording
// which device took it.
func (s *PairingStore) ConsumeActivation(code, deviceID, deviceName, platform string) (*model.PairingCode, error) {
	pc, err := s.Lookup(model.PairingActivation, code)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(
		`UPDATE pairing_codes SET is_used = 1, used_at = datetime('now'), device_id = ?, device_name = ?, platform = ? WHERE id = ?`,
		deviceID, deviceName, platform, pc.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("consume activation code: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+pairingCodeCols+` FROM pairing_codes WHERE id = ?`, pc.ID)
	return scanPairingCode(row)
}

// ClaimLink attaches a dashboard user to a link code and parks a token
// pair on the row for the device to collect.
func (s *PairingStore) ClaimLink(code string, userID int64, accessToken, refreshToken string) (*model.PairingCode, error) {
	pc, err := s.Lookup(model.PairingLink, code)
	if err != nil {
		return nil, err
	}
	if pc.IsLinked {
		return nil, ErrCodeUsed
	}

	_, err = s.db.Exec(
		`UPDATE pairing_codes SET user_id = ?, is_linked = 1, access_token = ?, refresh_token = ? WHERE id = ?`,
		userID, accessToken, refreshToken, pc.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("claim link code: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+pairingCodeCols+` FROM pairing_codes WHERE id = ?`, pc.ID)
	return scanPairingCode(row)
}

// PollLink reports whether a link code has been claimed yet. The device
// calls this while showing the code.
func (s *PairingStore) PollLink(code string) (*model.PairingCode, error) {
	return s.Lookup(model.PairingLink, code)
}

// CollectLinkTokens hands the parked token pair to the device exactly
// once: the row is marked used and the tokens are cleared.
func (s *PairingStore) CollectLinkTokens(code string) (access, refresh string, userID int64, err error) {
	pc, err := s.Lookup(model.PairingLink, code)
	if err != nil {
		return "", "", 0, err
	}
	if !pc.IsLinked || pc.AccessToken == nil || pc.RefreshToken == nil || pc.UserID == nil {
		return "", "", 0, ErrCodeNotFound
	}

	access, refresh, userID = *pc.AccessToken, *pc.RefreshToken, *pc.UserID
	_, err = s.db.Exec(
		`UPDATE pairing_codes SET is_used = 1, used_at = datetime('now'), access_token = NULL, refresh_token = NULL WHERE id = ?`,
		pc.ID,
	)
	if err != nil {
		return "", "", 0, fmt.Errorf("collect link tokens: %w", err)
	}
	return access, refresh, userID, nil
}

func (s *PairingStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM pairing_codes WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("delete expired pairing codes: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
