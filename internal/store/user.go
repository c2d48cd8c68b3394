package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/homeguard/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := scanner.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Role, &u.IsActive, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const userCols = `id, email, password_hash, first_name, last_name, role, is_active, is_verified, created_at, updated_at`

func (s *UserStore) Create(email, passwordHash, firstName, lastName, role string) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (email, password_hash, first_name, last_name, role) VALUES (?, ?, ?, ?, ?)`,
		strings.ToLower(strings.TrimSpace(email)), passwordHash, firstName, lastName, role,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(
		`SELECT `+userCols+` FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)),
	)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *UserStore) UpdateProfile(id int64, firstName, lastName string) (*model.User, error) {
	_, err := s.db.Exec(
		`UPDATE users SET first_name = ?, last_name = ?, updated_at = datetime('now') WHERE id = ?`,
		firstName, lastName, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user profile: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) UpdatePassword(id int64, passwordHash string) error {
	_, err := s.db.Exec(
		`UPDATE users SET password_hash = ?, updated_at = datetime('now') WHERE id = ?`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	return nil
}

func (s *UserStore) SetVerified(id int64) error {
	_, err := s.db.Exec(
		`UPDATE users SET is_verified = 1, updated_at = datetime('now') WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("set user verified: %w", err)
	}
	return nil
}

func (s *UserStore) SetActive(id int64, active bool) error {
	_, err := s.db.Exec(
		`UPDATE users SET is_active = ?, updated_at = datetime('now') WHERE id = ?`,
		active, id,
	)
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	return nil
}

// List returns users for admin listings, newest first. A non-empty
// search term matches against email and name, case-insensitively.
func (s *UserStore) List(search string, limit, offset int) ([]*model.User, error) {
	query := `SELECT ` + userCols + ` FROM users`
	args := []any{}
	if search != "" {
		query += ` WHERE email LIKE ? OR first_name LIKE ? OR last_name LIKE ?`
		like := "%" + strings.ToLower(search) + "%"
		args = append(args, like, like, like)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *UserStore) Count() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *UserStore) CountCreatedSince(days int) (int64, error) {
	var n int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM users WHERE created_at >= datetime('now', ?)`,
		fmt.Sprintf("-%d days", days),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent users: %w", err)
	}
	return n, nil
}

// DayCount is one bucket of a per-day count series.
type DayCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// SignupsByDay buckets new accounts by calendar day over the trailing window.
// Days with no signups are omitted.
func (s *UserStore) SignupsByDay(days int) ([]DayCount, error) {
	rows, err := s.db.Query(`
		SELECT date(created_at), COUNT(*)
		FROM users
		WHERE created_at >= datetime('now', ?)
		GROUP BY date(created_at)
		ORDER BY date(created_at)`,
		fmt.Sprintf("-%d days", days))
	if err != nil {
		return nil, fmt.Errorf("signups by day: %w", err)
	}
	defer rows.Close()

	series := []DayCount{}
	for rows.Next() {
		var d DayCount
		if err := rows.Scan(&d.Day, &d.Count); err != nil {
			return nil, fmt.Errorf("scan signup day: %w", err)
		}
		series = append(series, d)
	}
	return series, rows.Err()
}

func (s *UserStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
