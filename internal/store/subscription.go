package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/plan"
)

type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	var stripeSubID, stripeCustID sql.NullString
	var periodStart, periodEnd, canceledAt sql.NullTime

	err := scanner.Scan(
		&sub.ID, &sub.UserID, &stripeSubID, &stripeCustID, &sub.Status,
		&sub.PlanName, &sub.Amount, &sub.Currency, &periodStart, &periodEnd,
		&canceledAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if stripeSubID.Valid {
		sub.StripeSubscriptionID = &stripeSubID.String
	}
	if stripeCustID.Valid {
		sub.StripeCustomerID = &stripeCustID.String
	}
	if periodStart.Valid {
		sub.CurrentPeriodStart = &periodStart.Time
	}
	if periodEnd.Valid {
		sub.CurrentPeriodEnd = &periodEnd.Time
	}
	if canceledAt.Valid {
		sub.CanceledAt = &canceledAt.Time
	}
	return &sub, nil
}

const subscriptionCols = `id, user_id, stripe_subscription_id, stripe_customer_id, status, plan_name, amount, currency, current_period_start, current_period_end, canceled_at, created_at, updated_at`

// CreateTrial inserts the trial subscription row every account starts
// with. The period stays null until the first device activates it.
func (s *SubscriptionStore) CreateTrial(userID int64) (*model.Subscription, error) {
	result, err := s.db.Exec(
		`INSERT INTO subscriptions (user_id, status, plan_name, amount, currency) VALUES (?, ?, ?, 0, 'USD')`,
		userID, model.SubStatusTrialing, plan.FreeTrial,
	)
	if err != nil {
		return nil, fmt.Errorf("insert trial subscription: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *SubscriptionStore) GetByID(id int64) (*model.Subscription, error) {
	row := s.db.QueryRow(`SELECT `+subscriptionCols+` FROM subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// GetLatestByUser returns the newest subscription row for a user, which
// is the one every access decision is made against.
func (s *SubscriptionStore) GetLatestByUser(userID int64) (*model.Subscription, error) {
	row := s.db.QueryRow(
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE user_id = ? ORDER BY id DESC LIMIT 1`,
		userID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) GetByStripeID(stripeSubscriptionID string) (*model.Subscription, error) {
	row := s.db.QueryRow(
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE stripe_subscription_id = ?`,
		stripeSubscriptionID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by stripe id: %w", err)
	}
	return sub, nil
}

// StartTrial stamps the trial period on a subscription that has not
// started one yet. Idempotent: a trial that already has a period keeps
// its original window.
func (s *SubscriptionStore) StartTrial(id int64, start, end time.Time) (*model.Subscription, error) {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET current_period_start = ?, current_period_end = ?, updated_at = datetime('now')
		 WHERE id = ? AND status = ? AND current_period_start IS NULL`,
		start, end, id, model.SubStatusTrialing,
	)
	if err != nil {
		return nil, fmt.Errorf("start trial: %w", err)
	}
	return s.GetByID(id)
}

// Activate overwrites the row with paid-plan details after a completed
// checkout. The trial row becomes the paid row in place.
func (s *SubscriptionStore) Activate(id int64, stripeSubscriptionID, stripeCustomerID, planName string, amount float64, start, end time.Time) (*model.Subscription, error) {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET stripe_subscription_id = ?, stripe_customer_id = ?, status = ?,
		 plan_name = ?, amount = ?, current_period_start = ?, current_period_end = ?,
		 canceled_at = NULL, updated_at = datetime('now') WHERE id = ?`,
		stripeSubscriptionID, stripeCustomerID, model.SubStatusActive,
		planName, amount, start, end, id,
	)
	if err != nil {
		return nil, fmt.Errorf("activate subscription: %w", err)
	}
	return s.GetByID(id)
}

// RenewPeriod stamps a fresh paid period after an invoice payment and
// forces the row back to active.
func (s *SubscriptionStore) RenewPeriod(id int64, start, end time.Time) (*model.Subscription, error) {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET status = ?, current_period_start = ?, current_period_end = ?, updated_at = datetime('now') WHERE id = ?`,
		model.SubStatusActive, start, end, id,
	)
	if err != nil {
		return nil, fmt.Errorf("renew subscription period: %w", err)
	}
	return s.GetByID(id)
}

func (s *SubscriptionStore) SetStatus(id int64, status string) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET status = ?, updated_at = datetime('now') WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("set subscription status: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) Cancel(id int64, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET status = ?, canceled_at = ?, updated_at = datetime('now') WHERE id = ?`,
		model.SubStatusCanceled, at, id,
	)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return nil
}

// List returns subscriptions for admin listings, newest first. An empty
// status returns every row.
func (s *SubscriptionStore) List(status string, limit, offset int) ([]*model.Subscription, error) {
	query := `SELECT ` + subscriptionCols + ` FROM subscriptions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *SubscriptionStore) CountByStatus() (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM subscriptions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count subscriptions by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
