package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/homeguard/internal/model"
)

type TransactionStore struct {
	db *sql.DB
}

func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func scanTransaction(scanner interface{ Scan(...any) error }) (*model.Transaction, error) {
	var tx model.Transaction
	var paymentIntentID, invoiceID, invoiceURL sql.NullString

	err := scanner.Scan(
		&tx.ID, &tx.UserID, &tx.SubscriptionID, &paymentIntentID, &invoiceID,
		&tx.Amount, &tx.Currency, &tx.Status, &tx.Description, &invoiceURL, &tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if paymentIntentID.Valid {
		tx.StripePaymentIntentID = &paymentIntentID.String
	}
	if invoiceID.Valid {
		tx.StripeInvoiceID = &invoiceID.String
	}
	if invoiceURL.Valid {
		tx.InvoiceURL = &invoiceURL.String
	}
	return &tx, nil
}

const transactionCols = `id, user_id, subscription_id, stripe_payment_intent_id, stripe_invoice_id, amount, currency, status, description, invoice_url, created_at`

// Create appends an immutable payment record. Rows are never updated or
// deleted once written.
func (s *TransactionStore) Create(tx *model.Transaction) (*model.Transaction, error) {
	var paymentIntentID, invoiceID, invoiceURL sql.NullString
	if tx.StripePaymentIntentID != nil {
		paymentIntentID = sql.NullString{String: *tx.StripePaymentIntentID, Valid: true}
	}
	if tx.StripeInvoiceID != nil {
		invoiceID = sql.NullString{String: *tx.StripeInvoiceID, Valid: true}
	}
	if tx.InvoiceURL != nil {
		invoiceURL = sql.NullString{String: *tx.InvoiceURL, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO transactions (user_id, subscription_id, stripe_payment_intent_id, stripe_invoice_id, amount, currency, status, description, invoice_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.UserID, tx.SubscriptionID, paymentIntentID, invoiceID,
		tx.Amount, tx.Currency, tx.Status, tx.Description, invoiceURL,
	)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+transactionCols+` FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

// ExistsForInvoice reports whether a transaction was already recorded
// for a Stripe invoice, so redelivered webhooks do not double-book.
func (s *TransactionStore) ExistsForInvoice(stripeInvoiceID string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM transactions WHERE stripe_invoice_id = ?`,
		stripeInvoiceID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check invoice transaction: %w", err)
	}
	return n > 0, nil
}

func (s *TransactionStore) ListByUser(userID int64, limit, offset int) ([]*model.Transaction, error) {
	rows, err := s.db.Query(
		`SELECT `+transactionCols+` FROM transactions WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *TransactionStore) ListAll(limit, offset int) ([]*model.Transaction, error) {
	rows, err := s.db.Query(
		`SELECT `+transactionCols+` FROM transactions ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list all transactions: %w", err)
	}
	defer rows.Close()

	var txs []*model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// Revenue sums succeeded transaction amounts, optionally restricted to
// the trailing number of days.
func (s *TransactionStore) Revenue(days int) (float64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE status = ?`
	args := []any{model.TxStatusSucceeded}
	if days > 0 {
		query += ` AND created_at >= datetime('now', ?)`
		args = append(args, fmt.Sprintf("-%d days", days))
	}

	var total float64
	if err := s.db.QueryRow(query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum revenue: %w", err)
	}
	return total, nil
}

// DayAmount is one bucket of a per-day aggregate series.
type DayAmount struct {
	Day    string  `json:"day"`
	Amount float64 `json:"amount"`
}

// RevenueByDay buckets succeeded transaction amounts by calendar day over the
// trailing window. Days with no revenue are omitted.
func (s *TransactionStore) RevenueByDay(days int) ([]DayAmount, error) {
	rows, err := s.db.Query(`
		SELECT date(created_at), COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE status = ? AND created_at >= datetime('now', ?)
		GROUP BY date(created_at)
		ORDER BY date(created_at)`,
		model.TxStatusSucceeded, fmt.Sprintf("-%d days", days))
	if err != nil {
		return nil, fmt.Errorf("revenue by day: %w", err)
	}
	defer rows.Close()

	series := []DayAmount{}
	for rows.Next() {
		var d DayAmount
		if err := rows.Scan(&d.Day, &d.Amount); err != nil {
			return nil, fmt.Errorf("scan revenue day: %w", err)
		}
		series = append(series, d)
	}
	return series, rows.Err()
}
