package model

import "time"

// Subscription statuses
const (
	SubStatusTrialing   = "trialing"
	SubStatusActive     = "active"
	SubStatusPastDue    = "past_due"
	SubStatusCanceled   = "canceled"
	SubStatusIncomplete = "incomplete"
)

type Subscription struct {
	ID                   int64      `json:"id"`
	UserID               int64      `json:"user_id"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id,omitempty"`
	StripeCustomerID     *string    `json:"stripe_customer_id,omitempty"`
	Status               string     `json:"status"`
	PlanName             string     `json:"plan_name"`
	Amount               float64    `json:"amount"`
	Currency             string     `json:"currency"`
	CurrentPeriodStart   *time.Time `json:"current_period_start"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end"`
	CanceledAt           *time.Time `json:"canceled_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Transaction statuses
const (
	TxStatusSucceeded = "succeeded"
	TxStatusFailed    = "failed"
	TxStatusPending   = "pending"
	TxStatusRefunded  = "refunded"
)

// Transaction is an append-only payment record. Rows are never mutated after
// insert.
type Transaction struct {
	ID                    int64     `json:"id"`
	UserID                int64     `json:"user_id"`
	SubscriptionID        int64     `json:"subscription_id"`
	StripePaymentIntentID *string   `json:"stripe_payment_intent_id,omitempty"`
	StripeInvoiceID       *string   `json:"stripe_invoice_id,omitempty"`
	Amount                float64   `json:"amount"`
	Currency              string    `json:"currency"`
	Status                string    `json:"status"`
	Description           string    `json:"description,omitempty"`
	InvoiceURL            *string   `json:"invoice_url,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}
