package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	stripesdk "github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/homeguard/internal/email"
	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/plan"
	"github.com/dukerupert/homeguard/internal/store"
	"github.com/dukerupert/homeguard/internal/stripe"
	"github.com/dukerupert/homeguard/internal/subscription"
)

type WebhookHandler struct {
	stripeClient  *stripe.Client
	users         *store.UserStore
	subscriptions *store.SubscriptionStore
	transactions  *store.TransactionStore
	emailClient   *email.Client
	logger        *slog.Logger
}

func NewWebhookHandler(
	sc *stripe.Client,
	us *store.UserStore,
	ss *store.SubscriptionStore,
	ts *store.TransactionStore,
	ec *email.Client,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		stripeClient:  sc,
		users:         us,
		subscriptions: ss,
		transactions:  ts,
		emailClient:   ec,
		logger:        logger,
	}
}

// HandleStripeWebhook verifies the signature and dispatches by event type.
// Processing errors are logged but still return 200 so Stripe does not retry
// events we cannot act on.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	event, err := h.stripeClient.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(event)
	case "invoice.paid":
		h.handleInvoicePaid(event)
	case "invoice.payment_failed":
		h.handleInvoicePaymentFailed(event)
	case "customer.subscription.updated":
		h.handleSubscriptionUpdated(event)
	case "customer.subscription.deleted":
		h.handleSubscriptionDeleted(event)
	}

	w.WriteHeader(http.StatusOK)
}

// planForAmount maps a checkout total back onto the catalog. Checkout
// sessions do not carry the price ID, so the total is the only signal.
func planForAmount(amountCents int64) string {
	amount := float64(amountCents) / 100
	for _, p := range plan.Catalog() {
		if p.Price > 0 && math.Abs(p.Price-amount) < 0.005 {
			return p.Name
		}
	}
	return plan.Basic
}

func (h *WebhookHandler) handleCheckoutCompleted(event stripesdk.Event) {
	var sess stripesdk.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		h.logger.Error("webhook: unmarshal checkout session", "error", err)
		return
	}

	emailAddr := ""
	if sess.CustomerDetails != nil {
		emailAddr = sess.CustomerDetails.Email
	}
	if emailAddr == "" {
		emailAddr = sess.CustomerEmail
	}
	if emailAddr == "" {
		h.logger.Error("webhook: checkout session missing email")
		return
	}

	user, err := h.users.GetByEmail(emailAddr)
	if err != nil {
		h.logger.Error("webhook: get user by email", "error", err)
		return
	}
	if user == nil {
		// Accounts are created through signup, never from billing events.
		h.logger.Warn("webhook: checkout for unknown email", "email", emailAddr)
		return
	}

	sub, err := h.subscriptions.GetLatestByUser(user.ID)
	if err != nil {
		h.logger.Error("webhook: get subscription", "error", err)
		return
	}
	if sub == nil {
		sub, err = h.subscriptions.CreateTrial(user.ID)
		if err != nil {
			h.logger.Error("webhook: create subscription", "error", err)
			return
		}
	}

	stripeSubID := ""
	if sess.Subscription != nil {
		stripeSubID = sess.Subscription.ID
	}
	stripeCustID := ""
	if sess.Customer != nil {
		stripeCustID = sess.Customer.ID
	}

	planName := planForAmount(sess.AmountTotal)
	start, end := subscription.PaidWindow(time.Now().UTC())
	if _, err := h.subscriptions.Activate(sub.ID, stripeSubID, stripeCustID, planName, float64(sess.AmountTotal)/100, start, end); err != nil {
		h.logger.Error("webhook: activate subscription", "error", err)
		return
	}

	h.logger.Info("webhook: checkout completed", "email", emailAddr, "plan", planName)
}

// subscriptionIDFromInvoice extracts the subscription ID from an invoice's parent.
func subscriptionIDFromInvoice(invoice stripesdk.Invoice) string {
	if invoice.Parent != nil &&
		invoice.Parent.SubscriptionDetails != nil &&
		invoice.Parent.SubscriptionDetails.Subscription != nil {
		return invoice.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}

func (h *WebhookHandler) handleInvoicePaid(event stripesdk.Event) {
	var invoice stripesdk.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("webhook: unmarshal invoice", "error", err)
		return
	}

	subID := subscriptionIDFromInvoice(invoice)
	if subID == "" {
		return
	}

	sub, err := h.subscriptions.GetByStripeID(subID)
	if err != nil {
		h.logger.Error("webhook: get subscription for invoice.paid", "error", err)
		return
	}
	if sub == nil {
		return
	}

	// Stripe redelivers webhooks; the invoice ID keeps the ledger idempotent.
	exists, err := h.transactions.ExistsForInvoice(invoice.ID)
	if err != nil {
		h.logger.Error("webhook: check invoice", "error", err)
		return
	}
	if exists {
		return
	}

	start := time.Now().UTC()
	end := start.Add(subscription.PaidPeriod)
	if invoice.PeriodStart > 0 && invoice.PeriodEnd > invoice.PeriodStart {
		start = time.Unix(invoice.PeriodStart, 0).UTC()
		end = time.Unix(invoice.PeriodEnd, 0).UTC()
	}
	if _, err := h.subscriptions.RenewPeriod(sub.ID, start, end); err != nil {
		h.logger.Error("webhook: renew period", "error", err)
		return
	}

	amount := float64(invoice.AmountPaid) / 100
	tx := &model.Transaction{
		UserID:          sub.UserID,
		SubscriptionID:  sub.ID,
		StripeInvoiceID: &invoice.ID,
		Amount:          amount,
		Currency:        string(invoice.Currency),
		Status:          model.TxStatusSucceeded,
		Description:     sub.PlanName + " subscription payment",
	}
	if invoice.HostedInvoiceURL != "" {
		tx.InvoiceURL = &invoice.HostedInvoiceURL
	}
	if _, err := h.transactions.Create(tx); err != nil {
		h.logger.Error("webhook: record transaction", "error", err)
		return
	}

	if h.emailClient.Configured() {
		if user, err := h.users.GetByID(sub.UserID); err == nil && user != nil {
			invoiceURL := ""
			if tx.InvoiceURL != nil {
				invoiceURL = *tx.InvoiceURL
			}
			if err := h.emailClient.SendReceipt(user.Email, sub.PlanName, amount, invoiceURL); err != nil {
				h.logger.Error("webhook: send receipt", "error", err)
			}
		}
	}
}

func (h *WebhookHandler) handleInvoicePaymentFailed(event stripesdk.Event) {
	var invoice stripesdk.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("webhook: unmarshal invoice", "error", err)
		return
	}

	subID := subscriptionIDFromInvoice(invoice)
	if subID == "" {
		return
	}

	sub, err := h.subscriptions.GetByStripeID(subID)
	if err != nil || sub == nil {
		return
	}

	if err := h.subscriptions.SetStatus(sub.ID, model.SubStatusPastDue); err != nil {
		h.logger.Error("webhook: set past_due", "error", err)
	}
}

func (h *WebhookHandler) handleSubscriptionUpdated(event stripesdk.Event) {
	var stripeSub stripesdk.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		h.logger.Error("webhook: unmarshal subscription", "error", err)
		return
	}

	sub, err := h.subscriptions.GetByStripeID(stripeSub.ID)
	if err != nil || sub == nil {
		return
	}

	status := localStatus(stripeSub.Status)
	if status == model.SubStatusCanceled {
		if err := h.subscriptions.Cancel(sub.ID, time.Now().UTC()); err != nil {
			h.logger.Error("webhook: cancel subscription", "error", err)
		}
		return
	}
	if err := h.subscriptions.SetStatus(sub.ID, status); err != nil {
		h.logger.Error("webhook: set status", "error", err)
	}
}

func (h *WebhookHandler) handleSubscriptionDeleted(event stripesdk.Event) {
	var stripeSub stripesdk.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		h.logger.Error("webhook: unmarshal subscription", "error", err)
		return
	}

	sub, err := h.subscriptions.GetByStripeID(stripeSub.ID)
	if err != nil || sub == nil {
		return
	}

	if err := h.subscriptions.Cancel(sub.ID, time.Now().UTC()); err != nil {
		h.logger.Error("webhook: cancel subscription", "error", err)
	}
}

// localStatus maps a Stripe subscription status onto the local status set.
func localStatus(s stripesdk.SubscriptionStatus) string {
	switch s {
	case stripesdk.SubscriptionStatusActive:
		return model.SubStatusActive
	case stripesdk.SubscriptionStatusTrialing:
		return model.SubStatusTrialing
	case stripesdk.SubscriptionStatusPastDue, stripesdk.SubscriptionStatusUnpaid:
		return model.SubStatusPastDue
	case stripesdk.SubscriptionStatusCanceled:
		return model.SubStatusCanceled
	default:
		return model.SubStatusIncomplete
	}
}
