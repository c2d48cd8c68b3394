package handler

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/homeguard/internal/auth"
	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/store"
	"github.com/dukerupert/homeguard/internal/stripe"
)

type BillingHandler struct {
	users         *store.UserStore
	subscriptions *store.SubscriptionStore
	transactions  *store.TransactionStore
	stripeClient  *stripe.Client
	portalURL     string
	logger        *slog.Logger
}

func NewBillingHandler(
	us *store.UserStore,
	ss *store.SubscriptionStore,
	ts *store.TransactionStore,
	sc *stripe.Client,
	portalReturnURL string,
	logger *slog.Logger,
) *BillingHandler {
	return &BillingHandler{
		users:         us,
		subscriptions: ss,
		transactions:  ts,
		stripeClient:  sc,
		portalURL:     portalReturnURL,
		logger:        logger,
	}
}

// GetSubscription returns the caller's current subscription with its status
// reconciled against the clock.
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := reconciledSubscription(h.subscriptions, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get subscription", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "no subscription found")
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

func (h *BillingHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 20, 100)
	txs, err := h.transactions.ListByUser(auth.UserID(r.Context()), limit, offset)
	if err != nil {
		h.logger.Error("list transactions", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

// ExportTransactionsCSV downloads the caller's own payment history as CSV.
func (h *BillingHandler) ExportTransactionsCSV(w http.ResponseWriter, r *http.Request) {
	const batchSize = 500
	userID := auth.UserID(r.Context())

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"id", "stripe_invoice_id", "amount", "currency", "status", "description", "created_at"})

	for offset := 0; ; offset += batchSize {
		txs, err := h.transactions.ListByUser(userID, batchSize, offset)
		if err != nil {
			h.logger.Error("export transactions", "error", err)
			return
		}
		for _, tx := range txs {
			invoiceID := ""
			if tx.StripeInvoiceID != nil {
				invoiceID = *tx.StripeInvoiceID
			}
			cw.Write([]string{
				strconv.FormatInt(tx.ID, 10),
				invoiceID,
				strconv.FormatFloat(tx.Amount, 'f', 2, 64),
				tx.Currency,
				tx.Status,
				tx.Description,
				tx.CreatedAt.Format(time.RFC3339),
			})
		}
		if len(txs) < batchSize {
			break
		}
	}
	cw.Flush()
}

type checkoutRequest struct {
	Plan string `json:"plan"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

// CreateCheckout starts a Stripe Checkout session for the requested plan and
// returns the hosted page URL.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil || req.Plan == "" {
		respondError(w, http.StatusBadRequest, "plan is required")
		return
	}

	user, err := h.users.GetByID(auth.UserID(r.Context()))
	if err != nil || user == nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	sub, err := reconciledSubscription(h.subscriptions, user.ID)
	if err != nil {
		h.logger.Error("get subscription", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sub != nil && sub.Status == model.SubStatusActive && sub.StripeSubscriptionID != nil {
		respondError(w, http.StatusConflict, "subscription is already active")
		return
	}

	url, err := h.stripeClient.CreateCheckoutSession(user.Email, req.Plan)
	if err != nil {
		h.logger.Error("create checkout session", "error", err)
		respondError(w, http.StatusBadGateway, "unable to start checkout")
		return
	}
	respondJSON(w, http.StatusOK, checkoutResponse{URL: url})
}

// CreatePortal returns a Stripe billing portal URL so the customer can manage
// payment methods and invoices.
func (h *BillingHandler) CreatePortal(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscriptions.GetLatestByUser(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get subscription", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sub == nil || sub.StripeCustomerID == nil {
		respondError(w, http.StatusBadRequest, "no billing account on file")
		return
	}

	url, err := h.stripeClient.CreateBillingPortalSession(*sub.StripeCustomerID, h.portalURL)
	if err != nil {
		h.logger.Error("create portal session", "error", err)
		respondError(w, http.StatusBadGateway, "unable to open billing portal")
		return
	}
	respondJSON(w, http.StatusOK, checkoutResponse{URL: url})
}

// CancelSubscription cancels at Stripe and stamps the local row. Canceling an
// already-canceled subscription is a 400.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscriptions.GetLatestByUser(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get subscription", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sub == nil || sub.StripeSubscriptionID == nil {
		respondError(w, http.StatusBadRequest, "no paid subscription to cancel")
		return
	}
	if sub.Status == model.SubStatusCanceled {
		respondError(w, http.StatusBadRequest, "subscription is already canceled")
		return
	}

	if err := h.stripeClient.CancelSubscription(*sub.StripeSubscriptionID); err != nil {
		h.logger.Error("cancel stripe subscription", "error", err)
		respondError(w, http.StatusBadGateway, "unable to cancel subscription")
		return
	}
	if err := h.subscriptions.Cancel(sub.ID, time.Now().UTC()); err != nil {
		h.logger.Error("cancel subscription", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	updated, err := h.subscriptions.GetByID(sub.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}
