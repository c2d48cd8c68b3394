package handler

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/homeguard/internal/backup"
	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/store"
)

// AdminHandler is the operator surface. Every route is behind RequireAdmin.
type AdminHandler struct {
	users         *store.UserStore
	subscriptions *store.SubscriptionStore
	transactions  *store.TransactionStore
	downloads     *store.DownloadStore
	installations *store.InstallationStore
	backups       *backup.Manager
	logger        *slog.Logger
}

func NewAdminHandler(
	us *store.UserStore,
	ss *store.SubscriptionStore,
	ts *store.TransactionStore,
	ds *store.DownloadStore,
	is *store.InstallationStore,
	backups *backup.Manager,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		users:         us,
		subscriptions: ss,
		transactions:  ts,
		downloads:     ds,
		installations: is,
		backups:       backups,
		logger:        logger,
	}
}

type adminStats struct {
	TotalUsers            int64            `json:"total_users"`
	NewUsers30d           int64            `json:"new_users_30d"`
	SubscriptionsByStatus map[string]int64 `json:"subscriptions_by_status"`
	Revenue30d            float64          `json:"revenue_30d"`
	RevenueAllTime        float64          `json:"revenue_all_time"`
	TotalDownloads        int64            `json:"total_downloads"`
	Downloads30d          int64            `json:"downloads_30d"`
	DownloadsByPlatform   map[string]int64 `json:"downloads_by_platform"`
	TotalInstallations    int64            `json:"total_installations"`
	OnlineInstallations   int64            `json:"online_installations"`
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var stats adminStats
	var err error

	if stats.TotalUsers, err = h.users.Count(); err != nil {
		h.statsError(w, "count users", err)
		return
	}
	if stats.NewUsers30d, err = h.users.CountCreatedSince(30); err != nil {
		h.statsError(w, "count new users", err)
		return
	}
	if stats.SubscriptionsByStatus, err = h.subscriptions.CountByStatus(); err != nil {
		h.statsError(w, "count subscriptions", err)
		return
	}
	if stats.Revenue30d, err = h.transactions.Revenue(30); err != nil {
		h.statsError(w, "revenue 30d", err)
		return
	}
	if stats.RevenueAllTime, err = h.transactions.Revenue(0); err != nil {
		h.statsError(w, "revenue all time", err)
		return
	}
	if stats.TotalDownloads, err = h.downloads.Count(); err != nil {
		h.statsError(w, "count downloads", err)
		return
	}
	if stats.Downloads30d, err = h.downloads.CountSince(30); err != nil {
		h.statsError(w, "count recent downloads", err)
		return
	}
	if stats.DownloadsByPlatform, err = h.downloads.CountByPlatform(); err != nil {
		h.statsError(w, "downloads by platform", err)
		return
	}
	if stats.TotalInstallations, err = h.installations.Count(); err != nil {
		h.statsError(w, "count installations", err)
		return
	}
	if stats.OnlineInstallations, err = h.installations.CountOnline(); err != nil {
		h.statsError(w, "count online installations", err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) statsError(w http.ResponseWriter, what string, err error) {
	h.logger.Error("admin stats", "step", what, "error", err)
	respondError(w, http.StatusInternalServerError, "internal error")
}

// StatsSeries returns per-day revenue and signup buckets for dashboard charts.
func (h *AdminHandler) StatsSeries(w http.ResponseWriter, r *http.Request) {
	const window = 30

	revenue, err := h.transactions.RevenueByDay(window)
	if err != nil {
		h.statsError(w, "revenue by day", err)
		return
	}
	signups, err := h.users.SignupsByDay(window)
	if err != nil {
		h.statsError(w, "signups by day", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"days":           window,
		"revenue_by_day": revenue,
		"signups_by_day": signups,
	})
}

func (h *AdminHandler) ListDownloads(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	if platform != "" && !model.ValidPlatform(platform) {
		respondError(w, http.StatusBadRequest, "unknown platform")
		return
	}

	limit, offset := pagination(r, 50, 200)
	downloads, err := h.downloads.List(platform, limit, offset)
	if err != nil {
		h.logger.Error("admin list downloads", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"downloads": downloads})
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50, 200)
	users, err := h.users.List(r.URL.Query().Get("search"), limit, offset)
	if err != nil {
		h.logger.Error("admin list users", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": users})
}

type setActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// SetUserActive deactivates or reactivates an account. Deactivated users
// fail auth on their next request.
func (h *AdminHandler) SetUserActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req setActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.users.GetByID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	if err := h.users.SetActive(id, req.IsActive); err != nil {
		h.logger.Error("admin set user active", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "updated", "is_active": req.IsActive})
}

func (h *AdminHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", model.SubStatusTrialing, model.SubStatusActive, model.SubStatusPastDue,
		model.SubStatusCanceled, model.SubStatusIncomplete:
	default:
		respondError(w, http.StatusBadRequest, "unknown status")
		return
	}

	limit, offset := pagination(r, 50, 200)
	subs, err := h.subscriptions.List(status, limit, offset)
	if err != nil {
		h.logger.Error("admin list subscriptions", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

func (h *AdminHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50, 500)
	txs, err := h.transactions.ListAll(limit, offset)
	if err != nil {
		h.logger.Error("admin list transactions", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

// ExportTransactionsCSV streams the transaction ledger as CSV for accounting.
func (h *AdminHandler) ExportTransactionsCSV(w http.ResponseWriter, r *http.Request) {
	const batchSize = 500

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"id", "user_id", "subscription_id", "stripe_invoice_id", "amount", "currency", "status", "description", "created_at"})

	for offset := 0; ; offset += batchSize {
		txs, err := h.transactions.ListAll(batchSize, offset)
		if err != nil {
			h.logger.Error("admin export transactions", "error", err)
			return
		}
		for _, tx := range txs {
			invoiceID := ""
			if tx.StripeInvoiceID != nil {
				invoiceID = *tx.StripeInvoiceID
			}
			cw.Write([]string{
				strconv.FormatInt(tx.ID, 10),
				strconv.FormatInt(tx.UserID, 10),
				strconv.FormatInt(tx.SubscriptionID, 10),
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

func (h *AdminHandler) ListInstallations(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50, 200)
	insts, err := h.installations.ListAll(limit, offset)
	if err != nil {
		h.logger.Error("admin list installations", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now().UTC()
	devices := make([]deviceResponse, 0, len(insts))
	for _, inst := range insts {
		devices = append(devices, deviceResponse{Installation: inst, Online: store.Online(inst, now)})
	}
	respondJSON(w, http.StatusOK, map[string]any{"installations": devices})
}

type blockInstallationRequest struct {
	IsBlocked bool    `json:"is_blocked"`
	Reason    *string `json:"reason"`
}

// SetInstallationBlocked blocks or unblocks an installation, for abuse cases.
func (h *AdminHandler) SetInstallationBlocked(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid installation id")
		return
	}

	var req blockInstallationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inst, err := h.installations.GetByID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if inst == nil {
		respondError(w, http.StatusNotFound, "installation not found")
		return
	}

	if err := h.installations.SetBlocked(id, req.IsBlocked, req.Reason); err != nil {
		h.logger.Error("admin block installation", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "updated", "is_blocked": req.IsBlocked})
}

func (h *AdminHandler) BackupStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.backups.Status())
}

// RunBackup kicks off a snapshot immediately rather than waiting for the
// nightly schedule.
func (h *AdminHandler) RunBackup(w http.ResponseWriter, r *http.Request) {
	if !h.backups.Enabled() {
		respondError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	}
	if err := h.backups.Run(r.Context()); err != nil {
		h.logger.Error("admin run backup", "error", err)
		respondError(w, http.StatusInternalServerError, "backup failed")
		return
	}
	respondJSON(w, http.StatusOK, h.backups.Status())
}
