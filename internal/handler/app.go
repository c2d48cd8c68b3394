package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/homeguard/internal/auth"
	"github.com/dukerupert/homeguard/internal/email"
	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/plan"
	"github.com/dukerupert/homeguard/internal/push"
	"github.com/dukerupert/homeguard/internal/store"
	"github.com/dukerupert/homeguard/internal/subscription"
	"github.com/dukerupert/homeguard/internal/syncsvc"
)

// AppHandler serves the desktop and mobile client API: license checks,
// settings sync, and alert ingestion.
type AppHandler struct {
	users         *store.UserStore
	subscriptions *store.SubscriptionStore
	installations *store.InstallationStore
	alerts        *store.AlertStore
	settings      *store.SettingsStore
	sync          *syncsvc.Service
	notifier      *push.Notifier
	emailClient   *email.Client
	logger        *slog.Logger
}

func NewAppHandler(
	us *store.UserStore,
	ss *store.SubscriptionStore,
	is *store.InstallationStore,
	as *store.AlertStore,
	sets *store.SettingsStore,
	sync *syncsvc.Service,
	notifier *push.Notifier,
	ec *email.Client,
	logger *slog.Logger,
) *AppHandler {
	return &AppHandler{
		users:         us,
		subscriptions: ss,
		installations: is,
		alerts:        as,
		settings:      sets,
		sync:          sync,
		notifier:      notifier,
		emailClient:   ec,
		logger:        logger,
	}
}

type licenseResponse struct {
	Valid     bool          `json:"valid"`
	Status    string        `json:"status"`
	Plan      string        `json:"plan"`
	Features  plan.Features `json:"features"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
}

// License tells the client whether protection should run and which features
// are unlocked. An expired subscription gets a zero feature set so the app
// drops back to disabled.
func (h *AppHandler) License(w http.ResponseWriter, r *http.Request) {
	sub, err := reconciledSubscription(h.subscriptions, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("license lookup", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sub == nil {
		respondJSON(w, http.StatusOK, licenseResponse{Valid: false, Status: "none"})
		return
	}

	resp := licenseResponse{
		Status:    sub.Status,
		Plan:      sub.PlanName,
		ExpiresAt: sub.CurrentPeriodEnd,
	}
	if subscription.Usable(sub, time.Now().UTC()) {
		resp.Valid = true
		resp.Features = plan.FeaturesFor(sub.PlanName)
	}
	respondJSON(w, http.StatusOK, resp)
}

// Features lists every plan tier's feature set plus the caller's current one,
// so the client can render upgrade prompts without a second catalog fetch.
func (h *AppHandler) Features(w http.ResponseWriter, r *http.Request) {
	sub, err := reconciledSubscription(h.subscriptions, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("features lookup", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	current := plan.FeaturesFor(plan.FreeTrial)
	planName := plan.FreeTrial
	if sub != nil && subscription.Usable(sub, time.Now().UTC()) {
		planName = sub.PlanName
		current = plan.FeaturesFor(sub.PlanName)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"plan":     planName,
		"features": current,
		"plans":    plan.Catalog(),
	})
}

// resolveDevice loads the installation for the deviceID path value, scoped to
// the caller. Writes a 404 and returns nil when it is unknown or not theirs.
func (h *AppHandler) resolveDevice(w http.ResponseWriter, r *http.Request) *model.Installation {
	inst, err := h.installations.GetByDeviceID(r.PathValue("deviceID"))
	if err != nil {
		h.logger.Error("resolve device", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if inst == nil || inst.UserID != auth.UserID(r.Context()) {
		respondError(w, http.StatusNotFound, "device not found")
		return nil
	}
	return inst
}

// requireSync checks that the account's plan includes settings sync.
func (h *AppHandler) requireSync(w http.ResponseWriter, r *http.Request) bool {
	sub, err := reconciledSubscription(h.subscriptions, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("sync plan lookup", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	now := time.Now().UTC()
	if sub == nil || !subscription.Usable(sub, now) {
		respondError(w, http.StatusForbidden, "subscription required")
		return false
	}
	// Trial accounts sync too; only the feature flag gates paid tiers.
	if sub.Status != model.SubStatusTrialing && !plan.FeaturesFor(sub.PlanName).WebDashboard {
		respondError(w, http.StatusForbidden, "plan does not include settings sync")
		return false
	}
	return true
}

func (h *AppHandler) SyncPush(w http.ResponseWriter, r *http.Request) {
	if !h.requireSync(w, r) {
		return
	}
	inst := h.resolveDevice(w, r)
	if inst == nil {
		return
	}

	var payload syncsvc.PushPayload
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	meta, err := h.sync.Push(inst.ID, &payload)
	if err != nil {
		h.logger.Error("sync push", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, meta)
}

func (h *AppHandler) SyncPull(w http.ResponseWriter, r *http.Request) {
	if !h.requireSync(w, r) {
		return
	}
	inst := h.resolveDevice(w, r)
	if inst == nil {
		return
	}

	payload, err := h.sync.Pull(inst.ID)
	if err != nil {
		h.logger.Error("sync pull", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, payload)
}

func (h *AppHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	inst := h.resolveDevice(w, r)
	if inst == nil {
		return
	}

	meta, err := h.sync.Status(inst.ID)
	if err != nil {
		h.logger.Error("sync status", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, meta)
}

type reportAlertRequest struct {
	DeviceID string  `json:"device_id"`
	Type     string  `json:"alert_type"`
	Severity string  `json:"severity"`
	Title    string  `json:"title"`
	Message  string  `json:"message"`
	Details  *string `json:"details"`
}

// ReportAlert ingests an alert from a client installation and fans it out to
// the user's notification channels.
func (h *AppHandler) ReportAlert(w http.ResponseWriter, r *http.Request) {
	var req reportAlertRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidAlertType(req.Type) {
		respondError(w, http.StatusBadRequest, "unknown alert type")
		return
	}
	if req.Severity == "" {
		req.Severity = model.SeverityInfo
	}
	if !model.ValidSeverity(req.Severity) {
		respondError(w, http.StatusBadRequest, "unknown severity")
		return
	}
	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}

	inst, err := h.installations.GetByDeviceID(req.DeviceID)
	if err != nil {
		h.logger.Error("alert device lookup", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	userID := auth.UserID(r.Context())
	if inst == nil || inst.UserID != userID {
		respondError(w, http.StatusNotFound, "device not found")
		return
	}

	alert, err := h.alerts.Create(&model.Alert{
		InstallationID: inst.ID,
		UserID:         userID,
		Type:           req.Type,
		Severity:       req.Severity,
		Title:          req.Title,
		Message:        req.Message,
		Details:        req.Details,
	})
	if err != nil {
		h.logger.Error("create alert", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.notifier.NotifyAlert(alert)
	h.emailAlertIfWanted(alert)

	respondJSON(w, http.StatusCreated, alert)
}

// emailAlertIfWanted sends an alert email for critical alerts when the user
// opted in. Best effort.
func (h *AppHandler) emailAlertIfWanted(alert *model.Alert) {
	if !h.emailClient.Configured() || alert.Severity != model.SeverityCritical {
		return
	}
	settings, err := h.settings.GetOrCreate(alert.UserID)
	if err != nil || !settings.EmailAlerts {
		return
	}
	user, err := h.users.GetByID(alert.UserID)
	if err != nil || user == nil {
		return
	}
	if err := h.emailClient.SendAlert(user.Email, alert.Title, alert.Message); err != nil {
		h.logger.Error("send alert email", "error", err)
	}
}
