package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/homeguard/internal/auth"
	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/store"
	"github.com/dukerupert/homeguard/internal/stripe"
)

type AccountHandler struct {
	users         *store.UserStore
	settings      *store.SettingsStore
	refreshTokens *store.RefreshTokenStore
	subscriptions *store.SubscriptionStore
	stripeClient  *stripe.Client
	logger        *slog.Logger
}

func NewAccountHandler(
	us *store.UserStore,
	ss *store.SettingsStore,
	rts *store.RefreshTokenStore,
	subs *store.SubscriptionStore,
	sc *stripe.Client,
	logger *slog.Logger,
) *AccountHandler {
	return &AccountHandler{
		users:         us,
		settings:      ss,
		refreshTokens: rts,
		subscriptions: subs,
		stripeClient:  sc,
		logger:        logger,
	}
}

func (h *AccountHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(auth.UserID(r.Context()))
	if err != nil || user == nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type updateProfileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.users.UpdateProfile(auth.UserID(r.Context()), strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName))
	if err != nil {
		h.logger.Error("update profile", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := auth.UserID(r.Context())
	user, err := h.users.GetByID(userID)
	if err != nil || user == nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		respondError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}
	if err := auth.ValidatePassword(req.NewPassword); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.users.UpdatePassword(userID, hash); err != nil {
		h.logger.Error("update password", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Other sessions must log in again with the new password.
	if err := h.refreshTokens.RevokeAllForUser(userID); err != nil {
		h.logger.Error("revoke refresh tokens", "error", err)
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

type closeAccountRequest struct {
	Password string `json:"password"`
}

// CloseAccount deactivates the account, cancels any live subscription, and
// revokes every session. The row is kept for the transaction history.
func (h *AccountHandler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	var req closeAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := auth.UserID(r.Context())
	user, err := h.users.GetByID(userID)
	if err != nil || user == nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "password is incorrect")
		return
	}

	sub, err := h.subscriptions.GetLatestByUser(userID)
	if err != nil {
		h.logger.Error("close account subscription lookup", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sub != nil && sub.Status != model.SubStatusCanceled {
		if sub.StripeSubscriptionID != nil {
			// Keep closing the account even if Stripe is unreachable; the
			// webhook reconciles the subscription row later.
			if err := h.stripeClient.CancelSubscription(*sub.StripeSubscriptionID); err != nil {
				h.logger.Error("close account stripe cancel", "error", err)
			}
		}
		if err := h.subscriptions.Cancel(sub.ID, time.Now().UTC()); err != nil {
			h.logger.Error("close account cancel subscription", "error", err)
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	if err := h.users.SetActive(userID, false); err != nil {
		h.logger.Error("close account deactivate", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.refreshTokens.RevokeAllForUser(userID); err != nil {
		h.logger.Error("close account revoke tokens", "error", err)
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "account_closed"})
}

func (h *AccountHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.GetOrCreate(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get settings", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

type updateSettingsRequest struct {
	EmailAlerts         *bool   `json:"email_alerts"`
	EmailWeeklyReport   *bool   `json:"email_weekly_report"`
	EmailSecurityAlerts *bool   `json:"email_security_alerts"`
	AlertBlockedSites   *bool   `json:"alert_blocked_sites"`
	AlertBlockedApps    *bool   `json:"alert_blocked_apps"`
	AlertScreenTime     *bool   `json:"alert_screen_time"`
	AlertTamperAttempts *bool   `json:"alert_tamper_attempts"`
	Timezone            *string `json:"timezone"`
}

// UpdateSettings applies a partial update: absent fields keep their value.
func (h *AccountHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settings, err := h.settings.GetOrCreate(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get settings", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if req.EmailAlerts != nil {
		settings.EmailAlerts = *req.EmailAlerts
	}
	if req.EmailWeeklyReport != nil {
		settings.EmailWeeklyReport = *req.EmailWeeklyReport
	}
	if req.EmailSecurityAlerts != nil {
		settings.EmailSecurityAlerts = *req.EmailSecurityAlerts
	}
	if req.AlertBlockedSites != nil {
		settings.AlertBlockedSites = *req.AlertBlockedSites
	}
	if req.AlertBlockedApps != nil {
		settings.AlertBlockedApps = *req.AlertBlockedApps
	}
	if req.AlertScreenTime != nil {
		settings.AlertScreenTime = *req.AlertScreenTime
	}
	if req.AlertTamperAttempts != nil {
		settings.AlertTamperAttempts = *req.AlertTamperAttempts
	}
	if req.Timezone != nil && *req.Timezone != "" {
		settings.Timezone = *req.Timezone
	}

	updated, err := h.settings.Update(settings)
	if err != nil {
		h.logger.Error("update settings", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}
