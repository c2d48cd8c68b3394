package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/homeguard/internal/auth"
	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/store"
)

// PairingHandler implements both pairing directions. Activation codes are
// minted by a signed-in user and typed into a fresh device. Link codes go
// the other way: the device shows a code, the user claims it from the
// dashboard, and the device polls its tokens off the code.
type PairingHandler struct {
	pairing       *store.PairingStore
	users         *store.UserStore
	installations *store.InstallationStore
	subscriptions *store.SubscriptionStore
	refreshTokens *store.RefreshTokenStore
	issuer        *auth.TokenIssuer
	logger        *slog.Logger
}

func NewPairingHandler(
	ps *store.PairingStore,
	us *store.UserStore,
	is *store.InstallationStore,
	ss *store.SubscriptionStore,
	rts *store.RefreshTokenStore,
	issuer *auth.TokenIssuer,
	logger *slog.Logger,
) *PairingHandler {
	return &PairingHandler{
		pairing:       ps,
		users:         us,
		installations: is,
		subscriptions: ss,
		refreshTokens: rts,
		issuer:        issuer,
		logger:        logger,
	}
}

// pairingError maps the pairing sentinel errors onto HTTP statuses.
func (h *PairingHandler) pairingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrCodeNotFound):
		respondError(w, http.StatusNotFound, "code not found")
	case errors.Is(err, store.ErrCodeExpired):
		respondError(w, http.StatusGone, "code has expired")
	case errors.Is(err, store.ErrCodeUsed):
		respondError(w, http.StatusConflict, "code has already been used")
	default:
		h.logger.Error("pairing", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

type pairingCodeResponse struct {
	Code      string    `json:"code"`
	Display   string    `json:"display"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateActivation mints a code the signed-in user types into a new device.
func (h *PairingHandler) CreateActivation(w http.ResponseWriter, r *http.Request) {
	pc, err := h.pairing.CreateActivation(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("create activation code", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusCreated, pairingCodeResponse{
		Code:      pc.Code,
		Display:   store.DisplayCode(pc.Code),
		ExpiresAt: pc.ExpiresAt,
	})
}

type consumeActivationRequest struct {
	Code       string `json:"code"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	Platform   string `json:"platform"`
}

type pairedResponse struct {
	User   *model.User     `json:"user"`
	Device *deviceResponse `json:"device"`
	Tokens *tokenPair      `json:"tokens"`
}

// ConsumeActivation is called by an unauthenticated device with a code the
// user minted. On success the device is registered under that account and
// gets its own token pair.
func (h *PairingHandler) ConsumeActivation(w http.ResponseWriter, r *http.Request) {
	var req consumeActivationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.Code == "" || req.DeviceID == "" {
		respondError(w, http.StatusBadRequest, "code and device_id are required")
		return
	}
	if !model.ValidPlatform(req.Platform) {
		respondError(w, http.StatusBadRequest, "unknown platform")
		return
	}

	pc, err := h.pairing.ConsumeActivation(req.Code, req.DeviceID, req.DeviceName, req.Platform)
	if err != nil {
		h.pairingError(w, err)
		return
	}

	user, err := h.users.GetByID(*pc.UserID)
	if err != nil || user == nil || !user.IsActive {
		respondError(w, http.StatusForbidden, "account is unavailable")
		return
	}

	inst, _, err := h.installations.Register(user.ID, nil, req.DeviceID, req.DeviceName, req.Platform, "", "")
	if err != nil {
		h.logger.Error("register paired device", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	startTrialIfNeeded(h.subscriptions, user.ID, h.logger)

	tokens, err := issueTokenPair(h.issuer, h.refreshTokens, user)
	if err != nil {
		h.logger.Error("issue tokens", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, pairedResponse{
		User:   user,
		Device: &deviceResponse{Installation: inst, Online: true},
		Tokens: tokens,
	})
}

type createLinkRequest struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	Platform   string `json:"platform"`
}

// CreateLink mints a code the device displays for the user to claim from the
// dashboard.
func (h *PairingHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.DeviceID == "" {
		respondError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	if !model.ValidPlatform(req.Platform) {
		respondError(w, http.StatusBadRequest, "unknown platform")
		return
	}

	pc, err := h.pairing.CreateLink(r.Context(), req.DeviceID, req.DeviceName, req.Platform)
	if err != nil {
		h.logger.Error("create link code", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusCreated, pairingCodeResponse{
		Code:      pc.Code,
		Display:   store.DisplayCode(pc.Code),
		ExpiresAt: pc.ExpiresAt,
	})
}

// ClaimLink is called by the signed-in user with the code the device shows.
// A token pair is minted on the user's behalf and parked on the code for the
// device to collect.
func (h *PairingHandler) ClaimLink(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	userID := auth.UserID(r.Context())

	user, err := h.users.GetByID(userID)
	if err != nil || user == nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	tokens, err := issueTokenPair(h.issuer, h.refreshTokens, user)
	if err != nil {
		h.logger.Error("issue tokens", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	pc, err := h.pairing.ClaimLink(code, userID, tokens.AccessToken, tokens.RefreshToken)
	if err != nil {
		h.pairingError(w, err)
		return
	}

	inst, _, err := h.installations.Register(userID, nil, pc.DeviceID, pc.DeviceName, pc.Platform, "", "")
	if err != nil {
		h.logger.Error("register linked device", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	startTrialIfNeeded(h.subscriptions, userID, h.logger)

	respondJSON(w, http.StatusOK, map[string]any{
		"status": "linked",
		"device": deviceResponse{Installation: inst, Online: false},
	})
}

type linkStatusResponse struct {
	Linked    bool      `json:"linked"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PollLink lets the device check whether the user has claimed the code yet.
func (h *PairingHandler) PollLink(w http.ResponseWriter, r *http.Request) {
	pc, err := h.pairing.PollLink(r.PathValue("code"))
	if err != nil {
		h.pairingError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, linkStatusResponse{Linked: pc.IsLinked, ExpiresAt: pc.ExpiresAt})
}

// CollectLinkTokens hands the parked token pair to the device exactly once.
// The tokens are wiped from the row and the code is burned.
func (h *PairingHandler) CollectLinkTokens(w http.ResponseWriter, r *http.Request) {
	access, refresh, userID, err := h.pairing.CollectLinkTokens(r.PathValue("code"))
	if err != nil {
		h.pairingError(w, err)
		return
	}

	user, err := h.users.GetByID(userID)
	if err != nil || user == nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user": user,
		"tokens": tokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresIn:    int64(auth.AccessTokenTTL.Seconds()),
		},
	})
}
