package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/homeguard/internal/auth"
	"github.com/dukerupert/homeguard/internal/email"
	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/store"
	"github.com/dukerupert/homeguard/internal/subscription"
)

const verifyTokenTTL = 24 * time.Hour
const resetTokenTTL = time.Hour

type AuthHandler struct {
	users         *store.UserStore
	subscriptions *store.SubscriptionStore
	settings      *store.SettingsStore
	refreshTokens *store.RefreshTokenStore
	emailTokens   *store.EmailTokenStore
	emailClient   *email.Client
	issuer        *auth.TokenIssuer
	logger        *slog.Logger
}

func NewAuthHandler(
	us *store.UserStore,
	ss *store.SubscriptionStore,
	sets *store.SettingsStore,
	rts *store.RefreshTokenStore,
	ets *store.EmailTokenStore,
	ec *email.Client,
	issuer *auth.TokenIssuer,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:         us,
		subscriptions: ss,
		settings:      sets,
		refreshTokens: rts,
		emailTokens:   ets,
		emailClient:   ec,
		issuer:        issuer,
		logger:        logger,
	}
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// issueTokenPair mints an access token and stores a new refresh token.
// Shared with the pairing flows, which mint tokens on a user's behalf.
func issueTokenPair(issuer *auth.TokenIssuer, rts *store.RefreshTokenStore, user *model.User) (*tokenPair, error) {
	access, err := issuer.Mint(user.ID, user.Email, user.Role, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	refresh, err := auth.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	if _, err := rts.Create(user.ID, auth.HashToken(refresh), auth.RefreshTokenTTL); err != nil {
		return nil, err
	}
	return &tokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(auth.AccessTokenTTL.Seconds()),
	}, nil
}

func (h *AuthHandler) issueTokens(user *model.User) (*tokenPair, error) {
	return issueTokenPair(h.issuer, h.refreshTokens, user)
}

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type authResponse struct {
	User   *model.User `json:"user"`
	Tokens *tokenPair  `json:"tokens"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		respondError(w, http.StatusBadRequest, "valid email is required")
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := h.users.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("signup lookup", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		respondError(w, http.StatusConflict, "an account with this email already exists")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := h.users.Create(req.Email, hash, req.FirstName, req.LastName, model.RoleCustomer)
	if err != nil {
		h.logger.Error("create user", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Every account starts with a trial row. The trial clock does not start
	// until the first device registers.
	if _, err := h.subscriptions.CreateTrial(user.ID); err != nil {
		h.logger.Error("create trial", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if _, err := h.settings.GetOrCreate(user.ID); err != nil {
		h.logger.Error("create settings", "error", err)
	}

	if h.emailClient.Configured() {
		token, err := auth.NewOpaqueToken()
		if err == nil {
			_, err = h.emailTokens.Create(user.ID, token, model.TokenPurposeVerify, verifyTokenTTL)
		}
		if err != nil {
			h.logger.Error("create verify token", "error", err)
		} else if err := h.emailClient.SendVerification(user.Email, token); err != nil {
			h.logger.Error("send verification email", "error", err)
		}
	}

	tokens, err := h.issueTokens(user)
	if err != nil {
		h.logger.Error("issue tokens", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusCreated, authResponse{User: user, Tokens: tokens})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.users.GetByEmail(strings.TrimSpace(req.Email))
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// Same response for unknown email and wrong password.
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if !user.IsActive {
		respondError(w, http.StatusForbidden, "account is deactivated")
		return
	}

	tokens, err := h.issueTokens(user)
	if err != nil {
		h.logger.Error("issue tokens", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, authResponse{User: user, Tokens: tokens})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates the refresh token: the presented token is revoked and a
// fresh pair is returned.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	rt, err := h.refreshTokens.GetValid(auth.HashToken(req.RefreshToken))
	if err != nil {
		h.logger.Error("refresh lookup", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rt == nil {
		respondError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	user, err := h.users.GetByID(rt.UserID)
	if err != nil || user == nil || !user.IsActive {
		respondError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	if err := h.refreshTokens.Revoke(rt.ID); err != nil {
		h.logger.Error("revoke refresh token", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	tokens, err := h.issueTokens(user)
	if err != nil {
		h.logger.Error("issue tokens", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, authResponse{User: user, Tokens: tokens})
}

// Logout revokes the presented refresh token. Always succeeds so clients can
// clear local state unconditionally.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err == nil && req.RefreshToken != "" {
		if rt, err := h.refreshTokens.GetValid(auth.HashToken(req.RefreshToken)); err == nil && rt != nil {
			if err := h.refreshTokens.Revoke(rt.ID); err != nil {
				h.logger.Error("logout revoke", "error", err)
			}
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	et, err := h.emailTokens.Consume(req.Token, model.TokenPurposeVerify)
	if err != nil {
		h.logger.Error("consume verify token", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if et == nil {
		respondError(w, http.StatusBadRequest, "invalid or expired token")
		return
	}

	if err := h.users.SetVerified(et.UserID); err != nil {
		h.logger.Error("set verified", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

type resendVerificationRequest struct {
	Email string `json:"email"`
}

// ResendVerification mints a fresh verify token for an unverified account.
// The response never reveals whether the email exists.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req resendVerificationRequest
	if err := decodeJSON(r, &req); err != nil || req.Email == "" {
		respondError(w, http.StatusBadRequest, "email is required")
		return
	}

	resp := map[string]string{"status": "if the account exists, a verification email has been sent"}

	user, err := h.users.GetByEmail(strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil {
		h.logger.Error("resend verification lookup", "error", err)
		respondJSON(w, http.StatusOK, resp)
		return
	}
	if user == nil || !user.IsActive || user.IsVerified {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	token, err := auth.NewOpaqueToken()
	if err == nil {
		_, err = h.emailTokens.Create(user.ID, token, model.TokenPurposeVerify, verifyTokenTTL)
	}
	if err != nil {
		h.logger.Error("create verify token", "error", err)
	} else if err := h.emailClient.SendVerification(user.Email, token); err != nil {
		h.logger.Error("send verification email", "error", err)
	}

	respondJSON(w, http.StatusOK, resp)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword always returns 200 to prevent account enumeration.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil || req.Email == "" {
		respondError(w, http.StatusBadRequest, "email is required")
		return
	}

	resp := map[string]string{"status": "if the account exists, a reset email has been sent"}

	user, err := h.users.GetByEmail(strings.TrimSpace(req.Email))
	if err != nil {
		h.logger.Error("forgot password lookup", "error", err)
		respondJSON(w, http.StatusOK, resp)
		return
	}
	if user == nil || !user.IsActive {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	token, err := auth.NewOpaqueToken()
	if err == nil {
		_, err = h.emailTokens.Create(user.ID, token, model.TokenPurposeReset, resetTokenTTL)
	}
	if err != nil {
		h.logger.Error("create reset token", "error", err)
	} else if err := h.emailClient.SendPasswordReset(user.Email, token); err != nil {
		h.logger.Error("send reset email", "error", err)
	}

	respondJSON(w, http.StatusOK, resp)
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	et, err := h.emailTokens.Consume(req.Token, model.TokenPurposeReset)
	if err != nil {
		h.logger.Error("consume reset token", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if et == nil {
		respondError(w, http.StatusBadRequest, "invalid or expired token")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.users.UpdatePassword(et.UserID, hash); err != nil {
		h.logger.Error("update password", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Force every session to reauthenticate with the new password.
	if err := h.refreshTokens.RevokeAllForUser(et.UserID); err != nil {
		h.logger.Error("revoke refresh tokens", "error", err)
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "password_reset"})
}

// reconciledSubscription loads the user's latest subscription and reconciles its
// status against the clock before returning it. Shared by account and app
// handlers.
func reconciledSubscription(subs *store.SubscriptionStore, userID int64) (*model.Subscription, error) {
	sub, err := subs.GetLatestByUser(userID)
	if err != nil || sub == nil {
		return sub, err
	}
	now := time.Now().UTC()
	if next := subscription.Reconcile(sub, now); next != sub.Status {
		if err := subs.SetStatus(sub.ID, next); err != nil {
			return nil, err
		}
		sub.Status = next
	}
	return sub, nil
}
