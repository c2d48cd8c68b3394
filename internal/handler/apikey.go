package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/homeguard/internal/auth"
	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/store"
)

type APIKeyHandler struct {
	keys   *store.APIKeyStore
	logger *slog.Logger
}

func NewAPIKeyHandler(ks *store.APIKeyStore, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{keys: ks, logger: logger}
}

type createKeyRequest struct {
	Name          string   `json:"name"`
	Scopes        []string `json:"scopes"`
	ExpiresInDays int      `json:"expires_in_days"`
}

type createKeyResponse struct {
	Key    *model.APIKey `json:"api_key"`
	Secret string        `json:"secret"`
}

// Create mints a new API key. The plaintext secret appears only in this
// response; afterwards only the hash is stored.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	for _, s := range req.Scopes {
		switch s {
		case model.ScopeRead, model.ScopeWrite, model.ScopeDevices, model.ScopeAlerts, model.ScopeSync:
		default:
			respondError(w, http.StatusBadRequest, "unknown scope: "+s)
			return
		}
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := time.Now().UTC().AddDate(0, 0, req.ExpiresInDays)
		expiresAt = &t
	}

	secret, keyHash, display, err := auth.NewAPIKey()
	if err != nil {
		h.logger.Error("generate api key", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	key, err := h.keys.Create(auth.UserID(r.Context()), keyHash, display, req.Name, req.Scopes, expiresAt)
	if err != nil {
		h.logger.Error("create api key", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusCreated, createKeyResponse{Key: key, Secret: secret})
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list api keys", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"api_keys": keys})
}

func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	revoked, err := h.keys.Revoke(id, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("revoke api key", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !revoked {
		respondError(w, http.StatusNotFound, "api key not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	deleted, err := h.keys.Delete(id, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("delete api key", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "api key not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
