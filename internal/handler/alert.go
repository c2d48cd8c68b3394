package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/homeguard/internal/auth"
	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/store"
)

// AlertHandler is the dashboard side of alerts: list, read, dismiss.
type AlertHandler struct {
	alerts *store.AlertStore
	logger *slog.Logger
}

func NewAlertHandler(as *store.AlertStore, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{alerts: as, logger: logger}
}

func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	alertType := q.Get("type")
	if alertType != "" && !model.ValidAlertType(alertType) {
		respondError(w, http.StatusBadRequest, "unknown alert type")
		return
	}
	severity := q.Get("severity")
	if severity != "" && !model.ValidSeverity(severity) {
		respondError(w, http.StatusBadRequest, "unknown severity")
		return
	}
	unreadOnly := q.Get("unread") == "true"
	limit, offset := pagination(r, 50, 200)

	userID := auth.UserID(r.Context())
	alerts, err := h.alerts.ListByUser(userID, alertType, severity, unreadOnly, limit, offset)
	if err != nil {
		h.logger.Error("list alerts", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	unread, err := h.alerts.CountUnread(userID)
	if err != nil {
		h.logger.Error("count unread", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "unread_count": unread})
}

func (h *AlertHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	updated, err := h.alerts.MarkRead(id, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("mark alert read", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !updated {
		respondError(w, http.StatusNotFound, "alert not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (h *AlertHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.alerts.MarkAllRead(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("mark all read", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "read", "updated": n})
}

func (h *AlertHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	updated, err := h.alerts.Dismiss(id, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("dismiss alert", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !updated {
		respondError(w, http.StatusNotFound, "alert not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}
