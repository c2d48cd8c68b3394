package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/homeguard/internal/plan"
	"github.com/dukerupert/homeguard/internal/store"
)

// PublicHandler serves unauthenticated marketing-site endpoints.
type PublicHandler struct {
	users         *store.UserStore
	downloads     *store.DownloadStore
	installations *store.InstallationStore
	logger        *slog.Logger
}

func NewPublicHandler(us *store.UserStore, ds *store.DownloadStore, is *store.InstallationStore, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{users: us, downloads: ds, installations: is, logger: logger}
}

func (h *PublicHandler) Plans(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"plans": plan.Catalog()})
}

// Stats returns coarse counters for the marketing site. No per-user data.
func (h *PublicHandler) Stats(w http.ResponseWriter, r *http.Request) {
	families, err := h.users.Count()
	if err != nil {
		h.logger.Error("public stats users", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	downloads, err := h.downloads.Count()
	if err != nil {
		h.logger.Error("public stats downloads", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	devices, err := h.installations.Count()
	if err != nil {
		h.logger.Error("public stats installations", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"families_protected": families,
		"downloads":          downloads,
		"devices_protected":  devices,
	})
}

func (h *PublicHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
