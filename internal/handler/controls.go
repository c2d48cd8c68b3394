package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/homeguard/internal/auth"
	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/store"
)

// ControlsHandler manages per-device parental controls from the dashboard:
// screen time limits, blocked apps and games, and the web filter.
type ControlsHandler struct {
	installations *store.InstallationStore
	screenTime    *store.ScreenTimeStore
	blockedApps   *store.BlockedAppStore
	webFilter     *store.WebFilterStore
	logger        *slog.Logger
}

func NewControlsHandler(
	is *store.InstallationStore,
	sts *store.ScreenTimeStore,
	bas *store.BlockedAppStore,
	wfs *store.WebFilterStore,
	logger *slog.Logger,
) *ControlsHandler {
	return &ControlsHandler{
		installations: is,
		screenTime:    sts,
		blockedApps:   bas,
		webFilter:     wfs,
		logger:        logger,
	}
}

// resolve loads the installation named in the path, scoped to the caller.
// Writes a 404 and returns nil when it does not exist or belongs to someone
// else.
func (h *ControlsHandler) resolve(w http.ResponseWriter, r *http.Request) *model.Installation {
	inst, err := h.installations.GetForUser(r.PathValue("installationID"), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("resolve installation", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if inst == nil {
		respondError(w, http.StatusNotFound, "device not found")
		return nil
	}
	return inst
}

func (h *ControlsHandler) GetScreenTime(w http.ResponseWriter, r *http.Request) {
	inst := h.resolve(w, r)
	if inst == nil {
		return
	}

	cfg, err := h.screenTime.GetByInstallation(inst.ID)
	if err != nil {
		h.logger.Error("get screen time", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if cfg == nil {
		cfg = &model.ScreenTimeConfig{InstallationID: inst.ID}
	}
	respondJSON(w, http.StatusOK, cfg)
}

type screenTimeRequest struct {
	IsEnabled      bool    `json:"is_enabled"`
	MondayLimit    int     `json:"monday_limit"`
	TuesdayLimit   int     `json:"tuesday_limit"`
	WednesdayLimit int     `json:"wednesday_limit"`
	ThursdayLimit  int     `json:"thursday_limit"`
	FridayLimit    int     `json:"friday_limit"`
	SaturdayLimit  int     `json:"saturday_limit"`
	SundayLimit    int     `json:"sunday_limit"`
	AllowedStart   *string `json:"allowed_start_time"`
	AllowedEnd     *string `json:"allowed_end_time"`
	GracePeriod    int     `json:"grace_period"`
}

func (h *ControlsHandler) PutScreenTime(w http.ResponseWriter, r *http.Request) {
	inst := h.resolve(w, r)
	if inst == nil {
		return
	}

	var req screenTimeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, limit := range []int{req.MondayLimit, req.TuesdayLimit, req.WednesdayLimit,
		req.ThursdayLimit, req.FridayLimit, req.SaturdayLimit, req.SundayLimit} {
		if limit < 0 || limit > 1440 {
			respondError(w, http.StatusBadRequest, "daily limits must be between 0 and 1440 minutes")
			return
		}
	}

	cfg, err := h.screenTime.Upsert(&model.ScreenTimeConfig{
		InstallationID: inst.ID,
		IsEnabled:      req.IsEnabled,
		MondayLimit:    req.MondayLimit,
		TuesdayLimit:   req.TuesdayLimit,
		WednesdayLimit: req.WednesdayLimit,
		ThursdayLimit:  req.ThursdayLimit,
		FridayLimit:    req.FridayLimit,
		SaturdayLimit:  req.SaturdayLimit,
		SundayLimit:    req.SundayLimit,
		AllowedStart:   req.AllowedStart,
		AllowedEnd:     req.AllowedEnd,
		GracePeriod:    req.GracePeriod,
	})
	if err != nil {
		h.logger.Error("upsert screen time", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (h *ControlsHandler) ListBlockedApps(w http.ResponseWriter, r *http.Request) {
	inst := h.resolve(w, r)
	if inst == nil {
		return
	}

	apps, err := h.blockedApps.ListByInstallation(inst.ID)
	if err != nil {
		h.logger.Error("list blocked apps", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"blocked_apps": apps})
}

type blockedAppRequest struct {
	AppName       string  `json:"app_name"`
	AppIdentifier string  `json:"app_identifier"`
	Platform      string  `json:"platform"`
	IsGame        bool    `json:"is_game"`
	Schedule      *string `json:"schedule"`
}

func (h *ControlsHandler) CreateBlockedApp(w http.ResponseWriter, r *http.Request) {
	inst := h.resolve(w, r)
	if inst == nil {
		return
	}

	var req blockedAppRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.AppName = strings.TrimSpace(req.AppName)
	if req.AppName == "" {
		respondError(w, http.StatusBadRequest, "app_name is required")
		return
	}
	if req.Platform == "" {
		req.Platform = inst.Platform
	}

	app, err := h.blockedApps.Create(&model.BlockedApp{
		InstallationID: inst.ID,
		AppName:        req.AppName,
		AppIdentifier:  req.AppIdentifier,
		Platform:       req.Platform,
		IsGame:         req.IsGame,
		IsEnabled:      true,
		Schedule:       req.Schedule,
	})
	if err != nil {
		h.logger.Error("create blocked app", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusCreated, app)
}

type setEnabledRequest struct {
	IsEnabled bool `json:"is_enabled"`
}

func (h *ControlsHandler) SetBlockedAppEnabled(w http.ResponseWriter, r *http.Request) {
	inst := h.resolve(w, r)
	if inst == nil {
		return
	}
	id, ok := pathID(r, "appID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid app id")
		return
	}

	app, err := h.blockedApps.GetByID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if app == nil || app.InstallationID != inst.ID {
		respondError(w, http.StatusNotFound, "blocked app not found")
		return
	}

	var req setEnabledRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.blockedApps.SetEnabled(id, req.IsEnabled); err != nil {
		h.logger.Error("set blocked app enabled", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *ControlsHandler) DeleteBlockedApp(w http.ResponseWriter, r *http.Request) {
	inst := h.resolve(w, r)
	if inst == nil {
		return
	}
	id, ok := pathID(r, "appID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid app id")
		return
	}

	app, err := h.blockedApps.GetByID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if app == nil || app.InstallationID != inst.ID {
		respondError(w, http.StatusNotFound, "blocked app not found")
		return
	}

	if err := h.blockedApps.Delete(id); err != nil {
		h.logger.Error("delete blocked app", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type webFilterResponse struct {
	Config *model.WebFilterConfig `json:"config"`
	Rules  []*model.WebFilterRule `json:"rules"`
}

func (h *ControlsHandler) GetWebFilter(w http.ResponseWriter, r *http.Request) {
	inst := h.resolve(w, r)
	if inst == nil {
		return
	}

	cfg, err := h.webFilter.GetOrCreateConfig(inst.ID)
	if err != nil {
		h.logger.Error("get web filter", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	rules, err := h.webFilter.ListRules(cfg.ID)
	if err != nil {
		h.logger.Error("list filter rules", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, webFilterResponse{Config: cfg, Rules: rules})
}

type webFilterRequest struct {
	IsEnabled         bool     `json:"is_enabled"`
	BlockedCategories []string `json:"blocked_categories"`
	EnforceSafeSearch bool     `json:"enforce_safe_search"`
}

func (h *ControlsHandler) PutWebFilter(w http.ResponseWriter, r *http.Request) {
	inst := h.resolve(w, r)
	if inst == nil {
		return
	}

	var req webFilterRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, c := range req.BlockedCategories {
		if !model.ValidCategory(c) {
			respondError(w, http.StatusBadRequest, "unknown category: "+c)
			return
		}
	}

	if _, err := h.webFilter.GetOrCreateConfig(inst.ID); err != nil {
		h.logger.Error("get web filter", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	cfg, err := h.webFilter.UpdateConfig(inst.ID, req.IsEnabled, req.BlockedCategories, req.EnforceSafeSearch)
	if err != nil {
		h.logger.Error("update web filter", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

type filterRuleRequest struct {
	URLPattern string `json:"url_pattern"`
	IsBlocked  bool   `json:"is_blocked"`
	Notes      string `json:"notes"`
}

func (h *ControlsHandler) CreateFilterRule(w http.ResponseWriter, r *http.Request) {
	inst := h.resolve(w, r)
	if inst == nil {
		return
	}

	var req filterRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.URLPattern = strings.TrimSpace(req.URLPattern)
	if req.URLPattern == "" {
		respondError(w, http.StatusBadRequest, "url_pattern is required")
		return
	}

	cfg, err := h.webFilter.GetOrCreateConfig(inst.ID)
	if err != nil {
		h.logger.Error("get web filter", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	rule, err := h.webFilter.CreateRule(cfg.ID, req.URLPattern, req.IsBlocked, true, req.Notes)
	if err != nil {
		h.logger.Error("create filter rule", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

func (h *ControlsHandler) DeleteFilterRule(w http.ResponseWriter, r *http.Request) {
	inst := h.resolve(w, r)
	if inst == nil {
		return
	}
	id, ok := pathID(r, "ruleID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	cfg, err := h.webFilter.GetConfig(inst.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if cfg == nil {
		respondError(w, http.StatusNotFound, "rule not found")
		return
	}
	rules, err := h.webFilter.ListRules(cfg.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	found := false
	for _, rule := range rules {
		if rule.ID == id {
			found = true
			break
		}
	}
	if !found {
		respondError(w, http.StatusNotFound, "rule not found")
		return
	}

	if err := h.webFilter.DeleteRule(id); err != nil {
		h.logger.Error("delete filter rule", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
