package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/homeguard/internal/auth"
	"github.com/dukerupert/homeguard/internal/middleware"
	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/release"
	"github.com/dukerupert/homeguard/internal/store"
	"github.com/dukerupert/homeguard/internal/subscription"
)

type DeviceHandler struct {
	installations *store.InstallationStore
	downloads     *store.DownloadStore
	subscriptions *store.SubscriptionStore
	releases      *release.Service
	logger        *slog.Logger
}

func NewDeviceHandler(
	is *store.InstallationStore,
	ds *store.DownloadStore,
	ss *store.SubscriptionStore,
	rs *release.Service,
	logger *slog.Logger,
) *DeviceHandler {
	return &DeviceHandler{
		installations: is,
		downloads:     ds,
		subscriptions: ss,
		releases:      rs,
		logger:        logger,
	}
}

type downloadRequest struct {
	Platform string `json:"platform"`
	Source   string `json:"source"`
}

type downloadResponse struct {
	DownloadToken string `json:"download_token"`
	URL           string `json:"url"`
	AppVersion    string `json:"app_version"`
}

// RequestDownload records a download and returns a short-lived installer URL.
// Works both anonymously (website download button) and authenticated
// (dashboard); a logged-in caller gets the download attributed to their
// account.
func (h *DeviceHandler) RequestDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidPlatform(req.Platform) {
		respondError(w, http.StatusBadRequest, "unknown platform")
		return
	}
	if req.Source == "" {
		req.Source = model.SourceWebsite
	}
	if !model.ValidSource(req.Source) {
		respondError(w, http.StatusBadRequest, "unknown source")
		return
	}

	var userID *int64
	if id := auth.UserID(r.Context()); id > 0 {
		userID = &id
	}

	dl, err := h.downloads.Create(userID, req.Platform, h.releases.Version,
		req.Source, middleware.RealIP(r), r.UserAgent(), r.Referer())
	if err != nil {
		h.logger.Error("record download", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	url := ""
	if h.releases.Configured() {
		url, err = h.releases.InstallerURL(r.Context(), req.Platform)
		if err != nil {
			h.logger.Error("presign installer url", "error", err)
			respondError(w, http.StatusBadGateway, "installer temporarily unavailable")
			return
		}
	}

	respondJSON(w, http.StatusOK, downloadResponse{
		DownloadToken: dl.Token,
		URL:           url,
		AppVersion:    h.releases.Version,
	})
}

type registerRequest struct {
	DeviceID      string `json:"device_id"`
	DeviceName    string `json:"device_name"`
	Platform      string `json:"platform"`
	OSVersion     string `json:"os_version"`
	AppVersion    string `json:"app_version"`
	DownloadToken string `json:"download_token"`
}

type deviceResponse struct {
	*model.Installation
	Online bool `json:"online"`
}

// Register creates or rebinds an installation for the calling user. The first
// registration on an account starts the trial clock.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
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

	var downloadID *int64
	if req.DownloadToken != "" {
		if dl, err := h.downloads.GetByToken(req.DownloadToken); err == nil && dl != nil {
			downloadID = &dl.ID
		}
	}

	userID := auth.UserID(r.Context())
	inst, created, err := h.installations.Register(userID, downloadID,
		req.DeviceID, req.DeviceName, req.Platform, req.OSVersion, req.AppVersion)
	if err != nil {
		h.logger.Error("register installation", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	startTrialIfNeeded(h.subscriptions, userID, h.logger)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, deviceResponse{Installation: inst, Online: store.Online(inst, time.Now().UTC())})
}

// startTrialIfNeeded starts the trial clock on the first device registration.
// Registering again, or on a paid account, is a no-op. Shared with the
// pairing flows, which also bind devices to accounts.
func startTrialIfNeeded(subs *store.SubscriptionStore, userID int64, logger *slog.Logger) {
	sub, err := subs.GetLatestByUser(userID)
	if err != nil {
		logger.Error("trial lookup", "error", err)
		return
	}
	if sub == nil || sub.Status != model.SubStatusTrialing || sub.CurrentPeriodStart != nil {
		return
	}
	start, end := subscription.TrialWindow(time.Now().UTC())
	if _, err := subs.StartTrial(sub.ID, start, end); err != nil {
		logger.Error("start trial", "error", err)
	}
}

type heartbeatRequest struct {
	OSVersion  string `json:"os_version"`
	AppVersion string `json:"app_version"`
}

func (h *DeviceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceID")
	var req heartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inst, err := h.installations.Heartbeat(deviceID, auth.UserID(r.Context()), req.OSVersion, req.AppVersion)
	if err != nil {
		h.logger.Error("heartbeat", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if inst == nil {
		respondError(w, http.StatusNotFound, "device not found")
		return
	}
	respondJSON(w, http.StatusOK, deviceResponse{Installation: inst, Online: true})
}

type statusResponse struct {
	Registered    bool    `json:"registered"`
	Status        string  `json:"status,omitempty"`
	IsBlocked     bool    `json:"is_blocked"`
	BlockedReason *string `json:"blocked_reason,omitempty"`
}

// Status lets an installed agent check whether its registration still
// stands and whether an admin has blocked it. Keyed by the device's own
// opaque device_id, so it works before the agent has paired or when its
// tokens have lapsed.
func (h *DeviceHandler) Status(w http.ResponseWriter, r *http.Request) {
	inst, err := h.installations.GetByDeviceID(r.PathValue("deviceID"))
	if err != nil {
		h.logger.Error("device status", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if inst == nil {
		respondJSON(w, http.StatusOK, statusResponse{Registered: false})
		return
	}
	respondJSON(w, http.StatusOK, statusResponse{
		Registered:    true,
		Status:        inst.Status,
		IsBlocked:     inst.IsBlocked,
		BlockedReason: inst.BlockedReason,
	})
}

func (h *DeviceHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceID")
	ok, err := h.installations.Unregister(deviceID, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("unregister", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "device not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "unregistered"})
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	insts, err := h.installations.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list installations", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now().UTC()
	devices := make([]deviceResponse, 0, len(insts))
	for _, inst := range insts {
		devices = append(devices, deviceResponse{Installation: inst, Online: store.Online(inst, now)})
	}
	respondJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	inst, err := h.installations.GetForUser(r.PathValue("installationID"), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get installation", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if inst == nil {
		respondError(w, http.StatusNotFound, "device not found")
		return
	}
	respondJSON(w, http.StatusOK, deviceResponse{Installation: inst, Online: store.Online(inst, time.Now().UTC())})
}
