package server

import (
	"net/http"
	"testing"

	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/store"
)

func TestRegisterDeviceStartsTrial(t *testing.T) {
	srv, db := newTestServer(t)
	router := srv.Router()
	user := signupUser(t, router, "parent@example.com")

	publicID := registerDevice(t, router, user.Tokens.AccessToken, "device-abc")
	if publicID == "" {
		t.Fatal("no installation id returned")
	}

	sub, err := store.NewSubscriptionStore(db).GetLatestByUser(user.User.ID)
	if err != nil || sub == nil {
		t.Fatalf("get subscription: %v", err)
	}
	if sub.CurrentPeriodStart == nil || sub.CurrentPeriodEnd == nil {
		t.Fatal("trial clock should start on first device registration")
	}
	firstEnd := *sub.CurrentPeriodEnd

	// A second registration must not restart the trial.
	registerDevice(t, router, user.Tokens.AccessToken, "device-xyz")
	sub, _ = store.NewSubscriptionStore(db).GetLatestByUser(user.User.ID)
	if !sub.CurrentPeriodEnd.Equal(firstEnd) {
		t.Error("trial window changed on second registration")
	}
}

func TestHeartbeatOwnershipScoped(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	owner := signupUser(t, router, "owner@example.com")
	other := signupUser(t, router, "other@example.com")
	registerDevice(t, router, owner.Tokens.AccessToken, "device-abc")

	rec := doJSON(t, router, "POST", "/api/v1/devices/device-abc/heartbeat", other.Tokens.AccessToken,
		map[string]string{"app_version": "1.0.1"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign heartbeat status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, router, "POST", "/api/v1/devices/device-abc/heartbeat", owner.Tokens.AccessToken,
		map[string]string{"app_version": "1.0.1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("owner heartbeat status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Online     bool   `json:"online"`
		AppVersion string `json:"app_version"`
	}
	decodeBody(t, rec, &resp)
	if !resp.Online {
		t.Error("device should report online after heartbeat")
	}
	if resp.AppVersion != "1.0.1" {
		t.Errorf("app_version = %q, heartbeats carry version updates", resp.AppVersion)
	}
}

func TestUnregisterDevice(t *testing.T) {
	srv, db := newTestServer(t)
	router := srv.Router()
	user := signupUser(t, router, "parent@example.com")
	registerDevice(t, router, user.Tokens.AccessToken, "device-abc")

	rec := doJSON(t, router, "DELETE", "/api/v1/devices/device-abc", user.Tokens.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unregister status = %d", rec.Code)
	}

	// The row is retained for history, not deleted.
	inst, err := store.NewInstallationStore(db).GetByDeviceID("device-abc")
	if err != nil || inst == nil {
		t.Fatalf("installation row should survive unregister, err %v", err)
	}
	if inst.Status != model.InstallStatusUninstalled {
		t.Errorf("status = %q, want uninstalled", inst.Status)
	}

	rec = doJSON(t, router, "DELETE", "/api/v1/devices/device-abc", user.Tokens.AccessToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second unregister status = %d, want 404", rec.Code)
	}
}

func TestDeviceStatusCheck(t *testing.T) {
	srv, db := newTestServer(t)
	router := srv.Router()
	user := signupUser(t, router, "parent@example.com")
	registerDevice(t, router, user.Tokens.AccessToken, "device-abc")

	// No credentials: the agent only knows its device_id.
	rec := doJSON(t, router, "GET", "/api/v1/devices/device-abc/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status check = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Registered    bool    `json:"registered"`
		Status        string  `json:"status"`
		IsBlocked     bool    `json:"is_blocked"`
		BlockedReason *string `json:"blocked_reason"`
	}
	decodeBody(t, rec, &resp)
	if !resp.Registered || resp.Status != model.InstallStatusActive || resp.IsBlocked {
		t.Errorf("response = %+v", resp)
	}

	rec = doJSON(t, router, "GET", "/api/v1/devices/never-installed/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown device status check = %d", rec.Code)
	}
	decodeBody(t, rec, &resp)
	if resp.Registered {
		t.Error("unknown device should report unregistered")
	}

	is := store.NewInstallationStore(db)
	inst, err := is.GetByDeviceID("device-abc")
	if err != nil || inst == nil {
		t.Fatalf("get installation: %v", err)
	}
	reason := "chargeback"
	if err := is.SetBlocked(inst.ID, true, &reason); err != nil {
		t.Fatalf("block installation: %v", err)
	}

	rec = doJSON(t, router, "GET", "/api/v1/devices/device-abc/status", "", nil)
	decodeBody(t, rec, &resp)
	if !resp.IsBlocked || resp.BlockedReason == nil || *resp.BlockedReason != "chargeback" {
		t.Errorf("blocked response = %+v", resp)
	}
}

func TestDownloadAttribution(t *testing.T) {
	srv, db := newTestServer(t)
	router := srv.Router()
	user := signupUser(t, router, "parent@example.com")
	ds := store.NewDownloadStore(db)

	// Anonymous website download.
	rec := doJSON(t, router, "POST", "/api/v1/downloads", "",
		map[string]string{"platform": "windows"})
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous download status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		DownloadToken string `json:"download_token"`
	}
	decodeBody(t, rec, &resp)
	dl, err := ds.GetByToken(resp.DownloadToken)
	if err != nil || dl == nil {
		t.Fatalf("get download: %v", err)
	}
	if dl.UserID != nil {
		t.Error("anonymous download should carry no user")
	}

	// Same route from the dashboard attributes the download.
	rec = doJSON(t, router, "POST", "/api/v1/downloads", user.Tokens.AccessToken,
		map[string]string{"platform": "windows"})
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated download status = %d", rec.Code)
	}
	decodeBody(t, rec, &resp)
	dl, err = ds.GetByToken(resp.DownloadToken)
	if err != nil || dl == nil {
		t.Fatalf("get download: %v", err)
	}
	if dl.UserID == nil || *dl.UserID != user.User.ID {
		t.Errorf("download user = %v, want %d", dl.UserID, user.User.ID)
	}

	// A garbage token does not fail the request, it just stays anonymous.
	rec = doJSON(t, router, "POST", "/api/v1/downloads", "not-a-jwt",
		map[string]string{"platform": "windows"})
	if rec.Code != http.StatusOK {
		t.Errorf("download with bad token status = %d, want 200", rec.Code)
	}
	decodeBody(t, rec, &resp)
	if dl, _ := ds.GetByToken(resp.DownloadToken); dl == nil || dl.UserID != nil {
		t.Error("bad token should fall back to anonymous")
	}
}

func TestListDevices(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	user := signupUser(t, router, "parent@example.com")
	registerDevice(t, router, user.Tokens.AccessToken, "device-1")
	registerDevice(t, router, user.Tokens.AccessToken, "device-2")

	rec := doJSON(t, router, "GET", "/api/v1/devices", user.Tokens.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Devices []struct {
			DeviceID string `json:"device_id"`
			Online   bool   `json:"online"`
		} `json:"devices"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(resp.Devices))
	}
	for _, d := range resp.Devices {
		if !d.Online {
			t.Errorf("device %s should be online right after registration", d.DeviceID)
		}
	}
}

func TestScreenTimeControls(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	user := signupUser(t, router, "parent@example.com")
	publicID := registerDevice(t, router, user.Tokens.AccessToken, "device-abc")

	rec := doJSON(t, router, "PUT", "/api/v1/devices/"+publicID+"/screen-time", user.Tokens.AccessToken,
		map[string]any{
			"is_enabled":   true,
			"monday_limit": 120,
			"sunday_limit": 240,
		})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, "GET", "/api/v1/devices/"+publicID+"/screen-time", user.Tokens.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var cfg model.ScreenTimeConfig
	decodeBody(t, rec, &cfg)
	if !cfg.IsEnabled || cfg.MondayLimit != 120 || cfg.SundayLimit != 240 {
		t.Errorf("config = %+v", cfg)
	}

	// Limits above 24h are rejected.
	rec = doJSON(t, router, "PUT", "/api/v1/devices/"+publicID+"/screen-time", user.Tokens.AccessToken,
		map[string]any{"monday_limit": 2000})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid limit status = %d, want 400", rec.Code)
	}
}

func TestControlsOwnershipScoped(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	owner := signupUser(t, router, "owner@example.com")
	other := signupUser(t, router, "other@example.com")
	publicID := registerDevice(t, router, owner.Tokens.AccessToken, "device-abc")

	rec := doJSON(t, router, "GET", "/api/v1/devices/"+publicID+"/web-filter", other.Tokens.AccessToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign web filter status = %d, want 404", rec.Code)
	}
}

func TestBlockedAppLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	user := signupUser(t, router, "parent@example.com")
	publicID := registerDevice(t, router, user.Tokens.AccessToken, "device-abc")
	base := "/api/v1/devices/" + publicID + "/blocked-apps"

	rec := doJSON(t, router, "POST", base, user.Tokens.AccessToken, map[string]any{
		"app_name":       "Fortnite",
		"app_identifier": "fortnite.exe",
		"is_game":        true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var app model.BlockedApp
	decodeBody(t, rec, &app)
	if !app.IsEnabled {
		t.Error("new blocks start enabled")
	}
	if app.Platform != "windows" {
		t.Errorf("platform = %q, should default to the device platform", app.Platform)
	}

	rec = doJSON(t, router, "PUT", base+"/"+itoa(app.ID), user.Tokens.AccessToken,
		map[string]bool{"is_enabled": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("disable status = %d", rec.Code)
	}

	rec = doJSON(t, router, "DELETE", base+"/"+itoa(app.ID), user.Tokens.AccessToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, router, "DELETE", base+"/"+itoa(app.ID), user.Tokens.AccessToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("double delete status = %d, want 404", rec.Code)
	}
}

func TestWebFilterRules(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	user := signupUser(t, router, "parent@example.com")
	publicID := registerDevice(t, router, user.Tokens.AccessToken, "device-abc")
	base := "/api/v1/devices/" + publicID + "/web-filter"

	rec := doJSON(t, router, "PUT", base, user.Tokens.AccessToken, map[string]any{
		"is_enabled":          true,
		"blocked_categories":  []string{"adult", "gambling"},
		"enforce_safe_search": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put config status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, "PUT", base, user.Tokens.AccessToken, map[string]any{
		"blocked_categories": []string{"not-a-category"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad category status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, "POST", base+"/rules", user.Tokens.AccessToken, map[string]any{
		"url_pattern": "*.example.com",
		"is_blocked":  true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule status = %d", rec.Code)
	}
	var rule model.WebFilterRule
	decodeBody(t, rec, &rule)

	rec = doJSON(t, router, "GET", base, user.Tokens.AccessToken, nil)
	var resp struct {
		Config model.WebFilterConfig `json:"config"`
		Rules  []model.WebFilterRule `json:"rules"`
	}
	decodeBody(t, rec, &resp)
	if !resp.Config.IsEnabled || len(resp.Config.BlockedCategories) != 2 {
		t.Errorf("config = %+v", resp.Config)
	}
	if len(resp.Rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(resp.Rules))
	}

	rec = doJSON(t, router, "DELETE", base+"/rules/"+itoa(rule.ID), user.Tokens.AccessToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete rule status = %d", rec.Code)
	}
}
