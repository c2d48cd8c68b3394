package server

import (
	"net/http"
	"testing"
)

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), "GET", "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPublicPlans(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), "GET", "/api/v1/plans", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Plans []struct {
			Name  string  `json:"name"`
			Price float64 `json:"price"`
		} `json:"plans"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Plans) != 3 {
		t.Fatalf("got %d plans, want 3", len(resp.Plans))
	}
	if resp.Plans[0].Price != 0 {
		t.Errorf("first plan should be the free trial, got %+v", resp.Plans[0])
	}
}

func TestPublicStats(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	user := signupUser(t, router, "parent@example.com")
	registerDevice(t, router, user.Tokens.AccessToken, "device-abc")

	rec := doJSON(t, router, "GET", "/api/v1/stats", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats struct {
		Families int64 `json:"families_protected"`
		Devices  int64 `json:"devices_protected"`
	}
	decodeBody(t, rec, &stats)
	if stats.Families != 1 || stats.Devices != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestAnonymousDownload(t *testing.T) {
	srv, db := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, "POST", "/api/v1/downloads", "", map[string]string{
		"platform": "windows",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		DownloadToken string `json:"download_token"`
		URL           string `json:"url"`
		AppVersion    string `json:"app_version"`
	}
	decodeBody(t, rec, &resp)
	if resp.DownloadToken == "" {
		t.Error("download token missing")
	}
	// Installer storage is unconfigured here, so no presigned URL.
	if resp.URL != "" {
		t.Errorf("url = %q, want empty", resp.URL)
	}
	if resp.AppVersion != "1.0.0" {
		t.Errorf("app version = %q", resp.AppVersion)
	}

	var source string
	if err := db.QueryRow(`SELECT source FROM downloads WHERE token = ?`, resp.DownloadToken).Scan(&source); err != nil {
		t.Fatalf("find download: %v", err)
	}
	if source != "website" {
		t.Errorf("source = %q, want website default", source)
	}
}

func TestDownloadRejectsUnknownPlatform(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), "POST", "/api/v1/downloads", "", map[string]string{
		"platform": "templeos",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRegisterLinksDownloadToken(t *testing.T) {
	srv, db := newTestServer(t)
	router := srv.Router()
	user := signupUser(t, router, "parent@example.com")

	rec := doJSON(t, router, "POST", "/api/v1/downloads", "", map[string]string{"platform": "windows"})
	var dl struct {
		DownloadToken string `json:"download_token"`
	}
	decodeBody(t, rec, &dl)

	rec = doJSON(t, router, "POST", "/api/v1/devices/register", user.Tokens.AccessToken, map[string]string{
		"device_id":      "device-abc",
		"platform":       "windows",
		"download_token": dl.DownloadToken,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}

	var downloadID *int64
	if err := db.QueryRow(`SELECT download_id FROM installations WHERE device_id = 'device-abc'`).Scan(&downloadID); err != nil {
		t.Fatalf("find installation: %v", err)
	}
	if downloadID == nil {
		t.Error("installation should carry the download it came from")
	}
}
