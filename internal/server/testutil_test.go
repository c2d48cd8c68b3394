package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/dukerupert/homeguard/internal/auth"
	"github.com/dukerupert/homeguard/internal/backup"
	"github.com/dukerupert/homeguard/internal/database"
	"github.com/dukerupert/homeguard/internal/email"
	"github.com/dukerupert/homeguard/internal/push"
	"github.com/dukerupert/homeguard/internal/release"
	"github.com/dukerupert/homeguard/internal/stripe"
)

const testWebhookSecret = "whsec_test_secret"

func newTestServer(t *testing.T) (*Server, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.DiscardHandler)
	emailClient := email.NewClient("", "test@homeguard.app", "http://localhost")
	stripeClient := stripe.NewClient(stripe.Config{
		WebhookSecret: testWebhookSecret,
		BasicPriceID:  "price_basic",
		ProPriceID:    "price_pro",
	})
	pushSvc := push.NewService("", "")
	releaseSvc := release.NewService(release.S3Config{}, "1.0.0")
	backupMgr := backup.NewManager(backup.Config{}, db, logger)
	issuer := auth.NewTokenIssuer("test-secret")

	srv := New(db, emailClient, stripeClient, pushSvc, releaseSvc, backupMgr, issuer, "http://localhost/account", logger)
	return srv, db
}

// doJSON sends a JSON request through the router. An empty token leaves the
// request unauthenticated.
func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

type tokensPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type authPayload struct {
	User struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
	Tokens tokensPayload `json:"tokens"`
}

// signupUser registers a fresh account through the API and returns its
// payload with tokens.
func signupUser(t *testing.T, router http.Handler, emailAddr string) authPayload {
	t.Helper()
	rec := doJSON(t, router, "POST", "/api/v1/auth/signup", "", map[string]string{
		"email":      emailAddr,
		"password":   "password1",
		"first_name": "Test",
		"last_name":  "Parent",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp authPayload
	decodeBody(t, rec, &resp)
	return resp
}

// registerDevice registers a device for the token's account and returns the
// installation public ID.
func registerDevice(t *testing.T, router http.Handler, token, deviceID string) string {
	t.Helper()
	rec := doJSON(t, router, "POST", "/api/v1/devices/register", token, map[string]string{
		"device_id":   deviceID,
		"device_name": "Kids PC",
		"platform":    "windows",
		"os_version":  "11",
		"app_version": "1.0.0",
	})
	if rec.Code != http.StatusCreated && rec.Code != http.StatusOK {
		t.Fatalf("register device status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		PublicID string `json:"installation_id"`
	}
	decodeBody(t, rec, &resp)
	return resp.PublicID
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
