package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/homeguard/internal/auth"
	"github.com/dukerupert/homeguard/internal/database"
	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/store"
)

func setupAuthMiddleware(t *testing.T) (*sql.DB, *auth.TokenIssuer, func(http.Handler) http.Handler) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	issuer := auth.NewTokenIssuer("test-secret")
	mw := RequireAuth(issuer, store.NewUserStore(db), store.NewAPIKeyStore(db))
	return db, issuer, mw
}

func createUser(t *testing.T, db *sql.DB, email string) *model.User {
	t.Helper()
	u, err := store.NewUserStore(db).Create(email, "hash", "A", "S", model.RoleCustomer)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func okHandler(t *testing.T, got *auth.AuthContext) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			t.Fatal("expected AuthContext in request context")
		}
		*got = ac
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthNoCredentials(t *testing.T) {
	_, _, mw := setupAuthMiddleware(t)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthValidJWT(t *testing.T) {
	db, issuer, mw := setupAuthMiddleware(t)
	u := createUser(t, db, "alice@example.com")

	token, err := issuer.Mint(u.ID, u.Email, u.Role, time.Now())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	var got auth.AuthContext
	handler := mw(okHandler(t, &got))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got.UserID != u.ID || got.Via != "jwt" {
		t.Errorf("context = %+v", got)
	}
}

func TestRequireAuthBadJWT(t *testing.T) {
	_, _, mw := setupAuthMiddleware(t)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthDeactivatedUser(t *testing.T) {
	db, issuer, mw := setupAuthMiddleware(t)
	u := createUser(t, db, "alice@example.com")
	if err := store.NewUserStore(db).SetActive(u.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	token, err := issuer.Mint(u.ID, u.Email, u.Role, time.Now())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("deactivated user status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthAPIKey(t *testing.T) {
	db, _, mw := setupAuthMiddleware(t)
	u := createUser(t, db, "alice@example.com")

	key, keyHash, display, err := auth.NewAPIKey()
	if err != nil {
		t.Fatalf("new api key: %v", err)
	}
	k, err := store.NewAPIKeyStore(db).Create(u.ID, keyHash, display, "ci", []string{model.ScopeRead}, nil)
	if err != nil {
		t.Fatalf("store key: %v", err)
	}

	var got auth.AuthContext
	handler := mw(okHandler(t, &got))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-API-Key", key)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got.Via != "api_key" || len(got.Scopes) != 1 {
		t.Errorf("context = %+v", got)
	}

	// The key gets a usage stamp.
	stored, err := store.NewAPIKeyStore(db).GetByID(k.ID)
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if stored.LastUsedAt == nil {
		t.Error("last_used_at should be stamped on use")
	}
}

func TestRequireAuthRevokedAPIKey(t *testing.T) {
	db, _, mw := setupAuthMiddleware(t)
	u := createUser(t, db, "alice@example.com")

	key, keyHash, display, err := auth.NewAPIKey()
	if err != nil {
		t.Fatalf("new api key: %v", err)
	}
	ks := store.NewAPIKeyStore(db)
	k, err := ks.Create(u.ID, keyHash, display, "ci", nil, nil)
	if err != nil {
		t.Fatalf("store key: %v", err)
	}
	if _, err := ks.Revoke(k.ID, u.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-API-Key", key)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("revoked key status = %d, want 401", rec.Code)
	}
}

func TestRequireAdminAllowed(t *testing.T) {
	ctx := auth.WithAuth(context.Background(), auth.AuthContext{Role: "admin"})
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequireAdminForbidden(t *testing.T) {
	ctx := auth.WithAuth(context.Background(), auth.AuthContext{Role: "customer"})
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRequireScope(t *testing.T) {
	allowed := auth.WithAuth(context.Background(), auth.AuthContext{Via: "api_key", Scopes: []string{model.ScopeSync}})
	denied := auth.WithAuth(context.Background(), auth.AuthContext{Via: "api_key", Scopes: []string{model.ScopeRead}})

	handler := RequireScope(model.ScopeSync)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil).WithContext(allowed))
	if rec.Code != http.StatusOK {
		t.Errorf("scoped key status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil).WithContext(denied))
	if rec.Code != http.StatusForbidden {
		t.Errorf("unscoped key status = %d, want 403", rec.Code)
	}
}
