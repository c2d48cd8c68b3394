package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/homeguard/internal/auth"
	"github.com/dukerupert/homeguard/internal/store"
)

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// RequireAuth authenticates the request and populates AuthContext.
// Bearer JWTs and X-API-Key headers both work; the JWT wins when both
// are present. Deactivated accounts are rejected even with a valid
// credential.
func RequireAuth(issuer *auth.TokenIssuer, users *store.UserStore, keys *store.APIKeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
				token := strings.TrimPrefix(header, "Bearer ")
				userID, claims, err := issuer.Verify(token)
				if err != nil {
					writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
					return
				}
				u, err := users.GetByID(userID)
				if err != nil || u == nil || !u.IsActive {
					writeAuthError(w, http.StatusUnauthorized, "account unavailable")
					return
				}

				ctx := auth.WithAuth(r.Context(), auth.AuthContext{
					UserID: u.ID,
					Email:  u.Email,
					Role:   claims.Role,
					Via:    "jwt",
				})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
				if !auth.ValidAPIKeyShape(apiKey) {
					writeAuthError(w, http.StatusUnauthorized, "invalid api key")
					return
				}
				k, err := keys.GetByHash(auth.HashToken(apiKey))
				if err != nil || k == nil {
					writeAuthError(w, http.StatusUnauthorized, "invalid api key")
					return
				}
				if k.IsRevoked || k.Expired(time.Now().UTC()) {
					writeAuthError(w, http.StatusUnauthorized, "api key revoked or expired")
					return
				}
				u, err := users.GetByID(k.UserID)
				if err != nil || u == nil || !u.IsActive {
					writeAuthError(w, http.StatusUnauthorized, "account unavailable")
					return
				}
				_ = keys.TouchLastUsed(k.ID)

				ctx := auth.WithAuth(r.Context(), auth.AuthContext{
					UserID: u.ID,
					Email:  u.Email,
					Role:   u.Role,
					Via:    "api_key",
					Scopes: k.Scopes,
				})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			writeAuthError(w, http.StatusUnauthorized, "authentication required")
		})
	}
}

// OptionalAuth populates AuthContext from a Bearer token when one is
// presented but never rejects the request. Used on the download route,
// which serves anonymous website visitors and logged-in dashboard users
// alike; a bad or stale token is treated as anonymous.
func OptionalAuth(issuer *auth.TokenIssuer, users *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
				token := strings.TrimPrefix(header, "Bearer ")
				if userID, claims, err := issuer.Verify(token); err == nil {
					if u, err := users.GetByID(userID); err == nil && u != nil && u.IsActive {
						ctx := auth.WithAuth(r.Context(), auth.AuthContext{
							UserID: u.ID,
							Email:  u.Email,
							Role:   claims.Role,
							Via:    "jwt",
						})
						r = r.WithContext(ctx)
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin checks that the authenticated user has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeAuthError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireScope rejects API key requests missing the scope. JWT
// requests pass through.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.HasScope(r.Context(), scope) {
				writeAuthError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
