package auth

import "context"

type contextKey struct{}

type AuthContext struct {
	UserID int64
	Email  string
	Role   string
	// Via records how the request authenticated: "jwt" or "api_key".
	Via    string
	Scopes []string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == "admin"
}

// HasScope reports whether the request carries the given API key scope.
// Requests authenticated with a JWT have every scope.
func HasScope(ctx context.Context, scope string) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	if ac.Via != "api_key" {
		return true
	}
	for _, s := range ac.Scopes {
		if s == scope || s == "admin" {
			return true
		}
	}
	return false
}
