package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		UserID: 1,
		Email:  "parent@example.com",
		Role:   "admin",
		Via:    "jwt",
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UserID != 1 {
		t.Errorf("UserID = %d, want 1", got.UserID)
	}
	if got.Email != "parent@example.com" {
		t.Errorf("Email = %q", got.Email)
	}
	if got.Role != "admin" {
		t.Errorf("Role = %q, want %q", got.Role, "admin")
	}
	if got.Via != "jwt" {
		t.Errorf("Via = %q, want %q", got.Via, "jwt")
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestUserID(t *testing.T) {
	ac := AuthContext{UserID: 7}
	ctx := WithAuth(context.Background(), ac)
	if UserID(ctx) != 7 {
		t.Errorf("UserID = %d, want 7", UserID(ctx))
	}
}

func TestUserIDMissing(t *testing.T) {
	if UserID(context.Background()) != 0 {
		t.Error("expected 0 for missing context")
	}
}

func TestIsAdmin(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Role: "admin"})
	if !IsAdmin(ctx) {
		t.Error("expected IsAdmin = true for admin role")
	}
}

func TestIsAdminFalse(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Role: "customer"})
	if IsAdmin(ctx) {
		t.Error("expected IsAdmin = false for customer role")
	}
}

func TestIsAdminMissing(t *testing.T) {
	if IsAdmin(context.Background()) {
		t.Error("expected IsAdmin = false for missing context")
	}
}

func TestHasScope(t *testing.T) {
	tests := []struct {
		name  string
		ac    AuthContext
		scope string
		want  bool
	}{
		{"jwt has every scope", AuthContext{Via: "jwt"}, "write", true},
		{"api key with matching scope", AuthContext{Via: "api_key", Scopes: []string{"read"}}, "read", true},
		{"api key missing scope", AuthContext{Via: "api_key", Scopes: []string{"read"}}, "write", false},
		{"admin scope grants all", AuthContext{Via: "api_key", Scopes: []string{"admin"}}, "write", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithAuth(context.Background(), tt.ac)
			if got := HasScope(ctx, tt.scope); got != tt.want {
				t.Errorf("HasScope(%q) = %v, want %v", tt.scope, got, tt.want)
			}
		})
	}
}

func TestHasScopeMissingContext(t *testing.T) {
	if HasScope(context.Background(), "read") {
		t.Error("expected false for missing context")
	}
}
