package auth

import (
	"strings"
	"testing"
	"time"
)

func TestMintAndVerify(t *testing.T) {
	ti := NewTokenIssuer("test-secret")
	now := time.Now()

	token, err := ti.Mint(42, "parent@example.com", "customer", now)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	userID, claims, err := ti.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != 42 {
		t.Errorf("userID = %d, want 42", userID)
	}
	if claims.Email != "parent@example.com" {
		t.Errorf("Email = %q", claims.Email)
	}
	if claims.Role != "customer" {
		t.Errorf("Role = %q", claims.Role)
	}
}

func TestVerifyExpired(t *testing.T) {
	ti := NewTokenIssuer("test-secret")
	token, err := ti.Mint(1, "a@b.com", "customer", time.Now().Add(-2*AccessTokenTTL))
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, _, err := ti.Verify(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret-a").Mint(1, "a@b.com", "customer", time.Now())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, _, err := NewTokenIssuer("secret-b").Verify(token); err == nil {
		t.Error("expected error for token signed with wrong secret")
	}
}

func TestVerifyGarbage(t *testing.T) {
	if _, _, err := NewTokenIssuer("s").Verify("not-a-token"); err == nil {
		t.Error("expected error for malformed token")
	}
}

func TestOpaqueTokenAndHash(t *testing.T) {
	a, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken: %v", err)
	}
	b, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken: %v", err)
	}
	if a == b {
		t.Error("two opaque tokens should differ")
	}
	if len(a) != 64 {
		t.Errorf("token length = %d, want 64", len(a))
	}
	if HashToken(a) == a {
		t.Error("hash should differ from plaintext")
	}
	if HashToken(a) != HashToken(a) {
		t.Error("hash should be deterministic")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse 1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "correct horse 1") {
		t.Error("correct password should verify")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("wrong password should not verify")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"abc12345", false},
		{"short1", true},
		{"allletters", true},
		{"12345678", true},
		{"", true},
	}
	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePassword(%q) err = %v, wantErr %v", tt.password, err, tt.wantErr)
		}
	}
}

func TestNewAPIKey(t *testing.T) {
	key, hash, display, err := NewAPIKey()
	if err != nil {
		t.Fatalf("NewAPIKey: %v", err)
	}
	if !strings.HasPrefix(key, APIKeyPrefix) {
		t.Errorf("key %q missing prefix", key)
	}
	if !ValidAPIKeyShape(key) {
		t.Errorf("generated key %q should pass shape check", key)
	}
	if hash != HashToken(key) {
		t.Error("returned hash should match HashToken of the key")
	}
	if !strings.HasPrefix(key, display) {
		t.Errorf("display prefix %q should prefix key", display)
	}
	if ValidAPIKeyShape("sk_live_nope") {
		t.Error("foreign key shape should fail")
	}
}
