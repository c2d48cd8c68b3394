package push

import (
	"encoding/base64"
	"testing"

	"github.com/dukerupert/homeguard/internal/model"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	if pub == "" {
		t.Error("expected non-empty public key")
	}
	if priv == "" {
		t.Error("expected non-empty private key")
	}

	// Public key should be base64url-encoded, 65 bytes uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	// Private key should be base64url-encoded, 32 bytes P-256 scalar
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	// A second generation should produce a different pair.
	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestConfigured(t *testing.T) {
	if NewService("", "").Configured() {
		t.Error("missing keys should read unconfigured")
	}
	if !NewService("pub", "priv").Configured() {
		t.Error("present keys should read configured")
	}
}

func TestWantsAlert(t *testing.T) {
	settings := &model.UserSettings{
		AlertBlockedSites:   true,
		AlertBlockedApps:    false,
		AlertScreenTime:     true,
		AlertTamperAttempts: false,
	}

	tests := []struct {
		alertType string
		want      bool
	}{
		{model.AlertBlockedSite, true},
		{model.AlertBlockedApp, false},
		{model.AlertNewAppInstalled, false},
		{model.AlertScreenTimeLimit, true},
		{model.AlertTamperAttempt, false},
		{model.AlertDeviceOffline, true},
	}
	for _, tt := range tests {
		if got := wantsAlert(settings, tt.alertType); got != tt.want {
			t.Errorf("wantsAlert(%q) = %v, want %v", tt.alertType, got, tt.want)
		}
	}
}
