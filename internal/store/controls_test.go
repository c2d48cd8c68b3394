package store

import (
	"testing"

	"github.com/dukerupert/homeguard/internal/model"
)

func TestScreenTimeUpsert(t *testing.T) {
	db := openTestDB(t)
	u := createTestUser(t, db, "alice@example.com")
	inst := createTestInstallation(t, db, u.ID, "dev-abc")
	ss := NewScreenTimeStore(db)

	none, err := ss.GetByInstallation(inst.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if none != nil {
		t.Error("no config should exist yet")
	}

	start := "08:00"
	end := "20:00"
	c, err := ss.Upsert(&model.ScreenTimeConfig{
		InstallationID: inst.ID,
		IsEnabled:      true,
		MondayLimit:    120,
		SaturdayLimit:  240,
		AllowedStart:   &start,
		AllowedEnd:     &end,
		GracePeriod:    5,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if c.MondayLimit != 120 || c.SaturdayLimit != 240 {
		t.Errorf("limits = %d %d", c.MondayLimit, c.SaturdayLimit)
	}
	if c.AllowedStart == nil || *c.AllowedStart != "08:00" {
		t.Error("allowed start should round-trip")
	}

	// A second upsert replaces in place.
	c2, err := ss.Upsert(&model.ScreenTimeConfig{
		InstallationID: inst.ID,
		IsEnabled:      false,
		MondayLimit:    60,
		GracePeriod:    10,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if c2.ID != c.ID {
		t.Error("upsert should reuse the row")
	}
	if c2.MondayLimit != 60 || c2.IsEnabled {
		t.Error("second upsert should overwrite fields")
	}
	if c2.AllowedStart != nil {
		t.Error("omitted window should clear")
	}
}

func TestBlockedAppLifecycle(t *testing.T) {
	db := openTestDB(t)
	u := createTestUser(t, db, "alice@example.com")
	inst := createTestInstallation(t, db, u.ID, "dev-abc")
	bs := NewBlockedAppStore(db)

	game, err := bs.Create(&model.BlockedApp{
		InstallationID: inst.ID,
		AppName:        "Fortnite",
		AppIdentifier:  "com.epicgames.fortnite",
		Platform:       model.PlatformWindows,
		IsGame:         true,
		IsEnabled:      true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := bs.Create(&model.BlockedApp{
		InstallationID: inst.ID,
		AppName:        "Discord",
		AppIdentifier:  "com.discord",
		Platform:       model.PlatformWindows,
		IsEnabled:      false,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := bs.ListByInstallation(inst.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d apps, want 2", len(all))
	}

	enabled, err := bs.ListEnabledByInstallation(inst.ID)
	if err != nil {
		t.Fatalf("list enabled: %v", err)
	}
	if len(enabled) != 1 || enabled[0].AppName != "Fortnite" {
		t.Errorf("enabled apps = %d", len(enabled))
	}

	if err := bs.SetEnabled(game.ID, false); err != nil {
		t.Fatalf("set enabled: %v", err)
	}
	enabled, err = bs.ListEnabledByInstallation(inst.ID)
	if err != nil {
		t.Fatalf("list enabled: %v", err)
	}
	if len(enabled) != 0 {
		t.Error("disabled app should drop from enabled list")
	}

	if err := bs.Delete(game.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all, err = bs.ListByInstallation(inst.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("after delete got %d apps, want 1", len(all))
	}
}

func TestSettingsGetOrCreateAndUpdate(t *testing.T) {
	db := openTestDB(t)
	u := createTestUser(t, db, "alice@example.com")
	ss := NewSettingsStore(db)

	s, err := ss.GetOrCreate(u.ID)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if !s.EmailAlerts || !s.AlertTamperAttempts {
		t.Error("alert preferences should default on")
	}
	if s.Timezone != "UTC" {
		t.Errorf("timezone = %q, want UTC", s.Timezone)
	}

	s.EmailWeeklyReport = false
	s.Timezone = "America/Chicago"
	updated, err := ss.Update(s)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.EmailWeeklyReport {
		t.Error("weekly report should be off")
	}
	if updated.Timezone != "America/Chicago" {
		t.Errorf("timezone = %q", updated.Timezone)
	}
}
