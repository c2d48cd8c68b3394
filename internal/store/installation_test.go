package store

import (
	"testing"
	"time"

	"github.com/dukerupert/homeguard/internal/model"
)

func TestRegisterNewDevice(t *testing.T) {
	db := openTestDB(t)
	u := createTestUser(t, db, "alice@example.com")
	is := NewInstallationStore(db)

	inst, created, err := is.Register(u.ID, nil, "dev-abc", "Kids PC", model.PlatformWindows, "10.0", "1.0.0")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !created {
		t.Error("first register should create")
	}
	if inst.PublicID == "" {
		t.Error("public id should be minted")
	}
	if inst.Status != model.InstallStatusActive {
		t.Errorf("status = %q", inst.Status)
	}
}

func TestRegisterRebindsExistingDevice(t *testing.T) {
	db := openTestDB(t)
	a := createTestUser(t, db, "a@example.com")
	b := createTestUser(t, db, "b@example.com")
	is := NewInstallationStore(db)

	first, _, err := is.Register(a.ID, nil, "dev-abc", "Kids PC", model.PlatformWindows, "10", "1.0.0")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// The same hardware registered by another account moves to it.
	second, created, err := is.Register(b.ID, nil, "dev-abc", "Kids PC", model.PlatformWindows, "11", "1.1.0")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if created {
		t.Error("re-register should not create a new row")
	}
	if second.ID != first.ID {
		t.Error("re-register should reuse the row")
	}
	if second.UserID != b.ID {
		t.Error("last registerer should own the device")
	}
	if second.AppVersion != "1.1.0" {
		t.Errorf("app version = %q", second.AppVersion)
	}
}

func TestRegisterRevivesUninstalled(t *testing.T) {
	db := openTestDB(t)
	u := createTestUser(t, db, "alice@example.com")
	is := NewInstallationStore(db)

	if _, _, err := is.Register(u.ID, nil, "dev-abc", "PC", model.PlatformWindows, "10", "1.0.0"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := is.Unregister("dev-abc", u.ID); err != nil {
		t.Fatalf("unregister: %v", err)
	}

	inst, _, err := is.Register(u.ID, nil, "dev-abc", "PC", model.PlatformWindows, "10", "1.0.0")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if inst.Status != model.InstallStatusActive {
		t.Errorf("revived status = %q, want active", inst.Status)
	}
}

func TestHeartbeatOwnership(t *testing.T) {
	db := openTestDB(t)
	a := createTestUser(t, db, "a@example.com")
	b := createTestUser(t, db, "b@example.com")
	is := NewInstallationStore(db)

	if _, _, err := is.Register(a.ID, nil, "dev-abc", "PC", model.PlatformWindows, "10", "1.0.0"); err != nil {
		t.Fatalf("register: %v", err)
	}

	inst, err := is.Heartbeat("dev-abc", a.ID, "10.1", "1.0.1")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if inst == nil {
		t.Fatal("owner heartbeat should find the device")
	}
	if inst.OSVersion != "10.1" {
		t.Errorf("os version = %q", inst.OSVersion)
	}

	// A heartbeat from someone else's account reads as unknown device.
	other, err := is.Heartbeat("dev-abc", b.ID, "10", "1.0.0")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if other != nil {
		t.Error("non-owner heartbeat should return nil")
	}
}

func TestUnregisterRetainsRow(t *testing.T) {
	db := openTestDB(t)
	u := createTestUser(t, db, "alice@example.com")
	is := NewInstallationStore(db)

	if _, _, err := is.Register(u.ID, nil, "dev-abc", "PC", model.PlatformWindows, "10", "1.0.0"); err != nil {
		t.Fatalf("register: %v", err)
	}

	ok, err := is.Unregister("dev-abc", u.ID)
	if err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if !ok {
		t.Error("owner unregister should succeed")
	}

	inst, err := is.GetByDeviceID("dev-abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if inst == nil {
		t.Fatal("row should be retained")
	}
	if inst.Status != model.InstallStatusUninstalled {
		t.Errorf("status = %q", inst.Status)
	}

	// Already uninstalled, so a repeated call finds nothing to change.
	ok, err = is.Unregister("dev-abc", u.ID)
	if err != nil {
		t.Fatalf("unregister again: %v", err)
	}
	if ok {
		t.Error("repeated unregister should report false")
	}

	ok, err = is.Unregister("dev-unknown", u.ID)
	if err != nil {
		t.Fatalf("unregister unknown: %v", err)
	}
	if ok {
		t.Error("unknown device unregister should report false")
	}
}

func TestGetForUserHidesOtherOwners(t *testing.T) {
	db := openTestDB(t)
	a := createTestUser(t, db, "a@example.com")
	b := createTestUser(t, db, "b@example.com")
	is := NewInstallationStore(db)

	inst, _, err := is.Register(a.ID, nil, "dev-abc", "PC", model.PlatformWindows, "10", "1.0.0")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := is.GetForUser(inst.PublicID, b.ID)
	if err != nil {
		t.Fatalf("get for user: %v", err)
	}
	if got != nil {
		t.Error("another user's device should read as not found")
	}
}

func TestSetBlocked(t *testing.T) {
	db := openTestDB(t)
	u := createTestUser(t, db, "alice@example.com")
	is := NewInstallationStore(db)

	inst, _, err := is.Register(u.ID, nil, "dev-abc", "PC", model.PlatformWindows, "10", "1.0.0")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	reason := "chargeback"
	if err := is.SetBlocked(inst.ID, true, &reason); err != nil {
		t.Fatalf("block: %v", err)
	}
	got, err := is.GetByID(inst.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsBlocked || got.BlockedReason == nil || *got.BlockedReason != "chargeback" {
		t.Error("block flag and reason should be stored")
	}

	if err := is.SetBlocked(inst.ID, false, nil); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	got, err = is.GetByID(inst.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.IsBlocked || got.BlockedReason != nil {
		t.Error("unblock should clear flag and reason")
	}
}

func TestOnline(t *testing.T) {
	now := time.Now()

	fresh := &model.Installation{Status: model.InstallStatusActive, LastSeen: now.Add(-time.Hour)}
	if !Online(fresh, now) {
		t.Error("recently seen active device should be online")
	}

	stale := &model.Installation{Status: model.InstallStatusActive, LastSeen: now.Add(-8 * 24 * time.Hour)}
	if Online(stale, now) {
		t.Error("device silent past the window should be offline")
	}

	uninstalled := &model.Installation{Status: model.InstallStatusUninstalled, LastSeen: now}
	if Online(uninstalled, now) {
		t.Error("uninstalled device should be offline regardless of last_seen")
	}
}
