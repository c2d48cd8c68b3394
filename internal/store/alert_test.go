package store

import (
	"testing"

	"github.com/dukerupert/homeguard/internal/model"
)

func setupAlertTest(t *testing.T) (*AlertStore, int64, int64) {
	t.Helper()
	db := openTestDB(t)
	u := createTestUser(t, db, "alice@example.com")
	inst := createTestInstallation(t, db, u.ID, "dev-abc")
	return NewAlertStore(db), u.ID, inst.ID
}

func mustAlert(t *testing.T, as *AlertStore, userID, instID int64, alertType, severity string) *model.Alert {
	t.Helper()
	a, err := as.Create(&model.Alert{
		InstallationID: instID,
		UserID:         userID,
		Type:           alertType,
		Severity:       severity,
		Title:          "t",
		Message:        "m",
	})
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}
	return a
}

func TestAlertListFilters(t *testing.T) {
	as, userID, instID := setupAlertTest(t)

	mustAlert(t, as, userID, instID, model.AlertBlockedSite, model.SeverityInfo)
	mustAlert(t, as, userID, instID, model.AlertTamperAttempt, model.SeverityCritical)

	all, err := as.ListByUser(userID, "", "", false, 50, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d alerts, want 2", len(all))
	}

	tamper, err := as.ListByUser(userID, model.AlertTamperAttempt, "", false, 50, 0)
	if err != nil {
		t.Fatalf("list by type: %v", err)
	}
	if len(tamper) != 1 || tamper[0].Type != model.AlertTamperAttempt {
		t.Errorf("type filter returned %d rows", len(tamper))
	}

	critical, err := as.ListByUser(userID, "", model.SeverityCritical, false, 50, 0)
	if err != nil {
		t.Fatalf("list by severity: %v", err)
	}
	if len(critical) != 1 {
		t.Errorf("severity filter returned %d rows", len(critical))
	}
}

func TestAlertReadAndDismiss(t *testing.T) {
	as, userID, instID := setupAlertTest(t)
	a := mustAlert(t, as, userID, instID, model.AlertBlockedApp, model.SeverityWarning)

	n, err := as.CountUnread(userID)
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if n != 1 {
		t.Errorf("unread = %d, want 1", n)
	}

	ok, err := as.MarkRead(a.ID, userID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !ok {
		t.Error("owner mark read should succeed")
	}

	// Someone else's id does not touch the row.
	ok, err = as.MarkRead(a.ID, 999)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if ok {
		t.Error("non-owner mark read should report false")
	}

	ok, err = as.Dismiss(a.ID, userID)
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if !ok {
		t.Error("owner dismiss should succeed")
	}

	listed, err := as.ListByUser(userID, "", "", false, 50, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 0 {
		t.Error("dismissed alerts should drop out of listings")
	}
}

func TestAlertUnreadOnly(t *testing.T) {
	as, userID, instID := setupAlertTest(t)
	a := mustAlert(t, as, userID, instID, model.AlertBlockedSite, model.SeverityInfo)
	mustAlert(t, as, userID, instID, model.AlertBlockedSite, model.SeverityInfo)

	if _, err := as.MarkRead(a.ID, userID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	unread, err := as.ListByUser(userID, "", "", true, 50, 0)
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(unread) != 1 {
		t.Errorf("unread list = %d rows, want 1", len(unread))
	}

	n, err := as.MarkAllRead(userID)
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if n != 1 {
		t.Errorf("mark all read touched %d rows, want 1", n)
	}
}
