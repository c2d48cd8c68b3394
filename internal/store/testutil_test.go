package store

import (
	"database/sql"
	"testing"

	"github.com/dukerupert/homeguard/internal/auth"
	"github.com/dukerupert/homeguard/internal/database"
	"github.com/dukerupert/homeguard/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, email string) *model.User {
	t.Helper()
	hash, err := auth.HashPassword("testpass1")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u, err := NewUserStore(db).Create(email, hash, "Test", "Parent", model.RoleCustomer)
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return u
}

func createTestInstallation(t *testing.T, db *sql.DB, userID int64, deviceID string) *model.Installation {
	t.Helper()
	inst, _, err := NewInstallationStore(db).Register(userID, nil, deviceID, "Kids PC", model.PlatformWindows, "10.0", "1.2.0")
	if err != nil {
		t.Fatalf("create test installation: %v", err)
	}
	return inst
}
