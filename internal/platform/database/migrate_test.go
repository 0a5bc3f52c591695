package database

import (
	"testing"

	"agencycrm/internal/platform/config"
)

func TestMigrate_Idempotent(t *testing.T) {
	db, err := Open(config.DatabaseConfig{URL: ":memory:", MaxConnections: 1})
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	defer db.Close()

	if err := Migrate(db); err != nil {
		t.Fatalf("first Migrate() error = %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("Failed to count migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 applied migration, got %d", count)
	}

	for _, table := range []string{"users", "workspaces", "workspace_memberships", "team_invites", "projects", "invoices", "audit_logs"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist: %v", table, err)
		}
	}
}

func TestMigrate_OnePendingInvitePerEmail(t *testing.T) {
	db, err := Open(config.DatabaseConfig{URL: ":memory:", MaxConnections: 1})
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	defer db.Close()
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	insert := `INSERT INTO team_invites (id, workspace_id, email, role, token, status, invited_by_id, expires_at, created_at, updated_at)
		VALUES (?, 'ws_1', 'a@x.com', 'editor', ?, ?, 'usr_1', 0, 0, 0)`

	if _, err := db.Exec(insert, "inv_1", "tok_1", "pending"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := db.Exec(insert, "inv_2", "tok_2", "pending"); err == nil {
		t.Error("Expected unique violation for a second pending invite")
	}
	if _, err := db.Exec(insert, "inv_3", "tok_3", "revoked"); err != nil {
		t.Errorf("revoked invites must not collide: %v", err)
	}
}
