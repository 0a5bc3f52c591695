package workers

import (
	"context"
	"testing"
	"time"

	"agencycrm/internal/platform/config"
	"agencycrm/internal/platform/database"
	"agencycrm/internal/platform/models"
	"agencycrm/internal/platform/repositories"
)

func TestInviteExpiry_RunOnce(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{URL: ":memory:", MaxConnections: 1})
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	repos := repositories.New(db)
	ctx := context.Background()
	if err := repos.Workspaces.Create(ctx, &models.Workspace{ID: "ws_1", Name: "Acme", OwnerUserID: "usr_1", IsActive: true}); err != nil {
		t.Fatalf("Failed to create workspace: %v", err)
	}

	invites := []*models.TeamInvite{
		{ID: "inv_old", Email: "old@example.com", Token: "tok_old", Status: models.InviteStatusPending, ExpiresAt: 100},
		{ID: "inv_new", Email: "new@example.com", Token: "tok_new", Status: models.InviteStatusPending, ExpiresAt: 5000},
		{ID: "inv_done", Email: "done@example.com", Token: "tok_done", Status: models.InviteStatusAccepted, ExpiresAt: 100},
	}
	for _, inv := range invites {
		inv.WorkspaceID = "ws_1"
		inv.Role = "editor"
		inv.InvitedByID = "usr_1"
		if err := repos.Invites.Create(ctx, inv); err != nil {
			t.Fatalf("Failed to create invite %s: %v", inv.ID, err)
		}
	}

	var transitions []string
	w := NewInviteExpiry(repos.Invites, func(to string) { transitions = append(transitions, to) })
	w.now = func() time.Time { return time.Unix(1000, 0) }

	n, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 expired invite, got %d", n)
	}
	if len(transitions) != 1 || transitions[0] != "expired" {
		t.Errorf("Expected one expired transition, got %v", transitions)
	}

	tests := map[string]string{
		"tok_old":  models.InviteStatusExpired,
		"tok_new":  models.InviteStatusPending,
		"tok_done": models.InviteStatusAccepted,
	}
	for token, want := range tests {
		inv, err := repos.Invites.GetByToken(ctx, token)
		if err != nil || inv == nil {
			t.Fatalf("GetByToken(%s) = %v, %v", token, inv, err)
		}
		if inv.Status != want {
			t.Errorf("%s: expected status %s, got %s", token, want, inv.Status)
		}
	}

	// a second sweep has nothing left to do
	if n, _ := w.RunOnce(ctx); n != 0 {
		t.Errorf("Expected idempotent sweep, got %d", n)
	}
}
