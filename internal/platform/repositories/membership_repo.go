package repositories

import (
	"context"
	"database/sql"

	"agencycrm/internal/platform/models"
)

type MembershipRepository struct {
	db DBTX
}

// ownersOf counts the active owners of the workspace named by the SQL
// expression ws: owner memberships held by active users plus the direct owner
// when that user is still active.
func ownersOf(ws string) string {
	return `(
	(SELECT COUNT(*) FROM workspace_memberships om JOIN users ou ON ou.id = om.user_id
		WHERE om.workspace_id = ` + ws + ` AND om.role = 'owner' AND om.is_active = 1 AND ou.is_active = 1)
	+ (SELECT COUNT(*) FROM workspaces ow JOIN users du ON du.id = ow.owner_user_id
		WHERE ow.id = ` + ws + ` AND du.is_active = 1)
)`
}

// ownerCount takes the workspace id twice.
var ownerCount = ownersOf("?")

// Get returns the membership row for (userID, workspaceID), active or not.
func (r *MembershipRepository) Get(ctx context.Context, userID, workspaceID string) (*models.WorkspaceMembership, error) {
	m := &models.WorkspaceMembership{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, workspace_id, role, is_active, invited_by_id, created_at, updated_at
		FROM workspace_memberships WHERE user_id = ? AND workspace_id = ?
	`, userID, workspaceID).Scan(&m.ID, &m.UserID, &m.WorkspaceID, &m.Role, &m.IsActive, &m.InvitedByID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// Upsert creates the membership or reactivates the existing row with the new
// role. An active owner row keeps its owner role.
func (r *MembershipRepository) Upsert(ctx context.Context, m *models.WorkspaceMembership) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workspace_memberships (id, user_id, workspace_id, role, is_active, invited_by_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (user_id, workspace_id) DO UPDATE SET
			role = CASE
				WHEN workspace_memberships.is_active = 1 AND workspace_memberships.role = 'owner' THEN 'owner'
				ELSE excluded.role
			END,
			is_active = 1,
			invited_by_id = excluded.invited_by_id,
			updated_at = excluded.updated_at
	`, m.ID, m.UserID, m.WorkspaceID, m.Role, m.InvitedByID, m.CreatedAt, m.UpdatedAt)
	return err
}

// Deactivate marks the active membership inactive unless it is the last
// active owner of the workspace. It reports whether a row changed.
func (r *MembershipRepository) Deactivate(ctx context.Context, userID, workspaceID string, timestamp int64) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx, `
		UPDATE workspace_memberships SET is_active = 0, updated_at = ?
		WHERE user_id = ? AND workspace_id = ? AND is_active = 1
		  AND (role <> 'owner' OR `+ownerCount+` > 1)
	`, timestamp, userID, workspaceID, workspaceID, workspaceID))
	return n == 1, err
}

// UpdateRole changes the role of an active membership. Demoting the last
// active owner changes nothing. It reports whether a row changed.
func (r *MembershipRepository) UpdateRole(ctx context.Context, userID, workspaceID, role string, timestamp int64) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx, `
		UPDATE workspace_memberships SET role = ?, updated_at = ?
		WHERE user_id = ? AND workspace_id = ? AND is_active = 1
		  AND (role <> 'owner' OR ? = 'owner' OR `+ownerCount+` > 1)
	`, role, timestamp, userID, workspaceID, role, workspaceID, workspaceID))
	return n == 1, err
}

func (r *MembershipRepository) DeactivateAllForWorkspace(ctx context.Context, workspaceID string, timestamp int64) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `
		UPDATE workspace_memberships SET is_active = 0, updated_at = ? WHERE workspace_id = ? AND is_active = 1
	`, timestamp, workspaceID))
}

// OwnerCount returns the number of active owners of a workspace.
func (r *MembershipRepository) OwnerCount(ctx context.Context, workspaceID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT `+ownerCount, workspaceID, workspaceID).Scan(&n)
	return n, err
}

// SoleOwnerOf lists the active workspaces, other than the user's own, where
// the user's owner membership is the only active owner left.
func (r *MembershipRepository) SoleOwnerOf(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.workspace_id FROM workspace_memberships m JOIN workspaces w ON w.id = m.workspace_id
		WHERE m.user_id = ? AND m.role = 'owner' AND m.is_active = 1
		  AND w.is_active = 1 AND w.owner_user_id <> ?
		  AND `+ownersOf("m.workspace_id")+` = 1
		ORDER BY m.workspace_id
	`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListMembers returns active memberships of a workspace joined with their users.
func (r *MembershipRepository) ListMembers(ctx context.Context, workspaceID string) ([]*models.Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.user_id, u.email, u.name, m.role, m.is_active
		FROM workspace_memberships m JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id = ? AND m.is_active = 1
		ORDER BY m.created_at ASC
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		m := &models.Member{}
		if err := rows.Scan(&m.UserID, &m.Email, &m.Name, &m.Role, &m.IsActive); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListWorkspacesForUser returns the active workspaces the user reaches through
// an active membership, with the membership role.
func (r *MembershipRepository) ListWorkspacesForUser(ctx context.Context, userID string) ([]*models.Workspace, []string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.logo_url, w.owner_user_id, w.is_active, w.created_at, w.updated_at, m.role
		FROM workspace_memberships m JOIN workspaces w ON w.id = m.workspace_id
		WHERE m.user_id = ? AND m.is_active = 1 AND w.is_active = 1
		ORDER BY w.name ASC
	`, userID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var workspaces []*models.Workspace
	var roles []string
	for rows.Next() {
		ws := &models.Workspace{}
		var role string
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.LogoURL, &ws.OwnerUserID, &ws.IsActive, &ws.CreatedAt, &ws.UpdatedAt, &role); err != nil {
			return nil, nil, err
		}
		workspaces = append(workspaces, ws)
		roles = append(roles, role)
	}
	return workspaces, roles, rows.Err()
}
