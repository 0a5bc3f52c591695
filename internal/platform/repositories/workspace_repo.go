package repositories

import (
	"context"
	"database/sql"

	"agencycrm/internal/platform/models"
)

type WorkspaceRepository struct {
	db DBTX
}

func (r *WorkspaceRepository) Create(ctx context.Context, ws *models.Workspace) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, logo_url, owner_user_id, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ws.ID, ws.Name, ws.LogoURL, ws.OwnerUserID, ws.IsActive, ws.CreatedAt, ws.UpdatedAt)
	return err
}

func (r *WorkspaceRepository) GetByID(ctx context.Context, id string) (*models.Workspace, error) {
	ws := &models.Workspace{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, logo_url, owner_user_id, is_active, created_at, updated_at
		FROM workspaces WHERE id = ?
	`, id).Scan(&ws.ID, &ws.Name, &ws.LogoURL, &ws.OwnerUserID, &ws.IsActive, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return ws, nil
}

func (r *WorkspaceRepository) Update(ctx context.Context, ws *models.Workspace) error {
	_, err := r.db.ExecContext(ctx, `UPDATE workspaces SET name = ?, logo_url = ?, updated_at = ? WHERE id = ?`,
		ws.Name, ws.LogoURL, ws.UpdatedAt, ws.ID)
	return err
}

// Deactivate reports whether the workspace was active before the call.
func (r *WorkspaceRepository) Deactivate(ctx context.Context, id string, timestamp int64) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx, `UPDATE workspaces SET is_active = 0, updated_at = ? WHERE id = ? AND is_active = 1`, timestamp, id))
	return n == 1, err
}
