package repositories

import (
	"context"
	"database/sql"

	"agencycrm/internal/platform/models"
)

type InviteRepository struct {
	db DBTX
}

const inviteColumns = `id, workspace_id, email, role, token, status, invited_by_id, expires_at, accepted_at, accepted_user_id, created_at, updated_at`

func (r *InviteRepository) Create(ctx context.Context, invite *models.TeamInvite) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO team_invites (id, workspace_id, email, role, token, status, invited_by_id, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, invite.ID, invite.WorkspaceID, invite.Email, invite.Role, invite.Token, invite.Status, invite.InvitedByID, invite.ExpiresAt, invite.CreatedAt, invite.UpdatedAt)
	return uniqueErr(err)
}

func (r *InviteRepository) GetByToken(ctx context.Context, token string) (*models.TeamInvite, error) {
	return scanInvite(r.db.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM team_invites WHERE token = ?`, token))
}

func (r *InviteRepository) GetByID(ctx context.Context, workspaceID, id string) (*models.TeamInvite, error) {
	return scanInvite(r.db.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM team_invites WHERE id = ? AND workspace_id = ?`, id, workspaceID))
}

// RevokePending revokes every pending invite for (email, workspace).
func (r *InviteRepository) RevokePending(ctx context.Context, email, workspaceID string, timestamp int64) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `
		UPDATE team_invites SET status = 'revoked', updated_at = ?
		WHERE email = ? AND workspace_id = ? AND status = 'pending'
	`, timestamp, email, workspaceID))
}

func (r *InviteRepository) RevokeAllPendingForWorkspace(ctx context.Context, workspaceID string, timestamp int64) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `
		UPDATE team_invites SET status = 'revoked', updated_at = ? WHERE workspace_id = ? AND status = 'pending'
	`, timestamp, workspaceID))
}

// Revoke moves one pending invite to revoked. It reports whether the invite
// was still pending.
func (r *InviteRepository) Revoke(ctx context.Context, workspaceID, id string, timestamp int64) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx, `
		UPDATE team_invites SET status = 'revoked', updated_at = ?
		WHERE id = ? AND workspace_id = ? AND status = 'pending'
	`, timestamp, id, workspaceID))
	return n == 1, err
}

// MarkAccepted consumes the invite if it is still pending and unexpired at
// timestamp. It reports whether this call consumed it.
func (r *InviteRepository) MarkAccepted(ctx context.Context, id, userID string, timestamp int64) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx, `
		UPDATE team_invites SET status = 'accepted', accepted_at = ?, accepted_user_id = ?, updated_at = ?
		WHERE id = ? AND status = 'pending' AND expires_at > ?
	`, timestamp, userID, timestamp, id, timestamp))
	return n == 1, err
}

// MarkExpired flips a pending invite whose expiry has passed at timestamp.
func (r *InviteRepository) MarkExpired(ctx context.Context, id string, timestamp int64) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx, `
		UPDATE team_invites SET status = 'expired', updated_at = ?
		WHERE id = ? AND status = 'pending' AND expires_at <= ?
	`, timestamp, id, timestamp))
	return n == 1, err
}

// ExpireOverdue flips every pending invite whose expiry has passed at
// timestamp and returns how many changed.
func (r *InviteRepository) ExpireOverdue(ctx context.Context, timestamp int64) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `
		UPDATE team_invites SET status = 'expired', updated_at = ?
		WHERE status = 'pending' AND expires_at <= ?
	`, timestamp, timestamp))
}

// ListByWorkspace lists invites of a workspace, newest first, filtered by
// their status as of now. A pending invite past its expiry counts as expired.
// An empty status lists everything.
func (r *InviteRepository) ListByWorkspace(ctx context.Context, workspaceID, status string, now int64, limit, offset int) ([]*models.TeamInvite, error) {
	query := `SELECT ` + inviteColumns + ` FROM team_invites WHERE workspace_id = ?`
	args := []interface{}{workspaceID}
	switch status {
	case "":
	case models.InviteStatusPending:
		query += ` AND status = 'pending' AND expires_at > ?`
		args = append(args, now)
	case models.InviteStatusExpired:
		query += ` AND (status = 'expired' OR (status = 'pending' AND expires_at <= ?))`
		args = append(args, now)
	default:
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invites []*models.TeamInvite
	for rows.Next() {
		invite, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, invite)
	}
	return invites, rows.Err()
}

func scanInvite(s scanner) (*models.TeamInvite, error) {
	invite := &models.TeamInvite{}
	var acceptedAt sql.NullInt64
	var acceptedUserID sql.NullString
	err := s.Scan(&invite.ID, &invite.WorkspaceID, &invite.Email, &invite.Role, &invite.Token, &invite.Status, &invite.InvitedByID, &invite.ExpiresAt, &acceptedAt, &acceptedUserID, &invite.CreatedAt, &invite.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	invite.AcceptedAt = int64Ptr(acceptedAt)
	if acceptedUserID.Valid {
		id := acceptedUserID.String
		invite.AcceptedUserID = &id
	}
	return invite, nil
}
