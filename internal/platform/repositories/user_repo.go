package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
	"agencycrm/internal/platform/models"
)

type UserRepository struct {
	db DBTX
}

const userColumns = `id, workspace_id, email, password_hash, name, role, is_active, last_login_at, created_at, updated_at`

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, workspace_id, email, password_hash, name, role, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, user.ID, user.WorkspaceID, user.Email, user.PasswordHash, user.Name, user.Role, user.IsActive, user.CreatedAt, user.UpdatedAt)
	return uniqueErr(err)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email))
	return scanUser(row)
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID string, timestamp int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, timestamp, userID)
	return err
}

func (r *UserRepository) SetActive(ctx context.Context, userID string, active bool, timestamp int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`, active, timestamp, userID)
	return err
}

// scanUser returns nil, nil when the row does not exist.
func scanUser(s scanner) (*models.User, error) {
	user := &models.User{}
	var lastLogin sql.NullInt64
	err := s.Scan(&user.ID, &user.WorkspaceID, &user.Email, &user.PasswordHash, &user.Name, &user.Role, &user.IsActive, &lastLogin, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	user.LastLoginAt = int64Ptr(lastLogin)
	return user, nil
}

func uniqueErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrUniqueViolation
	}
	return err
}
