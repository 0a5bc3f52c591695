package repositories

import (
	"context"
	"database/sql"
	"strings"

	"agencycrm/internal/platform/models"
)

type ListFilter struct {
	Query  string
	Status string
	Limit  int
	Offset int
}

// containsPattern builds a LIKE pattern matching Query as a literal substring.
// Queries using it must declare ESCAPE '\'.
func (f ListFilter) containsPattern() string {
	return "%" + likeEscaper.Replace(f.Query) + "%"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 200 {
		return 50
	}
	return f.Limit
}

type ProjectRepository struct {
	db DBTX
}

const projectColumns = `id, workspace_id, name, description, client_name, status, budget_amount, currency, created_by, created_at, updated_at`

func (r *ProjectRepository) Create(ctx context.Context, p *models.Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.WorkspaceID, p.Name, p.Description, p.ClientName, p.Status, nullFloat64(p.BudgetAmount), p.Currency, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *ProjectRepository) Get(ctx context.Context, workspaceID, id string) (*models.Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ? AND workspace_id = ?`, id, workspaceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *ProjectRepository) List(ctx context.Context, workspaceID string, f ListFilter) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE workspace_id = ?`
	args := []interface{}{workspaceID}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Query != "" {
		query += ` AND (name LIKE ? ESCAPE '\' OR client_name LIKE ? ESCAPE '\')`
		like := f.containsPattern()
		args = append(args, like, like)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, f.limit(), f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *ProjectRepository) Update(ctx context.Context, p *models.Project) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE projects SET name = ?, description = ?, client_name = ?, status = ?, budget_amount = ?, currency = ?, updated_at = ?
		WHERE id = ? AND workspace_id = ?
	`, p.Name, p.Description, p.ClientName, p.Status, nullFloat64(p.BudgetAmount), p.Currency, p.UpdatedAt, p.ID, p.WorkspaceID)
	return err
}

func (r *ProjectRepository) Delete(ctx context.Context, workspaceID, id string) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ? AND workspace_id = ?`, id, workspaceID))
	return n == 1, err
}

func scanProject(s scanner) (*models.Project, error) {
	p := &models.Project{}
	var budget sql.NullFloat64
	if err := s.Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.Description, &p.ClientName, &p.Status, &budget, &p.Currency, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.BudgetAmount = float64Ptr(budget)
	return p, nil
}
