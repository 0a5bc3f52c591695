package records

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"agencycrm/internal/engine/access"
	"agencycrm/internal/platform/models"
)

func validateProject(p *models.Project) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if p.BudgetAmount != nil && *p.BudgetAmount < 0 {
		return fmt.Errorf("%w: budget_amount must not be negative", ErrInvalidInput)
	}
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	return nil
}

func (s *Service) CreateProject(ctx context.Context, a *access.Access, payload Payload) (access.Record, error) {
	if err := checkWrite(a, access.EntityProject, access.ProjectCreate, payload); err != nil {
		return nil, err
	}

	p, err := merge(&models.Project{}, payload)
	if err != nil {
		return nil, err
	}
	if err := validateProject(p); err != nil {
		return nil, err
	}

	now := s.now().Unix()
	p.ID = "prj_" + uuid.NewString()
	p.WorkspaceID = a.WorkspaceID()
	p.Status = models.RecordStatusActive
	p.CreatedBy = a.Principal.UserID
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.repos.Projects.Create(ctx, p); err != nil {
		return nil, err
	}
	s.audit(ctx, a, "project.created", "project", p.ID)
	return sanitize(access.EntityProject, p, a.Role)
}

func (s *Service) getProject(ctx context.Context, a *access.Access, id string) (*models.Project, error) {
	p, err := s.repos.Projects.Get(ctx, a.WorkspaceID(), id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *Service) GetProject(ctx context.Context, a *access.Access, id string) (access.Record, error) {
	if err := a.Require(access.ProjectView); err != nil {
		return nil, err
	}
	p, err := s.getProject(ctx, a, id)
	if err != nil {
		return nil, err
	}
	return sanitize(access.EntityProject, p, a.Role)
}

// ListProjects lists and searches projects. Status defaults to active; "all"
// includes archived ones.
func (s *Service) ListProjects(ctx context.Context, a *access.Access, params ListParams) ([]access.Record, error) {
	if err := a.Require(access.ProjectView); err != nil {
		return nil, err
	}
	filter, err := params.filter()
	if err != nil {
		return nil, err
	}
	projects, err := s.repos.Projects.List(ctx, a.WorkspaceID(), filter)
	if err != nil {
		return nil, err
	}

	out := make([]access.Record, 0, len(projects))
	for _, p := range projects {
		rec, err := sanitize(access.EntityProject, p, a.Role)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Service) UpdateProject(ctx context.Context, a *access.Access, id string, payload Payload) (access.Record, error) {
	if err := checkWrite(a, access.EntityProject, access.ProjectEdit, payload); err != nil {
		return nil, err
	}

	current, err := s.getProject(ctx, a, id)
	if err != nil {
		return nil, err
	}
	p, err := merge(current, payload)
	if err != nil {
		return nil, err
	}
	if err := validateProject(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now().Unix()

	if err := s.repos.Projects.Update(ctx, p); err != nil {
		return nil, err
	}
	s.audit(ctx, a, "project.updated", "project", p.ID)
	return sanitize(access.EntityProject, p, a.Role)
}

func (s *Service) setProjectStatus(ctx context.Context, a *access.Access, id, status string, perm access.Permission) (access.Record, error) {
	if err := a.Require(perm); err != nil {
		return nil, err
	}
	p, err := s.getProject(ctx, a, id)
	if err != nil {
		return nil, err
	}
	p.Status = status
	p.UpdatedAt = s.now().Unix()
	if err := s.repos.Projects.Update(ctx, p); err != nil {
		return nil, err
	}
	s.audit(ctx, a, "project."+status, "project", p.ID)
	return sanitize(access.EntityProject, p, a.Role)
}

func (s *Service) ArchiveProject(ctx context.Context, a *access.Access, id string) (access.Record, error) {
	return s.setProjectStatus(ctx, a, id, models.RecordStatusArchived, access.ProjectArchive)
}

func (s *Service) RestoreProject(ctx context.Context, a *access.Access, id string) (access.Record, error) {
	return s.setProjectStatus(ctx, a, id, models.RecordStatusActive, access.ProjectRestore)
}

func (s *Service) DeleteProject(ctx context.Context, a *access.Access, id string) error {
	if err := a.Require(access.ProjectDelete); err != nil {
		return err
	}
	ok, err := s.repos.Projects.Delete(ctx, a.WorkspaceID(), id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	s.audit(ctx, a, "project.deleted", "project", id)
	return nil
}
