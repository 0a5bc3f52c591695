package workspaces

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"agencycrm/internal/engine/access"
	"agencycrm/internal/pkg/validator"
	"agencycrm/internal/platform/audit"
	"agencycrm/internal/platform/models"
	"agencycrm/internal/platform/repositories"
)

type Auditor interface {
	Log(ctx context.Context, e audit.Entry)
}

type nopAuditor struct{}

func (nopAuditor) Log(context.Context, audit.Entry) {}

type Service struct {
	repos   *repositories.Repositories
	auditor Auditor
	now     func() time.Time
}

func NewService(repos *repositories.Repositories, auditor Auditor) *Service {
	if auditor == nil {
		auditor = nopAuditor{}
	}
	return &Service{repos: repos, auditor: auditor, now: time.Now}
}

// Summary is a workspace as seen by one user.
type Summary struct {
	*models.Workspace
	Role     access.Role `json:"role"`
	IsDirect bool        `json:"is_direct"`
}

func (s *Service) Get(a *access.Access) *Summary {
	return &Summary{Workspace: a.Workspace, Role: a.Role, IsDirect: a.IsDirectOwner()}
}

// ListForUser returns the home workspace followed by every active workspace
// the principal reaches through an active membership.
func (s *Service) ListForUser(ctx context.Context, p *access.Principal) ([]*Summary, error) {
	out := []*Summary{}

	home, err := s.repos.Workspaces.GetByID(ctx, p.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if home != nil && home.IsActive {
		out = append(out, &Summary{Workspace: home, Role: access.RoleOwner, IsDirect: true})
	}

	workspaces, roles, err := s.repos.Memberships.ListWorkspacesForUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	for i, ws := range workspaces {
		if ws.ID == p.WorkspaceID {
			continue
		}
		role, err := access.ParseRole(roles[i])
		if err != nil {
			continue
		}
		out = append(out, &Summary{Workspace: ws, Role: role})
	}
	return out, nil
}

type UpdateRequest struct {
	Name    *string `json:"name"`
	LogoURL *string `json:"logo_url"`
}

func (s *Service) Update(ctx context.Context, a *access.Access, req UpdateRequest) (*models.Workspace, error) {
	if err := a.Require(access.WorkspaceUpdate); err != nil {
		return nil, err
	}

	ws := *a.Workspace
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		ws.Name = name
	}
	if req.LogoURL != nil {
		ws.LogoURL = strings.TrimSpace(*req.LogoURL)
	}
	ws.UpdatedAt = s.now().Unix()

	if err := s.repos.Workspaces.Update(ctx, &ws); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, audit.Entry{WorkspaceID: ws.ID, UserID: a.Principal.UserID, Action: "workspace.updated", ResourceType: "workspace", ResourceID: ws.ID})
	return &ws, nil
}

// Deactivate turns off the workspace, its memberships and its pending invites
// in one transaction. Only the user who created the workspace may do it.
func (s *Service) Deactivate(ctx context.Context, a *access.Access) error {
	if !a.IsDirectOwner() {
		return fmt.Errorf("%w: only the workspace creator can deactivate it", access.ErrForbidden)
	}
	if err := a.Require(access.WorkspaceDelete); err != nil {
		return err
	}

	now := s.now().Unix()
	wsID := a.WorkspaceID()
	var memberships, invites int64
	err := s.repos.InTx(ctx, func(tx *repositories.Repositories) error {
		var err error
		memberships, invites, err = deactivateWorkspace(ctx, tx, wsID, now)
		return err
	})
	if err != nil {
		return err
	}

	log.Info().Str("workspace_id", wsID).Int64("memberships", memberships).Int64("invites", invites).Msg("Workspace deactivated")
	s.auditor.Log(ctx, audit.Entry{
		WorkspaceID: wsID, UserID: a.Principal.UserID, Action: "workspace.deactivated", ResourceType: "workspace", ResourceID: wsID,
		Metadata: map[string]interface{}{"memberships": memberships, "invites_revoked": invites},
	})
	return nil
}

// deactivateWorkspace turns off a workspace with its memberships and pending
// invites. It must run inside a transaction.
func deactivateWorkspace(ctx context.Context, tx *repositories.Repositories, wsID string, now int64) (memberships, invites int64, err error) {
	if _, err = tx.Workspaces.Deactivate(ctx, wsID, now); err != nil {
		return 0, 0, err
	}
	if memberships, err = tx.Memberships.DeactivateAllForWorkspace(ctx, wsID, now); err != nil {
		return 0, 0, err
	}
	invites, err = tx.Invites.RevokeAllPendingForWorkspace(ctx, wsID, now)
	return memberships, invites, err
}

// Members lists the direct owner followed by the active memberships.
func (s *Service) Members(ctx context.Context, a *access.Access) ([]*models.Member, error) {
	if err := a.Require(access.MembersView); err != nil {
		return nil, err
	}

	members := []*models.Member{}
	owner, err := s.repos.Users.GetByID(ctx, a.Workspace.OwnerUserID)
	if err != nil {
		return nil, err
	}
	if owner != nil && owner.IsActive {
		members = append(members, &models.Member{UserID: owner.ID, Email: owner.Email, Name: owner.Name, Role: string(access.RoleOwner), IsDirect: true, IsActive: true})
	}

	rows, err := s.repos.Memberships.ListMembers(ctx, a.WorkspaceID())
	if err != nil {
		return nil, err
	}
	for _, m := range rows {
		if m.UserID == a.Workspace.OwnerUserID {
			continue
		}
		members = append(members, m)
	}
	return members, nil
}

// AddExistingUser grants an existing account a role in the workspace,
// reactivating an old membership if there is one.
func (s *Service) AddExistingUser(ctx context.Context, a *access.Access, email string, role access.Role) (*models.Member, error) {
	if err := a.Require(access.UsersManage); err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, access.ErrUnknownRole)
	}
	email, err := validator.NormalizeEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	user, err := s.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, ErrUserNotFound
	}
	if user.WorkspaceID == a.WorkspaceID() {
		return nil, ErrAlreadyMember
	}

	now := s.now().Unix()
	err = s.repos.Memberships.Upsert(ctx, &models.WorkspaceMembership{
		ID:          "mem_" + uuid.NewString(),
		UserID:      user.ID,
		WorkspaceID: a.WorkspaceID(),
		Role:        string(role),
		InvitedByID: a.Principal.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, err
	}

	m, err := s.repos.Memberships.Get(ctx, user.ID, a.WorkspaceID())
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, audit.Entry{WorkspaceID: a.WorkspaceID(), UserID: a.Principal.UserID, Action: "member.added", ResourceType: "member", ResourceID: user.ID, Metadata: map[string]interface{}{"role": m.Role}})
	return &models.Member{UserID: user.ID, Email: user.Email, Name: user.Name, Role: m.Role, IsActive: true}, nil
}

func (s *Service) memberFor(ctx context.Context, a *access.Access, userID string) error {
	if err := a.Require(access.UsersManage); err != nil {
		return err
	}
	if userID == a.Workspace.OwnerUserID {
		return ErrDirectOwner
	}
	m, err := s.repos.Memberships.Get(ctx, userID, a.WorkspaceID())
	if err != nil {
		return err
	}
	if m == nil || !m.IsActive {
		return ErrMemberNotFound
	}
	return nil
}

// UpdateRole changes a member's role. Demoting the last active owner fails
// with ErrLastOwner.
func (s *Service) UpdateRole(ctx context.Context, a *access.Access, userID string, role access.Role) error {
	if !role.IsValid() {
		return fmt.Errorf("%w: %v", ErrInvalidInput, access.ErrUnknownRole)
	}
	if err := s.memberFor(ctx, a, userID); err != nil {
		return err
	}

	ok, err := s.repos.Memberships.UpdateRole(ctx, userID, a.WorkspaceID(), string(role), s.now().Unix())
	if err != nil {
		return err
	}
	if !ok {
		return ErrLastOwner
	}

	s.auditor.Log(ctx, audit.Entry{WorkspaceID: a.WorkspaceID(), UserID: a.Principal.UserID, Action: "member.role_changed", ResourceType: "member", ResourceID: userID, Metadata: map[string]interface{}{"role": string(role)}})
	return nil
}

// RemoveMember deactivates a membership. Removing the last active owner fails
// with ErrLastOwner.
func (s *Service) RemoveMember(ctx context.Context, a *access.Access, userID string) error {
	if err := s.memberFor(ctx, a, userID); err != nil {
		return err
	}

	ok, err := s.repos.Memberships.Deactivate(ctx, userID, a.WorkspaceID(), s.now().Unix())
	if err != nil {
		return err
	}
	if !ok {
		return ErrLastOwner
	}

	s.auditor.Log(ctx, audit.Entry{WorkspaceID: a.WorkspaceID(), UserID: a.Principal.UserID, Action: "member.removed", ResourceType: "member", ResourceID: userID})
	return nil
}
