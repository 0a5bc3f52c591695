package access

import (
	"context"
	"fmt"

	"agencycrm/internal/platform/models"
)

type WorkspaceStore interface {
	GetByID(ctx context.Context, id string) (*models.Workspace, error)
}

type MembershipStore interface {
	Get(ctx context.Context, userID, workspaceID string) (*models.WorkspaceMembership, error)
}

// DecisionRecorder observes the outcome of every workspace access check.
type DecisionRecorder interface {
	RecordDecision(decision, reason string)
}

type nopRecorder struct{}

func (nopRecorder) RecordDecision(string, string) {}

// Access is a principal's resolved standing in one workspace.
type Access struct {
	Principal *Principal
	Workspace *models.Workspace
	Role      Role
}

func (a *Access) WorkspaceID() string {
	return a.Workspace.ID
}

// IsDirectOwner reports whether the workspace is the principal's home workspace.
func (a *Access) IsDirectOwner() bool {
	return a.Principal.WorkspaceID == a.Workspace.ID
}

func (a *Access) Can(perm Permission) bool {
	return HasPermission(a.Role, perm)
}

// Require fails with ErrForbidden when the role lacks perm.
func (a *Access) Require(perm Permission) error {
	if !a.Can(perm) {
		return fmt.Errorf("%w: %s requires %s", ErrForbidden, a.Role, perm)
	}
	return nil
}

// MembershipResolver computes a principal's role inside a workspace. It is
// the only place a role for a workspace is derived.
type MembershipResolver struct {
	workspaces  WorkspaceStore
	memberships MembershipStore
	recorder    DecisionRecorder
}

func NewMembershipResolver(workspaces WorkspaceStore, memberships MembershipStore, recorder DecisionRecorder) *MembershipResolver {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &MembershipResolver{workspaces: workspaces, memberships: memberships, recorder: recorder}
}

// Resolve returns the principal's access to workspaceID. The home workspace
// always yields owner and membership rows for it are ignored. Elsewhere only
// an active membership grants access; anything else is ErrForbidden.
func (r *MembershipResolver) Resolve(ctx context.Context, p *Principal, workspaceID string) (*Access, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}

	ws, err := r.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws == nil || !ws.IsActive {
		r.recorder.RecordDecision("deny", "workspace_unavailable")
		return nil, fmt.Errorf("%w: workspace unavailable", ErrForbidden)
	}

	if p.WorkspaceID == workspaceID {
		r.recorder.RecordDecision("allow", "direct_owner")
		return &Access{Principal: p, Workspace: ws, Role: RoleOwner}, nil
	}

	m, err := r.memberships.Get(ctx, p.UserID, workspaceID)
	if err != nil {
		return nil, err
	}
	if m == nil || !m.IsActive {
		r.recorder.RecordDecision("deny", "no_membership")
		return nil, fmt.Errorf("%w: not a member of this workspace", ErrForbidden)
	}

	role, err := ParseRole(m.Role)
	if err != nil {
		r.recorder.RecordDecision("deny", "invalid_role")
		return nil, fmt.Errorf("%w: %v", ErrForbidden, err)
	}

	r.recorder.RecordDecision("allow", "membership")
	return &Access{Principal: p, Workspace: ws, Role: role}, nil
}

// EffectiveRole is Resolve reduced to the role.
func (r *MembershipResolver) EffectiveRole(ctx context.Context, p *Principal, workspaceID string) (Role, error) {
	a, err := r.Resolve(ctx, p, workspaceID)
	if err != nil {
		return "", err
	}
	return a.Role, nil
}
