package access

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"agencycrm/internal/platform/auth"
	"agencycrm/internal/platform/models"
)

// Principal is the authenticated identity of one request.
type Principal struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        Role   `json:"role"`
	WorkspaceID string `json:"workspace_id"`
}

type TokenVerifier interface {
	ValidateToken(token string) (*auth.Claims, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type SessionResolver struct {
	tokens TokenVerifier
	users  UserStore
}

func NewSessionResolver(tokens TokenVerifier, users UserStore) *SessionResolver {
	return &SessionResolver{tokens: tokens, users: users}
}

// Resolve verifies token and loads the user it names. Every failure, including
// a deleted or deactivated user, is ErrUnauthenticated.
func (r *SessionResolver) Resolve(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := r.tokens.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	user, err := r.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, ErrUnauthenticated
	}

	role, err := ParseRole(user.Role)
	if err != nil {
		log.Warn().Str("user_id", user.ID).Str("role", user.Role).Msg("Stored user has unknown role")
		return nil, ErrUnauthenticated
	}

	return &Principal{
		UserID:      user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Role:        role,
		WorkspaceID: user.WorkspaceID,
	}, nil
}

// RequireRole fails with ErrForbidden unless the principal's role is exactly
// role. An owner does not satisfy RequireRole(p, RoleEditor).
func RequireRole(p *Principal, role Role) error {
	if p == nil {
		return ErrUnauthenticated
	}
	if p.Role != role {
		return fmt.Errorf("%w: role %s required", ErrForbidden, role)
	}
	return nil
}
