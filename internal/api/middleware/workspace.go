package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	apiContext "agencycrm/internal/api/context"
	"agencycrm/internal/engine/access"
	apierrors "agencycrm/internal/pkg/errors"
)

// WorkspaceMiddleware resolves the caller's role in the :workspace_id of the
// route. It must run after AuthMiddleware.
type WorkspaceMiddleware struct {
	resolver *access.MembershipResolver
}

func NewWorkspaceMiddleware(resolver *access.MembershipResolver) *WorkspaceMiddleware {
	return &WorkspaceMiddleware{resolver: resolver}
}

func (m *WorkspaceMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := apiContext.PrincipalFrom(r.Context())
		if principal == nil {
			apierrors.WriteError(w, http.StatusUnauthorized, apierrors.ErrCodeUnauthorized, "No authenticated session found", nil)
			return
		}

		workspaceID := apiContext.Param(r.Context(), "workspace_id")
		a, err := m.resolver.Resolve(r.Context(), principal, workspaceID)
		if err != nil {
			if errors.Is(err, access.ErrForbidden) {
				apierrors.WriteError(w, http.StatusForbidden, apierrors.ErrCodeForbidden, "You do not have access to this workspace", nil)
				return
			}
			log.Error().Err(err).Str("workspace_id", workspaceID).Msg("Failed to resolve workspace access")
			apierrors.WriteError(w, http.StatusInternalServerError, apierrors.ErrCodeInternal, "Failed to load workspace", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Access, a)
		next(w, r.WithContext(ctx))
	}
}

// RequirePermission rejects callers whose workspace role lacks perm. It must
// run after WorkspaceMiddleware.
func RequirePermission(perm access.Permission) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			a := apiContext.AccessFrom(r.Context())
			if a == nil || !a.Can(perm) {
				apierrors.WriteError(w, http.StatusForbidden, apierrors.ErrCodeForbidden, "Insufficient permissions", nil)
				return
			}
			next(w, r)
		}
	}
}

// RequireRole rejects sessions whose role is not exactly role.
func RequireRole(role access.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if err := access.RequireRole(apiContext.PrincipalFrom(r.Context()), role); err != nil {
				if errors.Is(err, access.ErrUnauthenticated) {
					apierrors.WriteError(w, http.StatusUnauthorized, apierrors.ErrCodeUnauthorized, "No authenticated session found", nil)
					return
				}
				apierrors.WriteError(w, http.StatusForbidden, apierrors.ErrCodeForbidden, "Insufficient permissions", nil)
				return
			}
			next(w, r)
		}
	}
}
