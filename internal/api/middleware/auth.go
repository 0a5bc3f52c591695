package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	apiContext "agencycrm/internal/api/context"
	"agencycrm/internal/engine/access"
	apierrors "agencycrm/internal/pkg/errors"
)

type AuthMiddleware struct {
	sessions   *access.SessionResolver
	cookieName string
}

func NewAuthMiddleware(sessions *access.SessionResolver, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, cookieName: cookieName}
}

// token prefers the Authorization header and falls back to the session cookie.
func (m *AuthMiddleware) token(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if m.cookieName != "" {
		if c, err := r.Cookie(m.cookieName); err == nil {
			return c.Value
		}
	}
	return ""
}

func (m *AuthMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := m.token(r)
		if token == "" {
			apierrors.WriteError(w, http.StatusUnauthorized, apierrors.ErrCodeUnauthorized, "Missing credentials", nil)
			return
		}

		principal, err := m.sessions.Resolve(r.Context(), token)
		if err != nil {
			if errors.Is(err, access.ErrUnauthenticated) {
				apierrors.WriteError(w, http.StatusUnauthorized, apierrors.ErrCodeUnauthorized, "Invalid or expired session", nil)
				return
			}
			log.Error().Err(err).Msg("Failed to resolve session")
			apierrors.WriteError(w, http.StatusInternalServerError, apierrors.ErrCodeInternal, "Failed to resolve session", nil)
			return
		}

		if info := apiContext.RequestInfoFrom(r.Context()); info != nil {
			info.UserID = principal.UserID
		}

		ctx := context.WithValue(r.Context(), apiContext.Principal, principal)
		next(w, r.WithContext(ctx))
	}
}
