package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	apiContext "agencycrm/internal/api/context"
	apierrors "agencycrm/internal/pkg/errors"
	"agencycrm/internal/pkg/ratelimit"
)

type RateLimitRecorder interface {
	RecordRateLimited(scope string)
}

type RateLimiter struct {
	limiter  ratelimit.Limiter
	recorder RateLimitRecorder
}

func NewRateLimiter(limiter ratelimit.Limiter, recorder RateLimitRecorder) *RateLimiter {
	return &RateLimiter{limiter: limiter, recorder: recorder}
}

// ClientIP returns the first X-Forwarded-For hop, falling back to RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ByIP limits requests per client address. Used on unauthenticated routes.
func (rl *RateLimiter) ByIP(scope string, limit int) func(http.HandlerFunc) http.HandlerFunc {
	return rl.limit(scope, limit, func(r *http.Request) string {
		return ClientIP(r)
	})
}

// ByWorkspace limits requests per workspace. It must run after
// WorkspaceMiddleware; requests without workspace access fall back to the IP.
func (rl *RateLimiter) ByWorkspace(scope string, limit int) func(http.HandlerFunc) http.HandlerFunc {
	return rl.limit(scope, limit, func(r *http.Request) string {
		if a := apiContext.AccessFrom(r.Context()); a != nil {
			return a.WorkspaceID()
		}
		return ClientIP(r)
	})
}

func (rl *RateLimiter) limit(scope string, limit int, keyFn func(*http.Request) string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if rl == nil || rl.limiter == nil {
				next(w, r)
				return
			}

			key := fmt.Sprintf("%s:%s", scope, keyFn(r))
			allowed, err := rl.limiter.Allow(r.Context(), key, limit)
			if err != nil {
				// fail open when the backing store is unavailable
				log.Warn().Err(err).Str("scope", scope).Msg("Rate limiter unavailable")
				next(w, r)
				return
			}

			if !allowed {
				if rl.recorder != nil {
					rl.recorder.RecordRateLimited(scope)
				}
				w.Header().Set("Retry-After", "60")
				apierrors.WriteError(w, http.StatusTooManyRequests, apierrors.ErrCodeRateLimitExceeded, "Rate limit exceeded", nil)
				return
			}

			next(w, r)
		}
	}
}
