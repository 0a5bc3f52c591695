package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apiContext "agencycrm/internal/api/context"
)

type RequestObserver interface {
	ObserveRequest(method, route string, status int)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Observe logs the request and counts it under its route pattern so that
// path parameters do not inflate label cardinality.
func Observe(route string, observer RequestObserver) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			info := &apiContext.RequestInfo{}

			next(rec, r.WithContext(context.WithValue(r.Context(), apiContext.Request, info)))

			if observer != nil {
				observer.ObserveRequest(r.Method, route, rec.status)
			}

			event := log.Info()
			if rec.status >= http.StatusInternalServerError {
				event = log.Error()
			}
			event = event.
				Str("method", r.Method).
				Str("route", route).
				Int("status", rec.status).
				Dur("duration", time.Since(start))
			if info.UserID != "" {
				event = event.Str("user_id", info.UserID)
			}
			event.Msg("request")
		}
	}
}
