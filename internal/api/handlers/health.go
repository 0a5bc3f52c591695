package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"
)

type HealthHandler struct {
	db *sql.DB
	// pingers are optional extra dependencies, such as the redis rate limit store.
	pingers map[string]func(ctx context.Context) error
}

func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db, pingers: map[string]func(ctx context.Context) error{}}
}

// AddCheck registers a named dependency reported by Check.
func (h *HealthHandler) AddCheck(name string, ping func(ctx context.Context) error) {
	h.pingers[name] = ping
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "healthy"

	record := func(name string, err error) {
		if err != nil {
			checks[name] = "unhealthy: " + err.Error()
			status = "degraded"
			return
		}
		checks[name] = "healthy"
	}

	record("database", h.db.PingContext(ctx))
	for name, ping := range h.pingers {
		record(name, ping(ctx))
	}

	response := struct {
		Status    string            `json:"status"`
		Timestamp int64             `json:"timestamp"`
		Checks    map[string]string `json:"checks"`
	}{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
