package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type AuditLog struct {
	ID           string                 `json:"id"`
	WorkspaceID  string                 `json:"workspace_id"`
	UserID       string                 `json:"user_id"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata"`
	IPAddress    string                 `json:"ip_address"`
	UserAgent    string                 `json:"user_agent"`
	CreatedAt    int64                  `json:"created_at"`
}

// Entry is what a caller knows about a mutation. Request details are taken
// from the context.
type Entry struct {
	WorkspaceID  string
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]interface{}
}

type requestKey struct{}

type requestInfo struct {
	ip        string
	userAgent string
}

// WithRequest attaches the caller's address and user agent to ctx.
func WithRequest(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, requestKey{}, requestInfo{ip: ip, userAgent: userAgent})
}

type Logger struct {
	db  *sql.DB
	now func() time.Time
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db, now: time.Now}
}

// Log records e. A failed insert is logged and otherwise ignored so that it
// never fails the mutation it describes.
func (l *Logger) Log(ctx context.Context, e Entry) {
	ip, ua := "unknown", "unknown"
	if info, ok := ctx.Value(requestKey{}).(requestInfo); ok {
		ip, ua = info.ip, info.userAgent
	}

	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metaJSON, _ := json.Marshal(metadata)

	query := `
		INSERT INTO audit_logs (id, workspace_id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := l.db.ExecContext(ctx, query, "audit_"+uuid.NewString(), e.WorkspaceID, e.UserID, e.Action, e.ResourceType, e.ResourceID, string(metaJSON), ip, ua, l.now().Unix())
	if err != nil {
		log.Error().Err(err).Str("action", e.Action).Str("workspace_id", e.WorkspaceID).Msg("Failed to write audit log")
	}
}

// List returns the newest entries of a workspace first.
func (l *Logger) List(ctx context.Context, workspaceID string, limit, offset int) ([]*AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, workspace_id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at
		FROM audit_logs WHERE workspace_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?
	`, workspaceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []*AuditLog{}
	for rows.Next() {
		entry := &AuditLog{}
		var metaStr string
		if err := rows.Scan(&entry.ID, &entry.WorkspaceID, &entry.UserID, &entry.Action, &entry.ResourceType, &entry.ResourceID, &metaStr, &entry.IPAddress, &entry.UserAgent, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metaStr), &entry.Metadata); err != nil {
			entry.Metadata = map[string]interface{}{}
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
