package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencycrm/internal/api/handlers"
	"agencycrm/internal/api/middleware"
	"agencycrm/internal/engine/access"
	"agencycrm/internal/engine/invites"
	"agencycrm/internal/engine/records"
	"agencycrm/internal/engine/workspaces"
	"agencycrm/internal/pkg/ratelimit"
	"agencycrm/internal/platform/audit"
	"agencycrm/internal/platform/auth"
	"agencycrm/internal/platform/config"
	"agencycrm/internal/platform/database"
	"agencycrm/internal/platform/metrics"
	"agencycrm/internal/platform/repositories"
)

type testServer struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestServer(t *testing.T, limits config.RateLimitConfig) *testServer {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{URL: ":memory:", MaxConnections: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	repos := repositories.New(db)
	m := metrics.New()
	auditLog := audit.NewLogger(db)
	tokens := auth.NewTokenService(config.JWTConfig{Secret: "test-secret", Issuer: "agencycrm", AccessTokenTTL: time.Hour})

	workspaceSvc := workspaces.NewService(repos, auditLog)
	inviteSvc := invites.NewService(repos, config.InvitesConfig{TTL: 24 * time.Hour}, nil, auditLog, m)
	recordSvc := records.NewService(repos, auditLog)

	authHandler := handlers.NewAuthHandler(workspaceSvc, tokens, config.SessionConfig{CookieName: "crm_session"}, time.Hour)

	router := NewRouter(&Dependencies{
		AuthHandler:         authHandler,
		WorkspaceHandler:    handlers.NewWorkspaceHandler(workspaceSvc),
		MemberHandler:       handlers.NewMemberHandler(workspaceSvc),
		InviteHandler:       handlers.NewInviteHandler(inviteSvc, authHandler),
		RecordHandler:       handlers.NewRecordHandler(recordSvc),
		AuditHandler:        handlers.NewAuditHandler(auditLog),
		HealthHandler:       handlers.NewHealthHandler(db),
		MetricsHandler:      handlers.NewMetricsHandler(m),
		AuthMiddleware:      middleware.NewAuthMiddleware(access.NewSessionResolver(tokens, repos.Users), "crm_session"),
		WorkspaceMiddleware: middleware.NewWorkspaceMiddleware(access.NewMembershipResolver(repos.Workspaces, repos.Memberships, m)),
		RateLimiter:         middleware.NewRateLimiter(ratelimit.NewMemoryLimiter(time.Minute), m),
		Observer:            m,
		Limits:              limits,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv}
}

// do sends body as JSON and decodes the JSON response into a map.
func (s *testServer) do(method, path, token string, body interface{}) (int, map[string]interface{}) {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, s.srv.URL+path, reader)
	require.NoError(s.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)

	out := map[string]interface{}{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

type session struct {
	token       string
	userID      string
	workspaceID string
}

func (s *testServer) signup(email, name string) session {
	s.t.Helper()
	status, body := s.do("POST", "/api/v1/auth/signup", "", map[string]string{
		"email": email, "password": "correct-horse", "name": name,
	})
	require.Equal(s.t, http.StatusCreated, status, body)

	user := body["user"].(map[string]interface{})
	ws := body["workspace"].(map[string]interface{})
	return session{token: body["access_token"].(string), userID: user["id"].(string), workspaceID: ws["id"].(string)}
}

func errorCode(body map[string]interface{}) string {
	code, _ := body["code"].(string)
	return code
}

func TestRouter_InviteAndEditorFlow(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})
	owner := s.signup("owner@example.com", "Olive")
	ws := "/api/v1/workspaces/" + owner.workspaceID

	status, body := s.do("GET", "/api/v1/me", owner.token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, owner.userID, body["user_id"])

	// invite an editor
	status, body = s.do("POST", ws+"/invites", owner.token, map[string]string{"email": "Ed@Example.com", "role": "editor"})
	require.Equal(t, http.StatusCreated, status, body)
	inviteToken := body["token"].(string)
	assert.Equal(t, "ed@example.com", body["email"])
	assert.Equal(t, "pending", body["status"])

	status, body = s.do("GET", "/api/v1/invites/lookup?token="+inviteToken, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["account_exists"])

	// the wrong identity cannot consume it
	status, body = s.do("POST", "/api/v1/invites/accept", "", map[string]string{
		"token": inviteToken, "email": "someone@example.com", "password": "correct-horse", "name": "Sam",
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "EMAIL_MISMATCH", errorCode(body))

	status, body = s.do("POST", "/api/v1/invites/accept", "", map[string]string{
		"token": inviteToken, "email": "ed@example.com", "password": "correct-horse", "name": "Ed",
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["new_account"])
	assert.Equal(t, "editor", body["role"])
	editorToken := body["access_token"].(string)
	editorID := body["user"].(map[string]interface{})["id"].(string)

	status, body = s.do("POST", "/api/v1/invites/accept", "", map[string]string{
		"token": inviteToken, "email": "ed@example.com", "password": "correct-horse", "name": "Ed",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVITE_NOT_PENDING", errorCode(body))

	// the editor's effective role comes from the membership
	status, body = s.do("GET", ws, editorToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "editor", body["workspace"].(map[string]interface{})["role"])

	status, _ = s.do("POST", ws+"/invites", editorToken, map[string]string{"email": "x@example.com", "role": "editor"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do("GET", ws+"/audit", editorToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// finance fields are owner-only
	status, body = s.do("POST", ws+"/invoices", editorToken, map[string]interface{}{"number": "INV-1", "amount": 100})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "POLICY_VIOLATION", errorCode(body))
	details := body["details"].(map[string]interface{})
	assert.Equal(t, "finance_fields", details["policy"])
	assert.Equal(t, []interface{}{"amount"}, details["fields"])

	status, body = s.do("POST", ws+"/invoices", editorToken, map[string]interface{}{"number": "INV-1", "client_name": "Globex"})
	require.Equal(t, http.StatusCreated, status, body)
	invoiceID := body["id"].(string)

	status, body = s.do("PATCH", ws+"/invoices/"+invoiceID, owner.token, map[string]interface{}{"amount": 1200, "currency": "usd"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(1200), body["amount"])

	status, body = s.do("GET", ws+"/invoices/"+invoiceID, editorToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, body, "amount")
	assert.NotContains(t, body, "currency")
	assert.Equal(t, "Globex", body["client_name"])

	status, body = s.do("PATCH", ws+"/invoices/"+invoiceID, editorToken, map[string]interface{}{"bogus": true})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "UNKNOWN_FIELD", errorCode(body))

	status, _ = s.do("POST", ws+"/invoices/"+invoiceID+"/mark-paid", editorToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do("POST", ws+"/invoices/"+invoiceID+"/mark-paid", owner.token, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "paid", body["state"])

	// members and the last-owner rules
	status, body = s.do("GET", ws+"/members", editorToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["members"], 2)

	status, body = s.do("DELETE", ws+"/members/"+owner.userID, owner.token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "DIRECT_OWNER", errorCode(body))

	status, _ = s.do("DELETE", ws+"/members/"+editorID, owner.token, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = s.do("GET", ws, editorToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do("GET", ws+"/audit", owner.token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["logs"])
}

func TestRouter_WorkspaceIsolation(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})
	alice := s.signup("alice@example.com", "Alice")
	bob := s.signup("bob@example.com", "Bob")

	status, body := s.do("POST", "/api/v1/workspaces/"+alice.workspaceID+"/projects", alice.token, map[string]interface{}{"name": "Launch", "budget_amount": 5000})
	require.Equal(t, http.StatusCreated, status, body)
	projectID := body["id"].(string)

	status, _ = s.do("GET", "/api/v1/workspaces/"+alice.workspaceID+"/projects/"+projectID, bob.token, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// a record id from another workspace is not found in your own
	status, _ = s.do("GET", "/api/v1/workspaces/"+bob.workspaceID+"/projects/"+projectID, bob.token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = s.do("GET", "/api/v1/workspaces/"+alice.workspaceID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, _ = s.do("GET", "/api/v1/workspaces/"+alice.workspaceID, "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRouter_DeactivateWorkspace(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})
	owner := s.signup("owner@example.com", "Olive")
	ws := "/api/v1/workspaces/" + owner.workspaceID

	status, body := s.do("POST", ws+"/invites", owner.token, map[string]string{"email": "later@example.com", "role": "editor"})
	require.Equal(t, http.StatusCreated, status, body)
	inviteToken := body["token"].(string)

	status, _ = s.do("DELETE", ws, owner.token, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = s.do("GET", ws, owner.token, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do("GET", "/api/v1/invites/lookup?token="+inviteToken, "", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVITE_NOT_PENDING", errorCode(body))
}

func TestRouter_CloseAccountKeepsAnOwner(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})
	ann := s.signup("ann@example.com", "Ann")
	bob := s.signup("bob@example.com", "Bob")
	ws := "/api/v1/workspaces/" + ann.workspaceID

	status, body := s.do("POST", ws+"/members", ann.token, map[string]string{"email": "bob@example.com", "role": "owner"})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = s.do("POST", "/api/v1/me/close", ann.token, map[string]string{"password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(body))

	status, body = s.do("POST", "/api/v1/me/close", ann.token, map[string]string{"password": "correct-horse"})
	require.Equal(t, http.StatusNoContent, status, body)

	status, _ = s.do("GET", "/api/v1/me", ann.token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// bob is now the last owner of ann's workspace
	status, body = s.do("PATCH", ws+"/members/"+bob.userID, bob.token, map[string]string{"role": "editor"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "LAST_OWNER", errorCode(body))

	status, body = s.do("DELETE", ws+"/members/"+bob.userID, bob.token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "LAST_OWNER", errorCode(body))

	status, body = s.do("POST", "/api/v1/me/close", bob.token, map[string]string{"password": "correct-horse"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "LAST_OWNER", errorCode(body))

	status, _ = s.do("GET", ws, bob.token, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestRouter_Login(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})
	s.signup("owner@example.com", "Olive")

	status, body := s.do("POST", "/api/v1/auth/login", "", map[string]string{"email": "OWNER@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["access_token"])

	status, body = s.do("POST", "/api/v1/auth/login", "", map[string]string{"email": "owner@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(body))

	status, body = s.do("POST", "/api/v1/auth/signup", "", map[string]string{"email": "owner@example.com", "password": "correct-horse"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errorCode(body))
}

func TestRouter_SessionCookie(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})
	owner := s.signup("owner@example.com", "Olive")

	req, err := http.NewRequest("GET", s.srv.URL+"/api/v1/me/workspaces", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "crm_session", Value: owner.token})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Workspaces []struct {
			ID       string `json:"id"`
			Role     string `json:"role"`
			IsDirect bool   `json:"is_direct"`
		} `json:"workspaces"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Workspaces, 1)
	assert.Equal(t, owner.workspaceID, body.Workspaces[0].ID)
	assert.True(t, body.Workspaces[0].IsDirect)
}

func TestRouter_AuthRateLimit(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{AuthPerMinute: 2})

	for i := 0; i < 2; i++ {
		status, _ := s.do("POST", "/api/v1/auth/login", "", map[string]string{"email": "nobody@example.com", "password": "whatever1"})
		assert.Equal(t, http.StatusUnauthorized, status)
	}

	status, body := s.do("POST", "/api/v1/auth/login", "", map[string]string{"email": "nobody@example.com", "password": "whatever1"})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(body))
}

func TestRouter_Operational(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})

	status, body := s.do("GET", "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	status, _ = s.do("GET", "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	resp, err := http.Get(s.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `agencycrm_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}
