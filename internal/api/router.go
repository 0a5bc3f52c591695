package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "agencycrm/internal/api/context"
	"agencycrm/internal/api/handlers"
	"agencycrm/internal/api/middleware"
	"agencycrm/internal/engine/access"
	"agencycrm/internal/pkg/errors"
	"agencycrm/internal/platform/audit"
	"agencycrm/internal/platform/config"
)

type Dependencies struct {
	AuthHandler         *handlers.AuthHandler
	WorkspaceHandler    *handlers.WorkspaceHandler
	MemberHandler       *handlers.MemberHandler
	InviteHandler       *handlers.InviteHandler
	RecordHandler       *handlers.RecordHandler
	AuditHandler        *handlers.AuditHandler
	HealthHandler       *handlers.HealthHandler
	MetricsHandler      *handlers.MetricsHandler
	AuthMiddleware      *middleware.AuthMiddleware
	WorkspaceMiddleware *middleware.WorkspaceMiddleware
	RateLimiter         *middleware.RateLimiter
	Observer            middleware.RequestObserver
	Limits              config.RateLimitConfig
}

type mw = func(http.HandlerFunc) http.HandlerFunc

type routes struct {
	router   *httprouter.Router
	observer middleware.RequestObserver
}

// handle registers h under method and path. Requests are observed under the
// path pattern before any other middleware runs.
func (rt *routes) handle(method, path string, h http.HandlerFunc, middlewares ...mw) {
	all := append([]mw{middleware.Observe(path, rt.observer)}, middlewares...)
	rt.router.Handle(method, path, chain(h, all...))
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Route not found", nil)
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, http.StatusMethodNotAllowed, errors.ErrCodeInvalidInput, "Method not allowed", nil)
	})

	rt := &routes{router: router, observer: deps.Observer}

	// Middleware references
	authMid := deps.AuthMiddleware.Handle
	wsMid := deps.WorkspaceMiddleware.Handle
	authLimit := deps.RateLimiter.ByIP("auth", deps.Limits.AuthPerMinute)
	writeLimit := deps.RateLimiter.ByWorkspace("api_write", deps.Limits.APIWritePerMinute)
	perm := middleware.RequirePermission

	// Operational
	rt.handle("GET", "/healthz", deps.HealthHandler.Check)
	rt.handle("GET", "/metrics", deps.MetricsHandler.Export)

	// Authentication routes
	rt.handle("POST", "/api/v1/auth/signup", deps.AuthHandler.Signup, authLimit)
	rt.handle("POST", "/api/v1/auth/login", deps.AuthHandler.Login, authLimit)
	rt.handle("POST", "/api/v1/auth/logout", deps.AuthHandler.Logout)
	rt.handle("GET", "/api/v1/me", deps.AuthHandler.Me, authMid)
	rt.handle("GET", "/api/v1/me/workspaces", deps.AuthHandler.MyWorkspaces, authMid)
	rt.handle("POST", "/api/v1/me/close", deps.AuthHandler.CloseAccount, authMid, authLimit)

	// Invite acceptance does not need a session
	rt.handle("GET", "/api/v1/invites/lookup", deps.InviteHandler.Lookup, authLimit)
	rt.handle("POST", "/api/v1/invites/accept", deps.InviteHandler.Accept, authLimit)

	// Workspace management
	ws := "/api/v1/workspaces/:workspace_id"
	rt.handle("GET", ws, deps.WorkspaceHandler.Get, authMid, wsMid)
	rt.handle("PATCH", ws, deps.WorkspaceHandler.Update,
		authMid, wsMid, writeLimit, perm(access.WorkspaceUpdate))
	rt.handle("DELETE", ws, deps.WorkspaceHandler.Deactivate,
		authMid, middleware.RequireRole(access.RoleOwner), wsMid, perm(access.WorkspaceDelete))

	// Members
	rt.handle("GET", ws+"/members", deps.MemberHandler.List, authMid, wsMid, perm(access.MembersView))
	rt.handle("POST", ws+"/members", deps.MemberHandler.Add,
		authMid, wsMid, writeLimit, perm(access.UsersManage))
	rt.handle("PATCH", ws+"/members/:user_id", deps.MemberHandler.UpdateRole,
		authMid, wsMid, writeLimit, perm(access.UsersManage))
	rt.handle("DELETE", ws+"/members/:user_id", deps.MemberHandler.Remove,
		authMid, wsMid, writeLimit, perm(access.UsersManage))

	// Invite management
	rt.handle("POST", ws+"/invites", deps.InviteHandler.Create,
		authMid, wsMid, writeLimit, perm(access.UsersManage))
	rt.handle("GET", ws+"/invites", deps.InviteHandler.List, authMid, wsMid, perm(access.UsersManage))
	rt.handle("DELETE", ws+"/invites/:invite_id", deps.InviteHandler.Revoke,
		authMid, wsMid, writeLimit, perm(access.UsersManage))

	// Audit
	rt.handle("GET", ws+"/audit", deps.AuditHandler.List, authMid, wsMid, perm(access.AuditView))

	// Projects
	rec := deps.RecordHandler
	rt.handle("GET", ws+"/projects", rec.ListProjects(), authMid, wsMid, perm(access.ProjectView))
	rt.handle("POST", ws+"/projects", rec.CreateProject(), authMid, wsMid, writeLimit)
	rt.handle("GET", ws+"/projects/:project_id", rec.GetProject(), authMid, wsMid, perm(access.ProjectView))
	rt.handle("PATCH", ws+"/projects/:project_id", rec.UpdateProject(), authMid, wsMid, writeLimit)
	rt.handle("POST", ws+"/projects/:project_id/archive", rec.ArchiveProject(), authMid, wsMid, writeLimit)
	rt.handle("POST", ws+"/projects/:project_id/restore", rec.RestoreProject(), authMid, wsMid, writeLimit)
	rt.handle("DELETE", ws+"/projects/:project_id", rec.DeleteProject(), authMid, wsMid, writeLimit)

	// Invoices
	rt.handle("GET", ws+"/invoices", rec.ListInvoices(), authMid, wsMid, perm(access.InvoiceView))
	rt.handle("POST", ws+"/invoices", rec.CreateInvoice(), authMid, wsMid, writeLimit)
	rt.handle("GET", ws+"/invoices/:invoice_id", rec.GetInvoice(), authMid, wsMid, perm(access.InvoiceView))
	rt.handle("PATCH", ws+"/invoices/:invoice_id", rec.UpdateInvoice(), authMid, wsMid, writeLimit)
	rt.handle("POST", ws+"/invoices/:invoice_id/archive", rec.ArchiveInvoice(), authMid, wsMid, writeLimit)
	rt.handle("POST", ws+"/invoices/:invoice_id/restore", rec.RestoreInvoice(), authMid, wsMid, writeLimit)
	rt.handle("POST", ws+"/invoices/:invoice_id/mark-paid", rec.MarkPaid(), authMid, wsMid, writeLimit)
	rt.handle("DELETE", ws+"/invoices/:invoice_id", rec.DeleteInvoice(), authMid, wsMid, writeLimit)

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...mw) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		ctx = audit.WithRequest(ctx, middleware.ClientIP(r), r.UserAgent())
		handler(w, r.WithContext(ctx))
	}
}
