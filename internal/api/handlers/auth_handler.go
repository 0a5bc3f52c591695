package handlers

import (
	"net/http"
	"time"

	apiContext "agencycrm/internal/api/context"
	"agencycrm/internal/engine/workspaces"
	"agencycrm/internal/pkg/errors"
	"agencycrm/internal/platform/auth"
	"agencycrm/internal/platform/config"
	"agencycrm/internal/platform/models"
)

type AuthHandler struct {
	workspaces *workspaces.Service
	tokenSvc   *auth.TokenService
	session    config.SessionConfig
	ttl        time.Duration
}

func NewAuthHandler(workspaceSvc *workspaces.Service, tokenSvc *auth.TokenService, session config.SessionConfig, ttl time.Duration) *AuthHandler {
	return &AuthHandler{
		workspaces: workspaceSvc,
		tokenSvc:   tokenSvc,
		session:    session,
		ttl:        ttl,
	}
}

type SessionResponse struct {
	User        *models.User      `json:"user"`
	Workspace   *models.Workspace `json:"workspace,omitempty"`
	AccessToken string            `json:"access_token"`
	ExpiresIn   int64             `json:"expires_in"`
}

// startSession issues a token for user and sets it as the session cookie.
func (h *AuthHandler) startSession(w http.ResponseWriter, user *models.User) (string, error) {
	token, err := h.tokenSvc.GenerateAccessToken(user.ID, user.WorkspaceID, user.Role, user.Email, user.Name)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.session.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req workspaces.SignupRequest
	if !decode(w, r, &req) {
		return
	}

	user, ws, err := h.workspaces.Signup(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := h.startSession(w, user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	errors.WriteJSON(w, http.StatusCreated, SessionResponse{
		User:        user,
		Workspace:   ws,
		AccessToken: token,
		ExpiresIn:   int64(h.ttl.Seconds()),
	})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.workspaces.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := h.startSession(w, user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	errors.WriteJSON(w, http.StatusOK, SessionResponse{
		User:        user,
		AccessToken: token,
		ExpiresIn:   int64(h.ttl.Seconds()),
	})
}

// Logout clears the session cookie. Tokens are stateless, so a copied bearer
// token stays valid until it expires.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

type CloseAccountRequest struct {
	Password string `json:"password"`
}

// CloseAccount deactivates the caller's account and ends the session.
func (h *AuthHandler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	var req CloseAccountRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.workspaces.CloseAccount(r.Context(), apiContext.PrincipalFrom(r.Context()), req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	h.clearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := apiContext.PrincipalFrom(r.Context())
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      p.UserID,
		"email":        p.Email,
		"name":         p.Name,
		"role":         p.Role,
		"workspace_id": p.WorkspaceID,
	})
}

func (h *AuthHandler) MyWorkspaces(w http.ResponseWriter, r *http.Request) {
	list, err := h.workspaces.ListForUser(r.Context(), apiContext.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{"workspaces": list})
}
