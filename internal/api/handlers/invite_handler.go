package handlers

import (
	"net/http"

	apiContext "agencycrm/internal/api/context"
	"agencycrm/internal/engine/access"
	"agencycrm/internal/engine/invites"
	"agencycrm/internal/pkg/errors"
	"agencycrm/internal/platform/models"
)

type InviteHandler struct {
	invites *invites.Service
	auth    *AuthHandler
}

// NewInviteHandler builds the invite endpoints. auth issues the session
// returned after a successful accept.
func NewInviteHandler(inviteSvc *invites.Service, auth *AuthHandler) *InviteHandler {
	return &InviteHandler{invites: inviteSvc, auth: auth}
}

type CreateInviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *InviteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateInviteRequest
	if !decode(w, r, &req) {
		return
	}
	role, err := access.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}

	invite, err := h.invites.Create(r.Context(), apiContext.AccessFrom(r.Context()), req.Email, role)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// The token is only ever shown to the inviter here.
	errors.WriteJSON(w, http.StatusCreated, struct {
		*models.TeamInvite
		Token string `json:"token"`
	}{invite, invite.Token})
}

func (h *InviteHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	list, err := h.invites.List(r.Context(), apiContext.AccessFrom(r.Context()), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{"invites": list})
}

func (h *InviteHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	inviteID := apiContext.Param(r.Context(), "invite_id")
	if err := h.invites.Revoke(r.Context(), apiContext.AccessFrom(r.Context()), inviteID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InviteHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	preview, err := h.invites.Lookup(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	errors.WriteJSON(w, http.StatusOK, preview)
}

func (h *InviteHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req invites.AcceptRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := h.invites.Accept(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := h.auth.startSession(w, result.User)
	if err != nil {
		writeError(w, r, err)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user":         result.User,
		"workspace_id": result.WorkspaceID,
		"role":         result.Role,
		"new_account":  result.NewAccount,
		"access_token": token,
		"expires_in":   int64(h.auth.ttl.Seconds()),
	})
}
