package handlers

import (
	"net/http"

	apiContext "agencycrm/internal/api/context"
	"agencycrm/internal/engine/access"
	"agencycrm/internal/engine/workspaces"
	"agencycrm/internal/pkg/errors"
)

type MemberHandler struct {
	workspaces *workspaces.Service
}

func NewMemberHandler(workspaceSvc *workspaces.Service) *MemberHandler {
	return &MemberHandler{workspaces: workspaceSvc}
}

type MemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.workspaces.Members(r.Context(), apiContext.AccessFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

func (h *MemberHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req MemberRequest
	if !decode(w, r, &req) {
		return
	}
	role, err := access.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}

	member, err := h.workspaces.AddExistingUser(r.Context(), apiContext.AccessFrom(r.Context()), req.Email, role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	errors.WriteJSON(w, http.StatusCreated, member)
}

func (h *MemberHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req MemberRequest
	if !decode(w, r, &req) {
		return
	}
	role, err := access.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}

	userID := apiContext.Param(r.Context(), "user_id")
	if err := h.workspaces.UpdateRole(r.Context(), apiContext.AccessFrom(r.Context()), userID, role); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID := apiContext.Param(r.Context(), "user_id")
	if err := h.workspaces.RemoveMember(r.Context(), apiContext.AccessFrom(r.Context()), userID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
