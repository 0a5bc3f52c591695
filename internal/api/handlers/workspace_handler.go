package handlers

import (
	"net/http"

	apiContext "agencycrm/internal/api/context"
	"agencycrm/internal/engine/access"
	"agencycrm/internal/engine/workspaces"
	"agencycrm/internal/pkg/errors"
)

type WorkspaceHandler struct {
	workspaces *workspaces.Service
}

func NewWorkspaceHandler(workspaceSvc *workspaces.Service) *WorkspaceHandler {
	return &WorkspaceHandler{workspaces: workspaceSvc}
}

func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	a := apiContext.AccessFrom(r.Context())
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"workspace":   h.workspaces.Get(a),
		"permissions": access.PermissionsFor(a.Role),
	})
}

func (h *WorkspaceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req workspaces.UpdateRequest
	if !decode(w, r, &req) {
		return
	}

	ws, err := h.workspaces.Update(r.Context(), apiContext.AccessFrom(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	errors.WriteJSON(w, http.StatusOK, ws)
}

func (h *WorkspaceHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.workspaces.Deactivate(r.Context(), apiContext.AccessFrom(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
