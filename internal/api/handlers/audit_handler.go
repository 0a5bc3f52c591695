package handlers

import (
	"net/http"

	apiContext "agencycrm/internal/api/context"
	"agencycrm/internal/engine/access"
	"agencycrm/internal/pkg/errors"
	"agencycrm/internal/platform/audit"
)

type AuditHandler struct {
	audit *audit.Logger
}

func NewAuditHandler(logger *audit.Logger) *AuditHandler {
	return &AuditHandler{audit: logger}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	a := apiContext.AccessFrom(r.Context())
	if err := a.Require(access.AuditView); err != nil {
		writeError(w, r, err)
		return
	}

	limit, offset := pagination(r)
	logs, err := h.audit.List(r.Context(), a.WorkspaceID(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}
