package handlers

import (
	"context"
	"net/http"

	apiContext "agencycrm/internal/api/context"
	"agencycrm/internal/engine/access"
	"agencycrm/internal/engine/records"
	"agencycrm/internal/pkg/errors"
)

// RecordHandler serves projects and invoices. Every response body has already
// been passed through the field sanitizer for the caller's role.
type RecordHandler struct {
	records *records.Service
}

func NewRecordHandler(recordSvc *records.Service) *RecordHandler {
	return &RecordHandler{records: recordSvc}
}

type (
	createFunc func(context.Context, *access.Access, records.Payload) (access.Record, error)
	getFunc    func(context.Context, *access.Access, string) (access.Record, error)
	listFunc   func(context.Context, *access.Access, records.ListParams) ([]access.Record, error)
	updateFunc func(context.Context, *access.Access, string, records.Payload) (access.Record, error)
	deleteFunc func(context.Context, *access.Access, string) error
)

func listParams(r *http.Request) records.ListParams {
	limit, offset := pagination(r)
	q := r.URL.Query()
	return records.ListParams{Query: q.Get("q"), Status: q.Get("status"), Limit: limit, Offset: offset}
}

func (h *RecordHandler) create(fn createFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload records.Payload
		if !decode(w, r, &payload) {
			return
		}
		rec, err := fn(r.Context(), apiContext.AccessFrom(r.Context()), payload)
		if err != nil {
			writeError(w, r, err)
			return
		}
		errors.WriteJSON(w, http.StatusCreated, rec)
	}
}

func (h *RecordHandler) get(param string, fn getFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := fn(r.Context(), apiContext.AccessFrom(r.Context()), apiContext.Param(r.Context(), param))
		if err != nil {
			writeError(w, r, err)
			return
		}
		errors.WriteJSON(w, http.StatusOK, rec)
	}
}

func (h *RecordHandler) list(key string, fn listFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := fn(r.Context(), apiContext.AccessFrom(r.Context()), listParams(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		errors.WriteJSON(w, http.StatusOK, map[string]interface{}{key: recs})
	}
}

func (h *RecordHandler) update(param string, fn updateFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload records.Payload
		if !decode(w, r, &payload) {
			return
		}
		rec, err := fn(r.Context(), apiContext.AccessFrom(r.Context()), apiContext.Param(r.Context(), param), payload)
		if err != nil {
			writeError(w, r, err)
			return
		}
		errors.WriteJSON(w, http.StatusOK, rec)
	}
}

func (h *RecordHandler) remove(param string, fn deleteFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context(), apiContext.AccessFrom(r.Context()), apiContext.Param(r.Context(), param)); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Projects

func (h *RecordHandler) CreateProject() http.HandlerFunc {
	return h.create(h.records.CreateProject)
}

func (h *RecordHandler) GetProject() http.HandlerFunc {
	return h.get("project_id", h.records.GetProject)
}

func (h *RecordHandler) ListProjects() http.HandlerFunc {
	return h.list("projects", h.records.ListProjects)
}

func (h *RecordHandler) UpdateProject() http.HandlerFunc {
	return h.update("project_id", h.records.UpdateProject)
}

func (h *RecordHandler) ArchiveProject() http.HandlerFunc {
	return h.get("project_id", h.records.ArchiveProject)
}

func (h *RecordHandler) RestoreProject() http.HandlerFunc {
	return h.get("project_id", h.records.RestoreProject)
}

func (h *RecordHandler) DeleteProject() http.HandlerFunc {
	return h.remove("project_id", h.records.DeleteProject)
}

// Invoices

func (h *RecordHandler) CreateInvoice() http.HandlerFunc {
	return h.create(h.records.CreateInvoice)
}

func (h *RecordHandler) GetInvoice() http.HandlerFunc {
	return h.get("invoice_id", h.records.GetInvoice)
}

func (h *RecordHandler) ListInvoices() http.HandlerFunc {
	return h.list("invoices", h.records.ListInvoices)
}

func (h *RecordHandler) UpdateInvoice() http.HandlerFunc {
	return h.update("invoice_id", h.records.UpdateInvoice)
}

func (h *RecordHandler) ArchiveInvoice() http.HandlerFunc {
	return h.get("invoice_id", h.records.ArchiveInvoice)
}

func (h *RecordHandler) RestoreInvoice() http.HandlerFunc {
	return h.get("invoice_id", h.records.RestoreInvoice)
}

func (h *RecordHandler) MarkPaid() http.HandlerFunc {
	return h.get("invoice_id", h.records.MarkPaid)
}

func (h *RecordHandler) DeleteInvoice() http.HandlerFunc {
	return h.remove("invoice_id", h.records.DeleteInvoice)
}
