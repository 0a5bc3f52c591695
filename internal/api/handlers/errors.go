package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"agencycrm/internal/engine/access"
	"agencycrm/internal/engine/invites"
	"agencycrm/internal/engine/records"
	"agencycrm/internal/engine/workspaces"
	"agencycrm/internal/pkg/errors"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// Checked in order; the first match wins.
var errorMappings = []errorMapping{
	{access.ErrUnauthenticated, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Authentication required"},
	{access.ErrForbidden, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions"},
	{workspaces.ErrInvalidCredentials, http.StatusUnauthorized, errors.ErrCodeInvalidCredentials, "Invalid email or password"},
	{invites.ErrInvalidInvite, http.StatusNotFound, errors.ErrCodeInvalidInvite, "Invite not found"},
	{invites.ErrEmailMismatch, http.StatusForbidden, errors.ErrCodeEmailMismatch, "This invite was sent to a different email address"},
	{invites.ErrInviteExpired, http.StatusGone, errors.ErrCodeInviteExpired, "This invite has expired"},
	{invites.ErrInviteNotPending, http.StatusConflict, errors.ErrCodeInviteNotPending, "This invite is no longer pending"},
	{workspaces.ErrLastOwner, http.StatusBadRequest, errors.ErrCodeLastOwner, "A workspace must keep at least one owner"},
	{workspaces.ErrDirectOwner, http.StatusBadRequest, errors.ErrCodeDirectOwner, "The workspace creator cannot be removed or demoted"},
	{workspaces.ErrEmailTaken, http.StatusConflict, errors.ErrCodeConflict, "An account with this email already exists"},
	{workspaces.ErrAlreadyMember, http.StatusConflict, errors.ErrCodeConflict, "User already belongs to this workspace"},
	{workspaces.ErrUserNotFound, http.StatusNotFound, errors.ErrCodeNotFound, "User not found"},
	{workspaces.ErrMemberNotFound, http.StatusNotFound, errors.ErrCodeNotFound, "Member not found"},
	{records.ErrNotFound, http.StatusNotFound, errors.ErrCodeNotFound, "Record not found"},
	{records.ErrInvoiceLocked, http.StatusConflict, errors.ErrCodeInvoiceLocked, "Only draft invoices can be edited"},
	{records.ErrAlreadyPaid, http.StatusConflict, errors.ErrCodeConflict, "Invoice is already paid"},
}

// writeError maps a service error to the JSON error envelope. Unrecognised
// errors are logged and reported as 500 without their message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var violation *access.PolicyViolation
	if stderrors.As(err, &violation) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodePolicyViolation, "Your role cannot change these fields", map[string]interface{}{
			"policy": violation.Policy,
			"fields": violation.Fields,
		})
		return
	}

	var unknown *access.UnknownFieldError
	if stderrors.As(err, &unknown) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeUnknownField, "Unknown fields in request", map[string]interface{}{
			"fields": unknown.Fields,
		})
		return
	}

	if stderrors.Is(err, workspaces.ErrInvalidInput) || stderrors.Is(err, records.ErrInvalidInput) || stderrors.Is(err, access.ErrUnknownRole) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	for _, m := range errorMappings {
		if stderrors.Is(err, m.target) {
			errors.WriteError(w, m.status, m.code, m.message, nil)
			return
		}
	}

	log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
	errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal server error", nil)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return false
	}
	return true
}

// pagination reads limit and offset, defaulting to 50 and 0. Limits are
// capped at 200.
func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	q := r.URL.Query()
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = n
	}
	if limit > 200 {
		limit = 200
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		offset = n
	}
	return limit, offset
}
