package errors

import (
	"encoding/json"
	"net/http"
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodePolicyViolation    = "POLICY_VIOLATION"
	ErrCodeInvalidInvite      = "INVALID_INVITE"
	ErrCodeEmailMismatch      = "EMAIL_MISMATCH"
	ErrCodeInviteExpired      = "INVITE_EXPIRED"
	ErrCodeInviteNotPending   = "INVITE_NOT_PENDING"
	ErrCodeLastOwner          = "LAST_OWNER"
	ErrCodeDirectOwner        = "DIRECT_OWNER"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUnknownField       = "UNKNOWN_FIELD"
	ErrCodeInvoiceLocked      = "INVOICE_LOCKED"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
		Details: details,
	})
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
