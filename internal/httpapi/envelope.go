package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"voluntra.org/internal/audit"
	"voluntra.org/internal/auth"
	"voluntra.org/internal/events"
	"voluntra.org/internal/permission"
)

const apiVersion = "v1"

// Stable error codes. Clients branch on these; messages are informational.
const (
	CodeUnauthenticated      = "UNAUTHENTICATED"
	CodeProfileNotFound      = "PROFILE_NOT_FOUND"
	CodeNoOrganization       = "NO_ORGANIZATION"
	CodeForbidden            = "FORBIDDEN"
	CodeUnknownPermission    = "UNKNOWN_PERMISSION"
	CodeSubscriptionRequired = "SUBSCRIPTION_REQUIRED"
	CodeNotFound             = "NOT_FOUND"
	CodeUpstreamUnavailable  = "UPSTREAM_UNAVAILABLE"
	CodeValidation           = "VALIDATION_ERROR"
	CodeRateLimited          = "RATE_LIMITED"
	CodeMethodNotAllowed     = "METHOD_NOT_ALLOWED"
	CodeInternal             = "INTERNAL"
)

// Meta accompanies every response.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
	Version   string    `json:"version"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
}

// ErrorDetail is one entry of the errors array.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Envelope is the standard response shape: errors is null on success and a
// non-empty ordered list on failure; data is null on failure. No response
// ever carries partial data.
type Envelope struct {
	Success bool          `json:"success"`
	Data    any           `json:"data"`
	Meta    Meta          `json:"meta"`
	Errors  []ErrorDetail `json:"errors"`
}

func newMeta(r *http.Request) Meta {
	return Meta{
		Timestamp: time.Now().UTC(),
		RequestID: RequestIDFromContext(r.Context()),
		Version:   apiVersion,
		Method:    r.Method,
		Path:      r.URL.Path,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult wraps a success payload in the standard envelope.
func writeResult(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, Envelope{
		Success: true,
		Data:    data,
		Meta:    newMeta(r),
	})
}

// writeErrors wraps explicit error details in the standard envelope.
func writeErrors(w http.ResponseWriter, r *http.Request, status int, details ...ErrorDetail) {
	writeJSON(w, status, Envelope{
		Success: false,
		Data:    nil,
		Meta:    newMeta(r),
		Errors:  details,
	})
}

// writeFailure maps a pipeline or service error to its single external
// status and code.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrCrossTenant) {
		// Internally distinct from NotFound for audit and metrics, but
		// surfaced identically so existence never leaks across tenants.
		_ = audit.LogEvent(r.Context(), "authz.cross_tenant_denied", map[string]any{
			"path": r.URL.Path,
		})
	}
	status, detail := mapError(err)
	writeErrors(w, r, status, detail)
}

func mapError(err error) (int, ErrorDetail) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrorDetail{Code: CodeUnauthenticated, Message: "authentication required"}
	case errors.Is(err, auth.ErrProfileNotFound):
		return http.StatusForbidden, ErrorDetail{Code: CodeProfileNotFound, Message: "no profile for this identity"}
	case errors.Is(err, auth.ErrNoOrganization):
		return http.StatusForbidden, ErrorDetail{Code: CodeNoOrganization, Message: "profile has no organization"}
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, ErrorDetail{Code: CodeForbidden, Message: "insufficient role"}
	case errors.Is(err, auth.ErrUnknownPermission):
		return http.StatusInternalServerError, ErrorDetail{Code: CodeUnknownPermission, Message: "permission is not configured"}
	case errors.Is(err, auth.ErrSubscriptionRequired):
		return http.StatusPaymentRequired, ErrorDetail{Code: CodeSubscriptionRequired, Message: "an active subscription is required"}
	case errors.Is(err, auth.ErrCrossTenant), errors.Is(err, auth.ErrNotFound), errors.Is(err, events.ErrNotFound):
		return http.StatusNotFound, ErrorDetail{Code: CodeNotFound, Message: "resource not found"}
	case errors.Is(err, auth.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, ErrorDetail{Code: CodeUpstreamUnavailable, Message: "a required backend is unavailable"}
	case errors.Is(err, events.ErrInvalidInput), errors.Is(err, permission.ErrInvalidInput):
		return http.StatusBadRequest, ErrorDetail{Code: CodeValidation, Message: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorDetail{Code: CodeInternal, Message: "internal error"}
	}
}
