// Package api holds the JSON envelope every HTTP handler responds with.
package api

import (
	"net/http"
	"strconv"
)

// Shared error codes. Handlers add their own domain codes next to these.
const (
	CodeInvalidJSON = "INVALID_JSON"
	CodeInternal    = "INTERNAL"
	CodeNotReady    = "NOT_READY"
)

// ErrorResponse is the body of every non-2xx response:
//
//	{"error":{"code":"POST_NOT_FOUND","message":"...","request_id":"..."}}
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, message, requestID string, details map[string]any) {
	WriteJSON(w, status, ErrorResponse{Error: ErrorBody{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: requestID,
	}})
}

func BadRequest(w http.ResponseWriter, code, message, requestID string, details map[string]any) {
	WriteError(w, http.StatusBadRequest, code, message, requestID, details)
}

func Unauthorized(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusUnauthorized, code, message, requestID, nil)
}

func Forbidden(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusForbidden, code, message, requestID, nil)
}

func NotFound(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusNotFound, code, message, requestID, nil)
}

// RateLimited also sets Retry-After when retryAfterSec is positive.
func RateLimited(w http.ResponseWriter, code, message, requestID string, retryAfterSec int) {
	var details map[string]any
	if retryAfterSec > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
		details = map[string]any{"retry_after_sec": retryAfterSec}
	}
	WriteError(w, http.StatusTooManyRequests, code, message, requestID, details)
}

// ServiceUnavailable answers 503 NOT_READY.
func ServiceUnavailable(w http.ResponseWriter, message, requestID string) {
	WriteError(w, http.StatusServiceUnavailable, CodeNotReady, message, requestID, nil)
}

// Internal hides the cause; callers log it.
func Internal(w http.ResponseWriter, requestID string) {
	WriteError(w, http.StatusInternalServerError, CodeInternal, "Internal server error", requestID, nil)
}
