package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error codes keyed by status. Statuses missing here fall back to "error".
var statusCodes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not_found",
	http.StatusConflict:            "conflict",
	http.StatusLocked:              "account_locked",
	http.StatusTooManyRequests:     "rate_limit_exceeded",
	http.StatusInternalServerError: "internal_error",
	http.StatusServiceUnavailable:  "unavailable",
}

// CodeFor returns the machine-readable code used for status
func CodeFor(status int) string {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	return "error"
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an ErrorResponse with an explicit code
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorWithDetails(w, status, code, message, "")
}

// WriteErrorWithDetails is WriteError plus a details field
func WriteErrorWithDetails(w http.ResponseWriter, status int, code, message, details string) {
	WriteJSON(w, status, ErrorResponse{Error: code, Message: message, Details: details})
}

// WriteStatus writes an ErrorResponse whose code is derived from status
func WriteStatus(w http.ResponseWriter, status int, message string) {
	WriteError(w, status, CodeFor(status), message)
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteStatus(w, http.StatusBadRequest, message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteStatus(w, http.StatusUnauthorized, message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteStatus(w, http.StatusForbidden, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteStatus(w, http.StatusNotFound, message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteStatus(w, http.StatusInternalServerError, message)
}

// WriteTooManyRequests writes a 429. A positive retryAfter also sets the
// Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, message string, retryAfter time.Duration) {
	if retryAfter > 0 {
		SetRetryAfter(w, retryAfter)
	}
	WriteStatus(w, http.StatusTooManyRequests, message)
}

// RetryAfterSeconds rounds d up to whole seconds, never below one
func RetryAfterSeconds(d time.Duration) int64 {
	s := int64((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

// SetRetryAfter sets the Retry-After header in delta-seconds form
func SetRetryAfter(w http.ResponseWriter, d time.Duration) {
	w.Header().Set("Retry-After", strconv.FormatInt(RetryAfterSeconds(d), 10))
}

// SetRateLimit sets the X-RateLimit-* triple. A zero limit sets nothing.
func SetRateLimit(w http.ResponseWriter, limit, remaining int, reset time.Time) {
	if limit == 0 {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
}
