package middleware

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/estateauth"
)

// Client-facing error codes. They never name the internal failure kind.
const (
	CodeMissingInput        = "missing_input"
	CodeUnauthenticated     = "unauthenticated"
	CodeForbidden           = "forbidden"
	CodeRateLimited         = "rate_limited"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeInternal            = "internal_error"
)

// Failure is the JSON body of every rejected request.
type Failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	// RetryAfter is whole seconds, set on 429 responses.
	RetryAfter int64 `json:"retryAfter,omitempty"`
}

// StatusFor maps an Engine error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, estateauth.ErrMissingInput):
		return http.StatusBadRequest
	case errors.Is(err, estateauth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, estateauth.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, estateauth.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, estateauth.ErrUnauthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode maps an Engine error to its client-facing code.
func ErrorCode(err error) string {
	switch StatusFor(err) {
	case http.StatusBadRequest:
		return CodeMissingInput
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusServiceUnavailable:
		return CodeUpstreamUnavailable
	case http.StatusUnauthorized:
		return CodeUnauthenticated
	default:
		return CodeInternal
	}
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the uniform failure body for err.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="estateauth"`)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	WriteJSON(w, status, Failure{Success: false, Error: ErrorCode(err)})
}

// WriteRateLimited writes a 429 with a Retry-After hint.
func WriteRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := retrySeconds(retryAfter)
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	WriteJSON(w, http.StatusTooManyRequests, Failure{
		Success:    false,
		Error:      CodeRateLimited,
		RetryAfter: secs,
	})
}

// retrySeconds rounds up so clients never retry inside the window.
func retrySeconds(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	return int64(math.Ceil(d.Seconds()))
}
