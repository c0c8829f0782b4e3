package middleware

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
)

// ErrMalformedRequest is returned by resolvers that cannot decode the
// request. It maps to 400.
var ErrMalformedRequest = errors.New("malformed request")

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// StatusFor maps an engine error onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, goGuard.ErrRateLimited), errors.Is(err, goGuard.ErrRecoveryRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, goGuard.ErrPolicyDenied):
		return http.StatusForbidden
	case errors.Is(err, goGuard.ErrCredentialPolicy):
		return http.StatusUnprocessableEntity
	case errors.Is(err, goGuard.ErrTokenInvalid):
		return http.StatusNotFound
	case errors.Is(err, ErrMalformedRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes a JSON error for err. retryAfter, when positive, is
// sent as Retry-After in whole seconds rounded up; when zero, the wait
// carried by a goGuard.RetryableError is used.
func WriteError(w http.ResponseWriter, err error, retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = goGuard.RetryAfter(err)
	}
	status := StatusFor(err)
	msg := http.StatusText(status)
	if status == http.StatusUnprocessableEntity {
		msg = "credential rejected"
	}
	writeJSON(w, status, retryAfter, errorBody{Error: msg})
}

func writeDenied(w http.ResponseWriter, d goGuard.Decision) {
	status := StatusFor(d.Err())
	writeJSON(w, status, d.RetryAfter, errorBody{
		Error:  http.StatusText(status),
		Reason: string(d.Reason),
	})
}

func writeJSON(w http.ResponseWriter, status int, retryAfter time.Duration, body errorBody) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(math.Ceil(retryAfter.Seconds())), 10))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
