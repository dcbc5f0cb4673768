package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. The status code is derived from the error type
//  4. Error is mapped via core.MapError to get user-friendly message
//  5. Technical error + context is logged with request ID for correlation
//  6. User message is returned as JSON, with per-line problems for rejected batches

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/bso/internal/core"
	"github.com/JonMunkholm/bso/internal/lock"
	"github.com/JonMunkholm/bso/internal/logging"
	"github.com/JonMunkholm/bso/internal/release"
	"github.com/JonMunkholm/bso/internal/store"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error    string    `json:"error"`
	Message  string    `json:"message"`
	Action   string    `json:"action,omitempty"`
	Code     string    `json:"code"`
	Problems []Problem `json:"problems,omitempty"`
}

// Problem is one rejected request within a release batch.
// Index is the zero-based position in the submitted lines, or -1 for the batch.
type Problem struct {
	Index   int    `json:"index"`
	LineID  string `json:"lineId,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// badRequestError marks errors caused by an unreadable request.
type badRequestError struct{ err error }

func (e *badRequestError) Error() string { return "invalid request body: " + e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	var (
		verrs release.ValidationErrors
		bad   *badRequestError
	)
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.As(err, &verrs), errors.Is(err, release.ErrUnknownUnit):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, release.ErrStaleLine), errors.Is(err, lock.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyReleases):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fallbackRetryAfter is sent with a 503 when the error carries no hint.
const fallbackRetryAfter = 5 * time.Second

// retryAfter returns the Retry-After seconds for a busy limiter, rounded up.
func retryAfter(err error) int {
	d := fallbackRetryAfter
	var busy *core.BusyError
	if errors.As(err, &busy) && busy.RetryAfter > 0 {
		d = busy.RetryAfter
	}
	return int(math.Ceil(d.Seconds()))
}

// respondError logs the technical error server-side and writes a
// user-friendly JSON error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	uerr := core.NewUserError(err)

	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", uerr.Technical.Error(),
		"code", uerr.User.Code,
	}
	logger := logging.FromContext(r.Context())
	if status >= 500 {
		logger.Error("request error", attrs...)
	} else {
		logger.Debug("request error", attrs...)
	}

	resp := ErrorResponse{
		Error:   uerr.Error(),
		Message: uerr.User.Message,
		Action:  uerr.User.Action,
		Code:    uerr.User.Code,
	}

	var verrs release.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Problems = make([]Problem, len(verrs))
		for i, v := range verrs {
			msg := v.Message
			if msg == "" {
				msg = core.MapCode(v.Code).Message
			}
			resp.Problems[i] = Problem{Index: v.Index, LineID: v.LineID, Code: string(v.Code), Message: msg}
		}
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter(err)))
	}
	writeJSON(w, status, resp)
}
