// internal/respond/respond.go

// Package respond writes JSON responses and converts classified errors into
// status codes with a {"message": ...} body.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"bookswap/internal/errs"

	"github.com/go-chi/chi/v5/middleware"
)

// MessageBody is the body of every error response.
type MessageBody struct {
	Message string `json:"message"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", slog.Any("error", err))
	}
}

// Message writes {"message": msg} with the given status.
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, MessageBody{Message: msg})
}

// Error maps err to a status code. Unclassified errors are logged and
// reported as a generic server error.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	status := Status(kind)
	if kind == errs.Internal {
		slog.ErrorContext(r.Context(), "Request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err))
	}
	Message(w, status, errs.MessageOf(err, "Server error"))
}

// Status returns the HTTP status for an error kind.
func Status(kind errs.Kind) int {
	switch kind {
	case errs.Validation:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Forbidden:
		return http.StatusForbidden
	case errs.Unauthenticated:
		return http.StatusUnauthorized
	case errs.Conflict:
		return http.StatusConflict
	case errs.RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ErrBadBody is returned by Decode for malformed request bodies.
var ErrBadBody = errs.New(errs.Validation, "Invalid request body")

// Decode reads a JSON request body into v.
func Decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Wrap(errs.Validation, ErrBadBody.Message, err)
	}
	return nil
}
