package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
)

type successEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type errorEnvelope struct {
	Success bool           `json:"success"`
	Error   apperr.Kind    `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "err", err)
	}
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, successEnvelope{Success: true, Message: message, Data: data})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvalidInput, apperr.DuplicateItem, apperr.InsufficientStock, apperr.Validation:
		return http.StatusBadRequest
	case apperr.InvalidTransition, apperr.Conflict:
		return http.StatusConflict
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err in the error envelope. Internal causes are logged
// and replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	env := errorEnvelope{Error: kind, Message: apperr.MessageOf(err)}

	if id, ok := apperr.ItemIDOf(err); ok {
		env.Details = map[string]any{"item_id": id}
	}
	var ve *validationError
	if errors.As(err, &ve) {
		env.Details = map[string]any{"fields": ve.fields}
	}

	if kind == apperr.Internal {
		slog.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"err", err,
		)
	}
	writeJSON(w, statusFor(kind), env)
}
