package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/mimir/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeDomainError maps a service error onto an HTTP status. Anything that
// is not a known domain error is logged and reported as a 500 without
// leaking the internal message.
func writeDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrEnvelopeNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("document not found"))
	case errors.Is(err, apperr.ErrVersionNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("version not found"))
	case errors.Is(err, apperr.ErrUnsupportedFormat):
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported format"))
	case errors.Is(err, apperr.ErrInvalidConfig):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
