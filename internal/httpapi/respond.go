package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/oesperto/comparador/internal/offline"
	"github.com/oesperto/comparador/internal/repositories"
	"github.com/oesperto/comparador/internal/services"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", services.ErrValidation, err)
	}
	return nil
}

// writeError maps domain errors to status codes. Unexpected errors are logged
// and reported without detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repositories.ErrNotFound), errors.Is(err, offline.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrEmailExists):
		return http.StatusConflict
	case errors.Is(err, offline.ErrQueueFull):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}
