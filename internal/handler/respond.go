package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/libelia/libelia/internal/batch"
	"github.com/libelia/libelia/internal/jobs"
	"github.com/libelia/libelia/internal/ocr"
	"github.com/libelia/libelia/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError renders the structured failure shape with a status derived from err.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "error", err)
	} else {
		slog.Warn("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

// errBadRequest marks client mistakes such as malformed JSON.
type errBadRequest struct{ err error }

func (e errBadRequest) Error() string { return e.err.Error() }
func (e errBadRequest) Unwrap() error { return e.err }

func badRequest(err error) error { return errBadRequest{err} }

func statusFor(err error) int {
	var bad errBadRequest
	switch {
	case errors.As(err, &bad),
		errors.Is(err, batch.ErrEmptyBatch),
		errors.Is(err, batch.ErrBatchTooLarge),
		errors.Is(err, service.ErrInvalidPayload),
		errors.Is(err, ocr.ErrEmptyDocument),
		errors.Is(err, ocr.ErrTooManyPages):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, ocr.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ocr.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, service.ErrLLMFailed),
		errors.Is(err, ocr.ErrOCRFailed),
		errors.Is(err, ocr.ErrQuotaExceeded):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

var errNotFound = errors.New("not found")
