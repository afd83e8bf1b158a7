package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/libelia/libelia/internal/batch"
	"github.com/libelia/libelia/internal/model"
	"github.com/libelia/libelia/internal/service"
)

const (
	maxJSONBodyBytes   = 8 << 20
	defaultListLimit   = 50
	maxListLimit       = 500
	multipartMemoryCap = 32 << 20
)

var errStoreUnavailable = errors.New("evaluation store not configured")

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest(fmt.Errorf("invalid JSON body: %w", err))
	}
	return nil
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req model.GradingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.Grade(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type batchRequest struct {
	Items []batch.Item `json:"items"`
}

// handleBatch streams one NDJSON record per line: meta, one result per item
// in completion order, then done. Items still running when the batch timeout
// fires are never reported.
func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	orch := h.svc.Batch()
	if err := orch.Validate(len(req.Items)); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.config.BatchTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	emit := func(rec batch.Record) {
		if ctx.Err() != nil {
			return
		}
		if err := enc.Encode(rec); err != nil {
			slog.Warn("write batch record", "error", err)
			return
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			slog.Warn("flush batch record", "error", err)
		}
	}

	if err := orch.Run(ctx, req.Items, emit); err != nil {
		slog.Warn("batch stopped before completion", "items", len(req.Items), "error", err)
	}
}

func (h *Handler) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req model.GradingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	job, err := h.svc.SubmitJob(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"jobId":   job.ID,
		"status":  job.Status,
	})
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Job(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// readUpload returns the bytes and declared content type of a multipart file field.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request, field string) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(multipartMemoryCap); err != nil {
		return nil, "", badRequest(fmt.Errorf("invalid multipart upload: %w", err))
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", badRequest(fmt.Errorf("missing %q file", field))
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.config.MaxUploadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > h.config.MaxUploadBytes {
		return nil, "", badRequest(fmt.Errorf("file exceeds %d bytes", h.config.MaxUploadBytes))
	}
	slog.Debug("upload received", "field", field, "filename", header.Filename, "bytes", len(data))
	return data, header.Header.Get("Content-Type"), nil
}

func (h *Handler) handleOCR(w http.ResponseWriter, r *http.Request) {
	data, mimeType, err := h.readUpload(w, r, "file")
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.svc.ExtractText(r.Context(), data, mimeType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"text":       res.Text,
		"pageCount":  res.PageCount,
		"confidence": res.Confidence,
	})
}

func (h *Handler) handleOMR(w http.ResponseWriter, r *http.Request) {
	if !h.svc.CanReadMarks() {
		writeError(w, service.ErrOMRUnavailable)
		return
	}
	data, mimeType, err := h.readUpload(w, r, "image")
	if err != nil {
		writeError(w, err)
		return
	}
	expected := 0
	if v := strings.TrimSpace(r.FormValue("expectedItems")); v != "" {
		expected, err = strconv.Atoi(v)
		if err != nil || expected < 0 {
			writeError(w, badRequest(fmt.Errorf("invalid expectedItems %q", v)))
			return
		}
	}

	res := h.svc.ReadMarks(r.Context(), data, mimeType, expected)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (h *Handler) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, errStoreUnavailable)
		return
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, badRequest(fmt.Errorf("invalid limit %q", v)))
			return
		}
		limit = min(n, maxListLimit)
	}

	list, err := h.store.ListEvaluations(r.URL.Query().Get("subject"), limit)
	if err != nil {
		writeError(w, fmt.Errorf("list evaluations: %w", err))
		return
	}
	if list == nil {
		list = []model.Evaluation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(list), "evaluations": list})
}

func (h *Handler) getEvaluation(r *http.Request) (*model.Evaluation, error) {
	if h.store == nil {
		return nil, errStoreUnavailable
	}
	id := chi.URLParam(r, "id")
	e, err := h.store.GetEvaluation(id)
	if err != nil {
		return nil, fmt.Errorf("get evaluation %s: %w", id, err)
	}
	if e == nil {
		return nil, fmt.Errorf("evaluation %s: %w", id, errNotFound)
	}
	return e, nil
}

func (h *Handler) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	e, err := h.getEvaluation(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
