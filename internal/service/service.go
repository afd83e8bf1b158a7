// Package service runs the grading pipeline for one submission
// (LLM evaluation → scoring → persistence) and exposes it to the HTTP
// layer, the batch orchestrator and asynchronous jobs.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/libelia/libelia/internal/batch"
	"github.com/libelia/libelia/internal/jobs"
	"github.com/libelia/libelia/internal/llm"
	"github.com/libelia/libelia/internal/model"
	"github.com/libelia/libelia/internal/ocr"
	"github.com/libelia/libelia/internal/omr"
	"github.com/libelia/libelia/internal/scoring"
)

var (
	ErrGraderUnavailable = errors.New("grading LLM not configured")
	ErrOCRUnavailable    = errors.New("OCR provider not configured")
	ErrOMRUnavailable    = errors.New("document analysis service not configured")
	ErrJobsUnavailable   = errors.New("job runner not configured")
	ErrLLMFailed         = errors.New("LLM evaluation failed")
	ErrInvalidPayload    = errors.New("invalid grading payload")
)

// EvaluationStore records finished evaluations.
type EvaluationStore interface {
	SaveEvaluation(e model.Evaluation) (string, error)
}

// Service grades submissions. Every collaborator except the config is optional;
// operations that need a missing one return the matching Err*Unavailable.
type Service struct {
	grader llm.Grader
	ocr    ocr.Provider
	omr    *omr.Extractor
	store  EvaluationStore
	runner *jobs.Runner
	batch  *batch.Orchestrator
	cfg    model.AppConfig
}

// Option configures a Service.
type Option func(*Service)

func WithGrader(g llm.Grader) Option      { return func(s *Service) { s.grader = g } }
func WithOCR(p ocr.Provider) Option       { return func(s *Service) { s.ocr = p } }
func WithOMR(e *omr.Extractor) Option     { return func(s *Service) { s.omr = e } }
func WithStore(st EvaluationStore) Option { return func(s *Service) { s.store = st } }
func WithJobs(r *jobs.Runner) Option      { return func(s *Service) { s.runner = r } }

// New creates a Service.
func New(cfg model.AppConfig, opts ...Option) *Service {
	if cfg.DefaultApprovalPercent == 0 {
		cfg.DefaultApprovalPercent = model.DefaultApprovalPercent
	}
	s := &Service{cfg: cfg}
	for _, o := range opts {
		o(s)
	}
	s.batch = batch.New(s.GradeItem, cfg.BatchChunkSize, cfg.BatchConcurrency)
	return s
}

// Config returns the runtime configuration.
func (s *Service) Config() model.AppConfig {
	return s.cfg
}

// Batch returns the orchestrator that grades batches through GradeItem.
func (s *Service) Batch() *batch.Orchestrator {
	return s.batch
}

// Grade grades one submission. When req carries no LLM evaluation the
// configured grader is asked for one. The response is stored when a store is
// configured; a storage failure is logged and does not fail the grading.
func (s *Service) Grade(ctx context.Context, req model.GradingRequest) (*model.GradingResponse, error) {
	start := time.Now()
	eval := req.LLMResult
	if eval == nil {
		if s.grader == nil {
			return nil, ErrGraderUnavailable
		}
		var err error
		eval, err = s.grader.Evaluate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLLMFailed, err)
		}
	}

	resp := scoring.Evaluate(req, eval, s.cfg.DefaultApprovalPercent)
	slog.Info("submission graded",
		"student", req.StudentName,
		"subject", req.Subject,
		"score", resp.Score,
		"grade", resp.Grade,
		"warnings", len(resp.Warnings),
		"duration", time.Since(start),
	)

	if s.store != nil {
		obtained, _, _ := scoring.ParseScoreFraction(resp.Score)
		id, err := s.store.SaveEvaluation(model.Evaluation{
			StudentName: req.StudentName,
			Subject:     req.Subject,
			Grade:       resp.Grade,
			Score:       obtained,
			MaxScore:    resp.MaxPoints,
			Response:    resp,
		})
		if err != nil {
			slog.Error("save evaluation", "error", err)
		} else {
			resp.EvaluationID = id
		}
	}
	return &resp, nil
}

// GradeItem is the batch work function: it decodes item.Payload as a
// GradingRequest and grades it.
func (s *Service) GradeItem(ctx context.Context, item batch.Item) (any, error) {
	var req model.GradingRequest
	if err := json.Unmarshal(item.Payload, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	resp, err := s.Grade(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.New("grading failed")
	}
	return resp, nil
}

// SubmitJob grades req in the background and returns the pending job.
func (s *Service) SubmitJob(ctx context.Context, req model.GradingRequest) (*model.Job, error) {
	if s.runner == nil {
		return nil, ErrJobsUnavailable
	}
	return s.runner.Submit(ctx, func(ctx context.Context) (*model.GradingResponse, error) {
		return s.Grade(ctx, req)
	})
}

// Job returns the job with the given ID.
func (s *Service) Job(ctx context.Context, id string) (*model.Job, error) {
	if s.runner == nil {
		return nil, ErrJobsUnavailable
	}
	return s.runner.Store().Get(ctx, id)
}

// ExtractText runs free-text OCR over an uploaded image or PDF.
func (s *Service) ExtractText(ctx context.Context, content []byte, mimeType string) (*ocr.Result, error) {
	if s.ocr == nil {
		return nil, ErrOCRUnavailable
	}
	return s.ocr.ExtractText(ctx, content, ocr.DetectMimeType(content, mimeType))
}

// CanReadMarks reports whether an OMR extractor is configured.
func (s *Service) CanReadMarks() bool {
	return s.omr != nil
}

// ReadMarks reads an OMR answer sheet. Failures are reported in the result.
func (s *Service) ReadMarks(ctx context.Context, content []byte, mimeType string, expectedItems int) model.OMRResult {
	return s.omr.Extract(ctx, content, ocr.DetectMimeType(content, mimeType), expectedItems)
}

// Ping checks that the grading LLM is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if s.grader == nil {
		return ErrGraderUnavailable
	}
	return s.grader.Ping(ctx)
}
