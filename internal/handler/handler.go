package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appI18n "github.com/libelia/libelia/internal/i18n"
	"github.com/libelia/libelia/internal/model"
	"github.com/libelia/libelia/internal/service"
)

// EvaluationReader reads stored evaluations.
type EvaluationReader interface {
	GetEvaluation(id string) (*model.Evaluation, error)
	ListEvaluations(subject string, limit int) ([]model.Evaluation, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	svc    *service.Service
	store  EvaluationReader
	config model.AppConfig
}

// New creates a new Handler. store may be nil, which disables the evaluation
// history endpoints.
func New(svc *service.Service, store EvaluationReader) *Handler {
	cfg := svc.Config()
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 300 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	return &Handler{svc: svc, store: store, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/evaluate", h.handleEvaluate)
		r.Post("/evaluate/batch", h.handleBatch)
		r.Post("/jobs", h.handleSubmitJob)
		r.Get("/jobs/{jobID}", h.handleGetJob)
		r.Post("/ocr", h.handleOCR)
		r.Post("/omr", h.handleOMR)
		r.Get("/evaluations", h.handleListEvaluations)
		r.Get("/evaluations/{id}", h.handleGetEvaluation)
	})

	r.Get("/evaluations/{id}/report", h.handleReport)
}

// RouterConfig holds the options of NewRouter.
type RouterConfig struct {
	Lang           string
	AllowedOrigins []string
}

// NewRouter builds the application router with logging, panic recovery,
// CORS and per-request localization.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(appI18n.Middleware(cfg.Lang))
	h.Routes(r)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
}

// logRenderError reports a template render failure after headers were sent.
func logRenderError(err error) {
	if err != nil {
		slog.Error("render error", "error", err)
	}
}
