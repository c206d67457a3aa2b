package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/mediclaim/internal/cache"
	"github.com/ppiankov/mediclaim/internal/model"
	"github.com/ppiankov/mediclaim/internal/pipeline"
	"github.com/ppiankov/mediclaim/internal/ratelimit"
)

// Config holds router dependencies
type Config struct {
	Orchestrator *pipeline.Orchestrator
	Store        *cache.ResultStore // optional
	Limiter      *ratelimit.Limiter // optional; nil disables per-client limits
	Logger       *slog.Logger
	Metrics      http.Handler // defaults to the global prometheus registry
}

// New creates a chi router with all routes configured
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	h := &handlers{
		orch:   cfg.Orchestrator,
		store:  cfg.Store,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stages", h.stages)
		r.Get("/capabilities", h.capabilities)

		r.Route("/claims", func(r chi.Router) {
			if cfg.Limiter != nil {
				r.Use(rateLimit(cfg.Limiter))
			}
			r.Post("/analyze", h.analyze)
			r.Get("/stream", h.stream)
			r.Get("/{claimID}/analysis", h.getAnalysis)
		})
	})

	return r
}

// NewHTTPServer wraps a handler with the configured timeouts
func NewHTTPServer(cfg model.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
}

type errorResponse struct {
	RunID  string                   `json:"run_id,omitempty"`
	Error  string                   `json:"error"`
	Kind   model.ErrorKind          `json:"kind,omitempty"`
	Events []pipeline.ProgressEvent `json:"events,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
