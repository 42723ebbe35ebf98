// Package server exposes the recommendation pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"teabot/internal/domain"
	"teabot/internal/evaluation"
	"teabot/internal/service"
)

// Pipeline is the subset of service.Recommender the API needs.
type Pipeline interface {
	Recommend(ctx context.Context, req service.Request) (*service.Result, error)
}

// CheckFunc is a readiness probe reported by GET /health.
type CheckFunc func(ctx context.Context) error

// Config tunes the API.
type Config struct {
	Addr string
	// TopN and SystemContext are sent with every recommendation request.
	TopN          int
	SystemContext string
	// RequestTimeout bounds one recommendation; zero disables it.
	RequestTimeout time.Duration
	// InitErr is reported by /health when the pipeline failed to start.
	InitErr error
}

// Server routes the HTTP API. A nil pipeline is allowed: the server still
// starts so that /health can explain what went wrong.
type Server struct {
	pipeline Pipeline
	cfg      Config
	log      *zap.Logger
	metrics  *metrics
	http     *http.Server

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// New creates a server around p.
func New(p Pipeline, cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		pipeline: p,
		cfg:      cfg,
		log:      log,
		metrics:  newMetrics(),
		checks:   make(map[string]CheckFunc),
	}
	writeTimeout := time.Duration(0)
	if cfg.RequestTimeout > 0 {
		writeTimeout = cfg.RequestTimeout + 10*time.Second
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.http.Shutdown(ctx)
}

// AddCheck registers a readiness probe under name.
func (s *Server) AddCheck(name string, fn CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = fn
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)

	r.Post("/recommend", s.handleRecommend)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = writeError(w, http.StatusNotFound, "The requested resource was not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = writeError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})
	return r
}

// RecommendRequest is the body of POST /recommend.
type RecommendRequest struct {
	Query string `json:"query" validate:"required,max=2000"`
}

// RecommendResponse is the reply of POST /recommend. Replies are generated at
// temperature 0 so that the names parse the same way on every call.
type RecommendResponse struct {
	Names []string `json:"names"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = writeError(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if err := validate.Struct(req); err != nil {
		_ = writeError(w, http.StatusBadRequest, "Query cannot be empty", validationDetails(err))
		return
	}
	if s.pipeline == nil {
		_ = writeError(w, http.StatusServiceUnavailable, "Service not initialized", nil)
		return
	}

	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}
	res, err := s.pipeline.Recommend(ctx, service.Request{
		Query:         req.Query,
		TopN:          s.cfg.TopN,
		SystemContext: s.cfg.SystemContext,
		Deterministic: true,
	})
	if err != nil {
		var pe *domain.ProviderError
		if errors.As(err, &pe) {
			s.metrics.providerErrors.WithLabelValues(pe.Provider, pe.Op).Inc()
		}
		s.log.Error("recommendation failed", zap.String("query", req.Query), zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) {
			_ = writeError(w, http.StatusGatewayTimeout, "Recommendation timed out", nil)
			return
		}
		_ = writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	names := evaluation.ParseNames(res.Text)
	s.metrics.recommended.Observe(float64(len(names)))
	_ = writeJSON(w, http.StatusOK, RecommendResponse{Names: names})
}

// HealthResponse is the reply of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		msg := "Service not initialized"
		if s.cfg.InitErr != nil {
			msg += ": " + s.cfg.InitErr.Error()
		}
		_ = writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "error", Message: msg})
		return
	}

	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	s.mu.RUnlock()
	if len(names) == 0 {
		_ = writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for _, name := range names {
		s.mu.RLock()
		fn := s.checks[name]
		s.mu.RUnlock()
		if err := fn(ctx); err != nil {
			resp.Checks[name] = "unhealthy: " + err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "healthy"
	}
	_ = writeJSON(w, status, resp)
}
