// Package ops serves the operator endpoints: health probes and on-demand sweeps.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"stockfolio/internal/domain"
	"stockfolio/internal/usecase"
)

// Check probes one dependency
type Check func(ctx context.Context) error

// SweepRunner runs a fleet-wide sweep on demand
type SweepRunner interface {
	RunNow(ctx context.Context, kind usecase.SweepKind) (usecase.SweepResult, error)
}

// BrokerHealth probes every registered broker bridge
type BrokerHealth interface {
	HealthCheck(ctx context.Context) map[domain.Broker]error
}

// Config holds server configuration
type Config struct {
	Addr    string
	Checks  map[string]Check // e.g. "postgres", "redis"
	Brokers BrokerHealth
	Sweeps  SweepRunner
	Log     zerolog.Logger
}

// Server represents the ops HTTP server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	checks  map[string]Check
	brokers BrokerHealth
	sweeps  SweepRunner
	log     zerolog.Logger
}

// New creates a new ops server
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		checks:  cfg.Checks,
		brokers: cfg.Brokers,
		sweeps:  cfg.Sweeps,
		log:     cfg.Log.With().Str("component", "ops").Logger(),
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)

	s.router.Get("/health", s.handleHealth)
	s.router.Post("/sync/trigger", s.handleTrigger)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute, // sweeps run inline
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting ops server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down ops server")
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Brokers    map[string]string `json:"brokers,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "healthy", Components: make(map[string]string, len(s.checks))}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			resp.Components[name] = err.Error()
			resp.Status = "unhealthy"
			continue
		}
		resp.Components[name] = "ok"
	}

	// Broker bridges being down degrades syncing but not the service itself
	if s.brokers != nil {
		resp.Brokers = make(map[string]string)
		for broker, err := range s.brokers.HealthCheck(ctx) {
			if err != nil {
				resp.Brokers[string(broker)] = err.Error()
				if resp.Status == "healthy" {
					resp.Status = "degraded"
				}
				continue
			}
			resp.Brokers[string(broker)] = "ok"
		}
	}

	status := http.StatusOK
	if resp.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	kind, err := usecase.ParseSweepKind(r.URL.Query().Get("kind"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.log.Info().Str("kind", string(kind)).Msg("Manual sweep requested")
	result, err := s.sweeps.RunNow(context.WithoutCancel(r.Context()), kind)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
