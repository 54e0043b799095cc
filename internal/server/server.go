// Package server exposes the Brain query and history operations over a
// read-only JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/valter-silva-au/brain/internal/core"
	"github.com/valter-silva-au/brain/internal/logger"
	"github.com/valter-silva-au/brain/internal/observability"
)

// Deps are the services the API serves from. Events and Stats may be nil
// when the event log could not be opened; their routes then answer 503.
type Deps struct {
	Query    core.QueryEngine
	Temporal core.TemporalQuerier
	Resolver core.AliasResolver
	Events   observability.EventStore
	Stats    observability.StatsCalculator

	// Defaults fill query parameters the request leaves out.
	Defaults core.QueryOptions
}

// Server is the Brain HTTP API server.
type Server struct {
	deps    Deps
	router  chi.Router
	version string
	started time.Time
	now     func() time.Time
}

// New creates a Server over the given services.
func New(deps Deps, version string) *Server {
	if deps.Defaults.Limit == 0 {
		deps.Defaults = core.DefaultQueryOptions()
	}
	s := &Server{
		deps:    deps,
		version: version,
		started: time.Now(),
		now:     time.Now,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("brain serving on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/query", s.handleQuery)
		r.Get("/entities/*", s.handleEntity)
		r.Get("/events", s.handleEvents)
		r.Get("/stats", s.handleStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"events":  s.deps.Events != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrEntityNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidOptions):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
