// Package web provides the HTTP API for parsing, importing and writing CSV
// with the registered schemas.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/csvbind/internal/config"
	"github.com/JonMunkholm/csvbind/internal/core"
	"github.com/JonMunkholm/csvbind/internal/sink"
	weblog "github.com/JonMunkholm/csvbind/internal/web/middleware"
)

// Server is the HTTP server of csvbind.
type Server struct {
	cfg     *config.Config
	opts    core.Options
	catalog *core.Catalog
	open    sink.Opener
	limiter *core.ParseLimiter
	logger  *slog.Logger

	router *chi.Mux
	server *http.Server
}

// NewServer creates a Server. A nil open disables /api/import.
func NewServer(cfg *config.Config, catalog *core.Catalog, open sink.Opener, logger *slog.Logger) *Server {
	if open == nil {
		open = sink.None
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		opts:    cfg.EngineOptions(),
		catalog: catalog,
		open:    open,
		limiter: core.NewParseLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		logger:  logger,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(weblog.Logger)
	s.router.Use(middleware.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/schemas", s.handleListSchemas)
		r.Get("/schemas/{schema}", s.handleGetSchema)
		r.Get("/template/{schema}", s.handleTemplate)

		r.Post("/parse/{schema}", s.handleParse)
		r.Post("/import/{schema}", s.handleImport)
		r.Post("/format/{schema}", s.handleFormat)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight parses.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.limiter.WaitForDrain(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are logged since headers are already sent.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("json encode error", "error", err)
	}
}
