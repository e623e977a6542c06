package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"nutrilabel/internal/handlers"
	applog "nutrilabel/internal/log"
)

// Config captures the runtime configuration for the HTTP server.
type Config struct {
	Addr           string
	AllowedOrigins []string
	Handlers       *handlers.Handlers
}

// Server wraps an http.Server and exposes helpers for bootstrapping a
// production-ready web service.
type Server struct {
	config     Config
	httpServer *http.Server
}

// New builds a new Server using the provided configuration.
func New(cfg Config) (*Server, error) {
	applog.Debug(context.Background(), "initializing server",
		"addr", cfg.Addr,
		"allowedOrigins", strings.Join(cfg.AllowedOrigins, ","),
	)

	if cfg.Handlers == nil {
		return nil, errors.New("server: handlers must not be nil")
	}
	if len(cfg.AllowedOrigins) == 0 {
		applog.Debug(context.Background(), "allowed origins not provided, allowing all")
		cfg.AllowedOrigins = []string{"*"}
	}

	handler := newRouter(cfg.Handlers, cfg.AllowedOrigins)

	applog.Debug(context.Background(), "http handler chain prepared")

	return &Server{
		config: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Start begins serving HTTP traffic using the underlying http.Server.
func (s *Server) Start() error {
	applog.Debug(context.Background(), "server starting listener", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server with a timeout.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	applog.Debug(ctx, "server initiating graceful shutdown")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured HTTP handler, enabling integration tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
