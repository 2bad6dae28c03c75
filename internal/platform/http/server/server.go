// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/config"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/deps"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/logutil"

	tlspkg "github.com/MahdiBaghbani/fedgraph-go/internal/platform/http/tls"
)

var ErrMissingDeps = errors.New("server: shared deps are required")

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg        *config.Config
	deps       *deps.Deps
	httpServer *http.Server
	logger     *slog.Logger
	services   map[string]service.Service // keyed by service name (wellknown, api, ...)

	// mountedServices tracks services for lifecycle management (Close on shutdown).
	// Stored in mount order; closed in reverse order during shutdown.
	mountedServices []service.Service
}

// New creates a new Server with the given configuration.
// Services are passed as a name->service map; nil entries are safe (skipped at mount time).
func New(cfg *config.Config, d *deps.Deps, logger *slog.Logger, services map[string]service.Service) (*Server, error) {
	if d == nil {
		return nil, ErrMissingDeps
	}
	logger = logutil.NoopIfNil(logger)

	s := &Server{
		cfg:      cfg,
		deps:     d,
		logger:   logger,
		services: services,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the root handler with all middleware and services mounted.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server. It blocks until the server is shut down.
func (s *Server) Start() error {
	u, err := url.Parse(s.cfg.PublicOrigin)
	if err != nil {
		return fmt.Errorf("failed to derive TLS hostname: %w", err)
	}
	tlsConfig, err := tlspkg.ServerConfig(&s.cfg.TLS, u.Hostname(), s.logger)
	if err != nil {
		return fmt.Errorf("failed to configure TLS: %w", err)
	}

	s.logger.Info("starting server",
		"addr", s.cfg.ListenAddr,
		"public_origin", s.cfg.PublicOrigin,
		"tls_mode", s.cfg.TLS.Mode,
		"store", s.deps.Store.Name(),
	)

	if tlsConfig == nil {
		return s.httpServer.ListenAndServe()
	}
	s.httpServer.TLSConfig = tlsConfig
	// Certificates come from TLSConfig.
	return s.httpServer.ListenAndServeTLS("", "")
}

// Shutdown gracefully shuts down the server and all mounted services.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	httpErr := s.httpServer.Shutdown(ctx)

	// Close services in reverse mount order (last mounted = first closed)
	for i := len(s.mountedServices) - 1; i >= 0; i-- {
		svc := s.mountedServices[i]
		prefix := svc.Prefix()
		if prefix == "" {
			prefix = "(root)"
		}
		if err := svc.Close(); err != nil {
			// Best-effort: keep closing the rest.
			s.logger.Warn("service close error", "service", prefix, "error", err)
		} else {
			s.logger.Debug("service closed", "service", prefix)
		}
	}

	return httpErr
}
