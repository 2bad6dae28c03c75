// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package api provides the /api/* endpoints: the dialback verification
// callback, object reads, and object pushes and retractions by
// authenticated peers.
package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/fedgraph-go/internal/components/api"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/dialback"
	"github.com/MahdiBaghbani/fedgraph-go/internal/frameworks/service"
	svccfg "github.com/MahdiBaghbani/fedgraph-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/fedgraph-go/internal/frameworks/service/httpwrap"
	"github.com/MahdiBaghbani/fedgraph-go/internal/interceptors"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/deps"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/logutil"
)

func init() {
	service.MustRegister("api", New)
}

// Config holds api service configuration.
type Config struct {
	// MaxBodyBytes caps pushed object documents. Default: 1 MiB.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	// Ratelimit holds rate limiting configuration for this service.
	Ratelimit RatelimitConfig `mapstructure:"ratelimit"`
}

// RatelimitConfig holds the per-service rate limiting opt-in.
type RatelimitConfig struct {
	// Profile is the name of the ratelimit profile to use from
	// [http.interceptors.ratelimit.profiles.<name>]. It guards the dialback
	// callback and object writes.
	Profile string `mapstructure:"profile"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
}

// Service is the API service.
type Service struct {
	router chi.Router
	conf   *Config
	log    *slog.Logger
}

// New creates a new API service.
func New(m map[string]any, d *deps.Deps, log *slog.Logger) (service.Service, error) {
	log = logutil.NoopIfNil(log)

	var c Config
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "api", "unused_keys", unused)
	}

	limit := func(h http.Handler) http.Handler { return h }
	if c.Ratelimit.Profile != "" {
		mw, err := interceptors.FromProfile(d, "ratelimit", c.Ratelimit.Profile, log)
		if err != nil {
			return nil, fmt.Errorf("api: failed to create ratelimit interceptor: %w", err)
		}
		limit = mw
	}

	oh := &objectHandler{
		objects:      d.Objects,
		maxBodyBytes: c.MaxBodyBytes,
	}

	r := chi.NewRouter()

	r.Get("/healthz", api.HealthHandler(d.Store.Name()))

	// Verification callback for challenges this server issued.
	r.With(limit).Post("/dialback", dialback.Handler(d.Verifier))

	// Objects. Writes are gated by dialback authentication.
	r.With(limit).Post("/objects", oh.handlePush)
	r.Get("/{type}/{uuid}", oh.handleGet)
	r.Delete("/{type}/{uuid}", oh.handleDelete)

	return &Service{router: r, conf: &c, log: log}, nil
}

// Handler returns the service's HTTP handler with RawPath clearing.
func (s *Service) Handler() http.Handler {
	return httpwrap.ClearRawPath(s.router)
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "api"
}

// Unprotected returns paths that don't require dialback authentication.
func (s *Service) Unprotected() []string {
	return []string{"/healthz", "/dialback", "GET /{type}/{uuid}"}
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}
