// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package wellknown serves host-meta and webfinger so peers can find this
// server's dialback endpoint and re-discover its actors.
package wellknown

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/fedgraph-go/internal/frameworks/service"
	svccfg "github.com/MahdiBaghbani/fedgraph-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/fedgraph-go/internal/frameworks/service/httpwrap"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/deps"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/logutil"
)

func init() {
	service.MustRegister("wellknown", New)
}

// Config holds wellknown service configuration.
type Config struct {
	// DialbackPath is where the api service answers verification callbacks.
	DialbackPath string `mapstructure:"dialback_path"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.DialbackPath == "" {
		c.DialbackPath = "/api/dialback"
	}
}

type svc struct {
	router chi.Router
	conf   *Config
}

// New creates the wellknown service. Implements service.NewService.
func New(m map[string]any, d *deps.Deps, log *slog.Logger) (service.Service, error) {
	log = logutil.NoopIfNil(log)

	var c Config
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "wellknown", "unused_keys", unused)
	}

	h, err := newHandler(&c, d, log)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Get("/.well-known/host-meta.json", h.hostMeta)
	r.Get("/.well-known/webfinger", h.webfinger)

	return &svc{router: r, conf: &c}, nil
}

// Close implements service.Service.
func (s *svc) Close() error { return nil }

// Prefix implements service.Service. Wellknown mounts at root.
func (s *svc) Prefix() string { return "" }

// Unprotected implements service.Service.
func (s *svc) Unprotected() []string {
	return []string{"/.well-known/host-meta.json", "/.well-known/webfinger"}
}

// Handler implements service.Service.
func (s *svc) Handler() http.Handler { return httpwrap.ClearRawPath(s.router) }
