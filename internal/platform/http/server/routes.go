// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package server

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MahdiBaghbani/fedgraph-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/http/auth"
	httpmw "github.com/MahdiBaghbani/fedgraph-go/internal/platform/http/middleware"
)

// RouteGroup defines an endpoint group with its auth requirements.
type RouteGroup struct {
	Name         string
	PathPrefix   string
	RequiresAuth bool
}

// routeGroups defines all endpoint groups and their auth requirements.
// This table is the single source of truth for routing decisions.
var routeGroups = []RouteGroup{
	{Name: "well-known", PathPrefix: "/.well-known", RequiresAuth: false}, // discovery, always public
	{Name: "metrics", PathPrefix: "/metrics", RequiresAuth: false},
	{Name: "api", PathPrefix: "/api", RequiresAuth: true}, // exceptions via Service.Unprotected()
}

// GetRouteGroups returns the route group definitions for testing.
func GetRouteGroups() []RouteGroup {
	return routeGroups
}

// IsAuthRequired checks if a request must carry dialback authentication.
// Unprotected patterns declared by mountedServices win over the route
// group table. Unknown paths require auth.
func IsAuthRequired(r *http.Request, mountedServices []service.Service) bool {
	for _, svc := range mountedServices {
		if svc == nil {
			continue
		}
		base := ""
		if prefix := svc.Prefix(); prefix != "" {
			base = "/" + prefix
		}
		for _, pattern := range svc.Unprotected() {
			if auth.MatchPattern(r, qualify(base, pattern)) {
				return false
			}
		}
	}

	for _, rg := range routeGroups {
		if auth.MatchPath(r.URL.Path, rg.PathPrefix) {
			return rg.RequiresAuth
		}
	}
	return true
}

// qualify prefixes the path part of an unprotected pattern with base,
// keeping an optional leading method.
func qualify(base, pattern string) string {
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '/' {
			return pattern[:i] + base + pattern[i:]
		}
	}
	return pattern
}

// mountService mounts a service and tracks it for lifecycle management.
func (s *Server) mountService(r chi.Router, svc service.Service) {
	if svc == nil {
		return
	}
	if prefix := svc.Prefix(); prefix == "" {
		r.Mount("/", svc.Handler())
	} else {
		r.Mount("/"+prefix, svc.Handler())
	}
	s.mountedServices = append(s.mountedServices, svc)
}

// setupRoutes creates the chi router with all route groups mounted.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	// Always-on transport middleware (order is invariant):
	// RequestID -> request-scoped logger -> access log -> recoverer -> auth gate
	r.Use(chimw.RequestID)
	r.Use(httpmw.RequestLoggerMiddleware(s.logger))
	r.Use(httpmw.AccessLogMiddleware(s.logger))
	r.Use(chimw.Recoverer)

	var authn auth.Authenticator
	if s.deps.Authenticator != nil {
		authn = s.deps.Authenticator
	}
	// The closure reads s.mountedServices at request time.
	r.Use(auth.NewAuthGate(auth.AuthGateConfig{
		RequireAuth:   func(req *http.Request) bool { return IsAuthRequired(req, s.mountedServices) },
		Log:           s.logger,
		Authenticator: authn,
	}))

	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Metrics, promhttp.HandlerOpts{}))
	}

	// Prefixed services first; a root mount catches everything else.
	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	sort.Strings(names)
	var root []service.Service
	for _, name := range names {
		svc := s.services[name]
		if svc == nil {
			continue
		}
		if svc.Prefix() == "" {
			root = append(root, svc)
			continue
		}
		s.mountService(r, svc)
	}
	for _, svc := range root {
		s.mountService(r, svc)
	}

	return r
}
