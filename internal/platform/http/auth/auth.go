// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package auth provides the dialback authentication gate for HTTP servers.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/MahdiBaghbani/fedgraph-go/internal/components/api"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/logutil"
)

// Authenticator turns a handler into one that only runs for requests whose
// remote party proved its identity, with that party in the context.
type Authenticator interface {
	Middleware(next http.Handler) http.Handler
}

// AuthGateConfig configures the auth gate middleware.
type AuthGateConfig struct {
	// RequireAuth returns true if the request must be authenticated.
	// Constructed by the server at router setup time using IsAuthRequired().
	RequireAuth func(r *http.Request) bool

	// Log is the base logger for auth-related warnings and errors.
	Log *slog.Logger

	// Authenticator verifies dialback-signed requests.
	// May be nil only if RequireAuth always returns false (tests only).
	Authenticator Authenticator
}

// NewAuthGate returns a middleware that enforces dialback authentication.
// If RequireAuth returns false for the request, it passes through without
// header parsing or context enrichment.
func NewAuthGate(cfg AuthGateConfig) func(http.Handler) http.Handler {
	cfg.Log = logutil.NoopIfNil(cfg.Log)

	return func(next http.Handler) http.Handler {
		// Enrich handler logger with the remote party (handler-only, not the access log).
		enriched := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if p, ok := appctx.RemotePartyFromContext(ctx); ok {
				ctx = appctx.WithLogger(ctx, appctx.GetLogger(ctx).With("remote_party", p.Kind+"="+p.ID))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
		var protected http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cfg.Log.Error("auth gate has no authenticator", "path", r.URL.Path)
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication unavailable")
		})
		if cfg.Authenticator != nil {
			protected = cfg.Authenticator.Middleware(enriched)
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAuth(r) {
				next.ServeHTTP(w, r)
				return
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// MatchPattern reports whether r matches an unprotected path pattern.
// A pattern is an optional method and a path, "GET /{type}/{uuid}" or
// "/healthz". A "{name}" segment matches any single non-empty segment.
// A pattern without parameters also matches its subpaths.
func MatchPattern(r *http.Request, pattern string) bool {
	method, path, hasMethod := strings.Cut(pattern, " ")
	if !hasMethod {
		path = method
	} else if r.Method != method && !(method == http.MethodGet && r.Method == http.MethodHead) {
		return false
	}
	return MatchPath(r.URL.Path, path)
}

// MatchPath is MatchPattern without the method.
func MatchPath(reqPath, pattern string) bool {
	if !strings.Contains(pattern, "{") {
		return pathMatchesPrefix(reqPath, pattern)
	}
	want := strings.Split(pattern, "/")
	got := strings.Split(reqPath, "/")
	if len(want) != len(got) {
		return false
	}
	for i, seg := range want {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if seg != got[i] {
			return false
		}
	}
	return true
}

// pathMatchesPrefix checks if path equals or is a subpath of prefix.
func pathMatchesPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix) && (strings.HasSuffix(prefix, "/") || path[len(prefix)] == '/')
}
