// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package ratelimit provides a fixed-window rate limiting interceptor on top
// of the cache subsystem.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/components/api"
	svccfg "github.com/MahdiBaghbani/fedgraph-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/fedgraph-go/internal/interceptors"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/deps"
	httpmw "github.com/MahdiBaghbani/fedgraph-go/internal/platform/http/middleware"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/logutil"
)

func init() {
	interceptors.Register("ratelimit", New)
}

// Config is one [http.interceptors.ratelimit.profiles.<name>] table.
type Config struct {
	RequestsPerWindow int64         `mapstructure:"requests_per_window"`
	Window            time.Duration `mapstructure:"window"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.RequestsPerWindow <= 0 {
		c.RequestsPerWindow = 100
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
}

type counter interface {
	Increment(ctx context.Context, key string, delta int64, window time.Duration) (int64, time.Time, error)
}

// Limiter counts requests per key in fixed windows.
type Limiter struct {
	cache   counter
	keyFunc func(*http.Request) string
	limit   int64
	window  time.Duration
	log     *slog.Logger
}

// New creates a ratelimit interceptor from a profile config map.
func New(conf map[string]any, d *deps.Deps, log *slog.Logger) (interceptors.Middleware, error) {
	var c Config
	if err := svccfg.DecodeStrict(conf, &c); err != nil {
		return nil, fmt.Errorf("ratelimit profile: %w", err)
	}

	limiter := &Limiter{
		cache:   d.Cache,
		keyFunc: PartyOrIP,
		limit:   c.RequestsPerWindow,
		window:  c.Window,
		log:     logutil.NoopIfNil(log),
	}
	return limiter.Wrap, nil
}

// PartyOrIP keys by the authenticated remote party when there is one and by
// client IP otherwise.
func PartyOrIP(r *http.Request) string {
	if p, ok := appctx.RemotePartyFromContext(r.Context()); ok {
		return "party:" + p.Kind + "=" + p.ID
	}
	return "ip:" + httpmw.ClientIP(r)
}

// Wrap is the middleware function that applies rate limiting.
func (l *Limiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, resetAt, err := l.cache.Increment(r.Context(), "ratelimit:"+l.keyFunc(r), 1, l.window)
		if err != nil {
			// Fail open.
			l.log.Warn("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if count > l.limit {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			api.WriteTooManyRequests(w, "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WithKeyFunc returns a copy of the limiter keyed by fn.
func (l *Limiter) WithKeyFunc(fn func(*http.Request) string) *Limiter {
	c := *l
	c.keyFunc = fn
	return &c
}
