// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package appctx provides context-based utilities for cross-cutting concerns:
// the request-scoped logger and the remote party authenticated by dialback.
package appctx

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

type remoteKey struct{}

// WithLogger attaches a logger to the context.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFromContext returns the logger from the context (if present).
func LoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	l, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	return l, ok && l != nil
}

// GetLogger returns the logger from the context, or slog.Default() if missing.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := LoggerFromContext(ctx); ok {
		return l
	}
	return slog.Default()
}

// RemoteParty is a remote server or account that proved its identity via dialback.
type RemoteParty struct {
	// Kind is "host" or "webfinger".
	Kind string
	// ID is the domain or the acct address.
	ID string
}

// WithRemoteParty attaches the authenticated remote party to the context.
func WithRemoteParty(ctx context.Context, p RemoteParty) context.Context {
	return context.WithValue(ctx, remoteKey{}, p)
}

// RemotePartyFromContext returns the authenticated remote party, if any.
func RemotePartyFromContext(ctx context.Context) (RemoteParty, bool) {
	p, ok := ctx.Value(remoteKey{}).(RemoteParty)
	return p, ok && p.ID != ""
}
