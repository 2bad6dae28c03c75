// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package logutil provides nil-safe logger helpers and secret redaction.
package logutil

import (
	"io"
	"log/slog"
)

// noop is a package-level discard logger, created once.
var noop = slog.New(slog.NewTextHandler(io.Discard, nil))

// Noop returns a logger that discards all output.
func Noop() *slog.Logger { return noop }

// NoopIfNil returns l when non-nil, otherwise a discard logger.
// Intended as the first line in constructors that accept *slog.Logger.
func NoopIfNil(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return noop
}

// Redactor decides whether secret values reach the logs.
// The zero value redacts.
type Redactor struct {
	AllowSensitive bool
}

// Secret returns a log attribute for a secret value. Unless sensitive logging
// is allowed only a short prefix survives, enough to correlate log lines.
func (r Redactor) Secret(key, value string) slog.Attr {
	if r.AllowSensitive {
		return slog.String(key, value)
	}
	return slog.String(key, Mask(value))
}

// Mask keeps the first four characters of v.
func Mask(v string) string {
	if len(v) <= 4 {
		return "[REDACTED]"
	}
	return v[:4] + "...[REDACTED]"
}
