// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package service

import (
	"log/slog"
	"net/http"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/deps"
)

// Service represents an HTTP service that can be registered and mounted.
type Service interface {
	Handler() http.Handler
	Prefix() string
	Close() error

	// Unprotected lists paths, relative to the prefix, that skip the
	// dialback auth gate.
	Unprotected() []string
}

// NewService is the constructor function type for services. The shared
// dependencies are handed over explicitly.
type NewService func(conf map[string]any, d *deps.Deps, log *slog.Logger) (Service, error)
