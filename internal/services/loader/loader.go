// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package loader triggers service and interceptor registration via blank
// imports. Import this package to ensure all services are registered with
// the registry.
package loader

import (
	_ "github.com/MahdiBaghbani/fedgraph-go/internal/interceptors/ratelimit"
	_ "github.com/MahdiBaghbani/fedgraph-go/internal/services/api"
	_ "github.com/MahdiBaghbani/fedgraph-go/internal/services/wellknown"
)
