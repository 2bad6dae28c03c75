// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package loader registers the cache drivers (memory, redis) via blank
// imports. cmd/fedgraph imports it once.
package loader

import (
	_ "github.com/MahdiBaghbani/fedgraph-go/internal/platform/cache/memory"
	_ "github.com/MahdiBaghbani/fedgraph-go/internal/platform/cache/redis"
)
