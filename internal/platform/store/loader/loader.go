// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package loader registers store drivers via blank imports.
package loader

import (
	_ "github.com/MahdiBaghbani/fedgraph-go/internal/platform/store/json"
	_ "github.com/MahdiBaghbani/fedgraph-go/internal/platform/store/memory"
	_ "github.com/MahdiBaghbani/fedgraph-go/internal/platform/store/mirror"
	_ "github.com/MahdiBaghbani/fedgraph-go/internal/platform/store/sqlite"
)
