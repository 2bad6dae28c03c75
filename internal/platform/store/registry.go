// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DriverConfig selects and configures a store driver.
type DriverConfig struct {
	// Driver is one of memory, json, sqlite, mirror.
	Driver string `json:"driver"`

	// DataDir holds the JSON files and the SQLite database.
	DataDir string `json:"data_dir"`

	Mirror MirrorConfig `json:"mirror"`
}

// MirrorConfig configures the sqlite-primary, JSON-export mirror driver.
type MirrorConfig struct {
	// IncludeSecrets exports SecretKinds documents unredacted.
	IncludeSecrets bool `json:"include_secrets"`

	// SecretKinds lists record kinds whose documents are redacted from the
	// export unless IncludeSecrets is set.
	SecretKinds []string `json:"secret_kinds"`
}

// DriverFactory builds an uninitialized driver; callers run Init.
type DriverFactory func(cfg *DriverConfig) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]DriverFactory{}
)

// Register makes a driver available under name. Drivers call it from init().
func Register(name string, factory DriverFactory) {
	mu.Lock()
	factories[name] = factory
	mu.Unlock()
}

// New builds the driver cfg.Driver names.
func New(cfg *DriverConfig) (Store, error) {
	mu.RLock()
	factory, ok := factories[cfg.Driver]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown store driver %q (available: %s)", cfg.Driver, strings.Join(AvailableDrivers(), ", "))
	}
	return factory(cfg)
}

// AvailableDrivers returns the registered driver names, sorted.
func AvailableDrivers() []string {
	mu.RLock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	mu.RUnlock()
	sort.Strings(names)
	return names
}
