// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package cache provides caching with TTL support for discovery documents and
// the dialback replay guard.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrExpired  = errors.New("key expired")
)

// Cache provides TTL-based key-value storage.
type Cache interface {
	// Get retrieves a value by key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. If TTL is 0, use default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Add stores the value only when key is absent and reports whether it did.
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists and is not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases resources.
	Close() error
}

// Counter is a cache that also keeps fixed-window counters.
type Counter interface {
	Cache

	// Increment adds delta to the counter at key, starting a new window of
	// the given length when the key is absent or expired. It returns the new
	// count and when the current window resets.
	Increment(ctx context.Context, key string, delta int64, window time.Duration) (int64, time.Time, error)
}

// Default TTLs for different cache categories.
const (
	TTLDiscovery = 15 * time.Minute // host-meta and webfinger documents
	TTLReplay    = 10 * time.Minute // seen inbound dialback tokens
	TTLRateLimit = time.Minute      // rate limit windows
)

// DriverFactory builds a cache from its driver-specific config map.
type DriverFactory func(config map[string]any) (Cache, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// RegisterDriver registers a cache driver. Called from driver init().
func RegisterDriver(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New builds the named driver.
func New(name string, config map[string]any) (Cache, error) {
	driversMu.RLock()
	factory, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown cache driver: %s", name)
	}
	return factory(config)
}

// AvailableDrivers returns the sorted list of registered driver names.
func AvailableDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConfigInt reads a numeric config value; TOML and mapstructure hand over
// different integer types.
func ConfigInt(config map[string]any, key string) (int, bool) {
	v, ok := config[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// ConfigString reads a string config value.
func ConfigString(config map[string]any, key string) string {
	s, _ := config[key].(string)
	return s
}
