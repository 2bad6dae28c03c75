// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package interceptors provides cross-cutting HTTP middleware in a registry
// pattern. Services opt in per route through named profiles.
package interceptors

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/deps"
)

// Middleware is an HTTP middleware function.
type Middleware func(http.Handler) http.Handler

// NewInterceptor is the constructor function type for interceptors.
type NewInterceptor func(conf map[string]any, d *deps.Deps, log *slog.Logger) (Middleware, error)

var (
	mu           sync.RWMutex
	constructors = map[string]NewInterceptor{}
)

// Register makes an interceptor available by name. Called from init();
// a second registration under the same name replaces the first.
func Register(name string, fn NewInterceptor) {
	mu.Lock()
	constructors[name] = fn
	mu.Unlock()
}

// Get returns the constructor registered under name.
func Get(name string) (NewInterceptor, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := constructors[name]
	return fn, ok
}

// Names returns the registered interceptor names in sorted order.
func Names() []string {
	mu.RLock()
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	mu.RUnlock()
	sort.Strings(names)
	return names
}

// FromProfile builds the named interceptor from the profile configured under
// [http.interceptors.<name>.profiles.<profile>].
func FromProfile(d *deps.Deps, name, profile string, log *slog.Logger) (Middleware, error) {
	newFn, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("%s interceptor not registered", name)
	}
	var all map[string]map[string]any
	if d != nil && d.Config != nil {
		all = d.Config.HTTP.Interceptors
	}
	conf, err := ProfileConfig(all, name, profile)
	if err != nil {
		return nil, err
	}
	return newFn(conf, d, log)
}

// ProfileConfig walks <name>.profiles.<profile> in the raw interceptor
// config and returns the profile table.
func ProfileConfig(all map[string]map[string]any, name, profile string) (map[string]any, error) {
	section, ok := all[name]
	if !ok {
		return nil, fmt.Errorf("%s profile %q: no [http.interceptors.%s] section", name, profile, name)
	}
	profiles, ok := section["profiles"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s profile %q: profiles missing or not a table", name, profile)
	}
	raw, ok := profiles[profile]
	if !ok {
		return nil, fmt.Errorf("%s profile %q not found", name, profile)
	}
	conf, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s profile %q is not a table", name, profile)
	}
	return conf, nil
}
