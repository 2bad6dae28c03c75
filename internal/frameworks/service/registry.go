// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/deps"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/logutil"
)

// CoreServices lists the services every server constructs, whether or not
// [http.services.<name>] appears in TOML.
var CoreServices = []string{"wellknown", "api"}

var (
	mu           sync.RWMutex
	constructors = map[string]NewService{}
)

// Register adds a service constructor under name. Registering the same
// name twice is an error.
func Register(name string, newFunc NewService) error {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := constructors[name]; dup {
		return fmt.Errorf("service %q already registered", name)
	}
	constructors[name] = newFunc
	return nil
}

// MustRegister is Register for init(); it panics on a duplicate.
func MustRegister(name string, newFunc NewService) {
	if err := Register(name, newFunc); err != nil {
		panic(err)
	}
}

// Get returns the constructor registered under name, or nil.
func Get(name string) NewService {
	mu.RLock()
	defer mu.RUnlock()
	return constructors[name]
}

// RegisteredServices returns the registered names in sorted order.
func RegisteredServices() []string {
	mu.RLock()
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	mu.RUnlock()
	sort.Strings(names)
	return names
}

// Build constructs the named services, each from its
// [http.services.<name>] table. If any constructor fails, the services
// already built are closed.
func Build(names []string, d *deps.Deps, log *slog.Logger) (map[string]Service, error) {
	log = logutil.NoopIfNil(log)
	built := make(map[string]Service, len(names))
	for _, name := range names {
		newFn := Get(name)
		if newFn == nil {
			return nil, errors.Join(fmt.Errorf("service %q is not registered", name), closeAll(built))
		}
		var conf map[string]any
		if d != nil && d.Config != nil {
			conf = d.Config.BuildServiceConfig(name)
		}
		svc, err := newFn(conf, d, log.With("service", name))
		if err != nil {
			return nil, errors.Join(fmt.Errorf("create service %q: %w", name, err), closeAll(built))
		}
		built[name] = svc
	}
	return built, nil
}

func closeAll(services map[string]Service) error {
	var errs []error
	for _, svc := range services {
		errs = append(errs, svc.Close())
	}
	return errors.Join(errs...)
}

func resetRegistry() {
	mu.Lock()
	constructors = map[string]NewService{}
	mu.Unlock()
}
