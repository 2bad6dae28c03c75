// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package mirror implements a SQLite + JSON mirror persistence driver.
// SQLite is the source of truth; JSON is a one-way export for operator visibility.
// The program MUST NOT read JSON as input.
package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/store"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/store/sqlite"
)

// redactedData replaces documents of secret-bearing kinds in the export.
const redactedData = `"[REDACTED]"`

func init() {
	store.Register("mirror", NewDriver)
}

// Driver delegates to the sqlite driver and exports each touched kind after writes.
type Driver struct {
	*sqlite.Driver

	dataDir     string
	mirrorCfg   store.MirrorConfig
	secretKinds map[string]bool // quick lookup for kinds that carry secrets
	mu          sync.Mutex      // protects JSON export operations
}

// NewDriver creates a new mirror driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Store, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for mirror driver")
	}

	inner, err := sqlite.NewDriver(cfg)
	if err != nil {
		return nil, err
	}

	lookup := make(map[string]bool)
	for _, kind := range cfg.Mirror.SecretKinds {
		lookup[kind] = true
	}

	return &Driver{
		Driver:      inner.(*sqlite.Driver),
		dataDir:     cfg.DataDir,
		mirrorCfg:   cfg.Mirror,
		secretKinds: lookup,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "mirror"
}

// Init initializes the SQLite database and exports initial state to JSON.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(d.mirrorDir(), 0700); err != nil {
		return fmt.Errorf("failed to create mirror dir: %w", err)
	}

	if err := d.Driver.Init(ctx); err != nil {
		return err
	}

	var kinds []string
	if err := d.DB().WithContext(ctx).Table("records").Distinct("kind").Pluck("kind", &kinds).Error; err != nil {
		return fmt.Errorf("failed to list kinds: %w", err)
	}
	for _, kind := range kinds {
		if err := d.exportKind(ctx, kind); err != nil {
			return fmt.Errorf("failed to export mirror: %w", err)
		}
	}
	return nil
}

// Create writes through to SQLite, then re-exports the kind.
func (d *Driver) Create(ctx context.Context, rec *store.Record) error {
	if err := d.Driver.Create(ctx, rec); err != nil {
		return err
	}
	return d.exportKind(ctx, rec.Kind)
}

// Update writes through to SQLite, then re-exports the kind.
func (d *Driver) Update(ctx context.Context, rec *store.Record) error {
	if err := d.Driver.Update(ctx, rec); err != nil {
		return err
	}
	return d.exportKind(ctx, rec.Kind)
}

// Delete writes through to SQLite, then re-exports the kind.
func (d *Driver) Delete(ctx context.Context, kind, key string) error {
	if err := d.Driver.Delete(ctx, kind, key); err != nil {
		return err
	}
	return d.exportKind(ctx, kind)
}

func (d *Driver) mirrorDir() string {
	return filepath.Join(d.dataDir, "mirror")
}

// shouldRedact reports whether documents of kind are withheld from the export.
func (d *Driver) shouldRedact(kind string) bool {
	if d.mirrorCfg.IncludeSecrets {
		return false
	}
	return d.secretKinds[kind]
}

// exportKind writes every record of kind to mirror/<kind>.json.
func (d *Driver) exportKind(ctx context.Context, kind string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var recs []*store.Record
	err := d.Driver.Scan(ctx, kind, func(rec *store.Record) error {
		if d.shouldRedact(kind) {
			rec.Data = []byte(redactedData)
			rec.Indexes = nil
		}
		recs = append(recs, rec)
		return nil
	})
	if err != nil {
		return err
	}

	return store.WriteJSONAtomic(filepath.Join(d.mirrorDir(), fileName(kind)), recs)
}

// fileName maps a kind to a safe file name.
func fileName(kind string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return r.Replace(kind) + ".json"
}

// Compile-time interface checks
var _ store.Store = (*Driver)(nil)
