// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package json implements a JSON file-based persistence driver.
// It uses atomic writes (temp file + fsync + rename) and in-process locking.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/store"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/store/memory"
)

const dataFile = "records.json"

func init() {
	store.Register("json", NewDriver)
}

// Driver keeps the working set in a memory driver and rewrites the data file
// after every mutation.
type Driver struct {
	dataDir string
	mem     *memory.Driver
}

// NewDriver creates a new JSON driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Store, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for json driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
		mem:     memory.New(),
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "json"
}

// Init loads data from the JSON file.
func (d *Driver) Init(ctx context.Context) error {
	d.mem.Lock()
	defer d.mem.Unlock()

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(d.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	kinds := make(map[string]map[string]*store.Record)
	if err := d.loadFile(dataFile, &kinds); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load records: %w", err)
	}
	d.mem.LoadLocked(kinds)

	return nil
}

// Close releases resources.
func (d *Driver) Close() error {
	return d.mem.Close()
}

// loadFile loads a JSON file into the target map.
func (d *Driver) loadFile(filename string, target interface{}) error {
	path := filepath.Join(d.dataDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// mutate runs op and persists the result while holding the lock, so the
// file always reflects a state that existed in memory.
func (d *Driver) mutate(op func() error) error {
	d.mem.Lock()
	defer d.mem.Unlock()

	if err := op(); err != nil {
		return err
	}
	return store.WriteJSONAtomic(filepath.Join(d.dataDir, dataFile), d.mem.SnapshotLocked())
}

// Get retrieves a record.
func (d *Driver) Get(ctx context.Context, kind, key string) (*store.Record, error) {
	return d.mem.Get(ctx, kind, key)
}

// Create inserts a record and persists.
func (d *Driver) Create(ctx context.Context, rec *store.Record) error {
	return d.mutate(func() error { return d.mem.CreateLocked(rec) })
}

// Update replaces a record and persists.
func (d *Driver) Update(ctx context.Context, rec *store.Record) error {
	return d.mutate(func() error { return d.mem.UpdateLocked(rec) })
}

// Delete removes a record and persists.
func (d *Driver) Delete(ctx context.Context, kind, key string) error {
	return d.mutate(func() error { return d.mem.DeleteLocked(kind, key) })
}

// Search looks up records by secondary index.
func (d *Driver) Search(ctx context.Context, kind string, criteria map[string]string) ([]*store.Record, error) {
	return d.mem.Search(ctx, kind, criteria)
}

// Scan visits every record of kind.
func (d *Driver) Scan(ctx context.Context, kind string, fn func(*store.Record) error) error {
	return d.mem.Scan(ctx, kind, fn)
}

// Compile-time interface checks
var _ store.Store = (*Driver)(nil)
