// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package memory implements an in-process record store.
// It is the default driver for tests and for dev mode without a data dir.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/store"
)

func init() {
	store.Register("memory", func(cfg *store.DriverConfig) (store.Store, error) {
		return New(), nil
	})
}

// Driver keeps records in nested maps keyed by kind then key.
type Driver struct {
	mu     sync.RWMutex
	closed bool
	kinds  map[string]map[string]*store.Record
}

// New creates an empty memory driver.
func New() *Driver {
	return &Driver{kinds: make(map[string]map[string]*store.Record)}
}

// Name returns the driver name.
func (d *Driver) Name() string { return "memory" }

// Init is a no-op.
func (d *Driver) Init(ctx context.Context) error { return nil }

// Close marks the driver closed.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Get returns a copy of the record.
func (d *Driver) Get(ctx context.Context, kind, key string) (*store.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}
	rec, ok := d.kinds[kind][key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

// Create inserts a new record.
func (d *Driver) Create(ctx context.Context, rec *store.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CreateLocked(rec)
}

// CreateLocked inserts without taking the lock; callers must hold it via Lock.
func (d *Driver) CreateLocked(rec *store.Record) error {
	if d.closed {
		return store.ErrClosed
	}
	table, ok := d.kinds[rec.Kind]
	if !ok {
		table = make(map[string]*store.Record)
		d.kinds[rec.Kind] = table
	}
	if _, exists := table[rec.Key]; exists {
		return store.ErrAlreadyExists
	}
	c := rec.Clone()
	now := time.Now().UnixMilli()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	table[rec.Key] = c
	return nil
}

// Update replaces an existing record.
func (d *Driver) Update(ctx context.Context, rec *store.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.UpdateLocked(rec)
}

// UpdateLocked replaces without taking the lock.
func (d *Driver) UpdateLocked(rec *store.Record) error {
	if d.closed {
		return store.ErrClosed
	}
	prev, ok := d.kinds[rec.Kind][rec.Key]
	if !ok {
		return store.ErrNotFound
	}
	c := rec.Clone()
	c.CreatedAt = prev.CreatedAt
	c.UpdatedAt = time.Now().UnixMilli()
	d.kinds[rec.Kind][rec.Key] = c
	return nil
}

// Delete removes a record.
func (d *Driver) Delete(ctx context.Context, kind, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.DeleteLocked(kind, key)
}

// DeleteLocked removes without taking the lock.
func (d *Driver) DeleteLocked(kind, key string) error {
	if d.closed {
		return store.ErrClosed
	}
	if _, ok := d.kinds[kind][key]; !ok {
		return store.ErrNotFound
	}
	delete(d.kinds[kind], key)
	return nil
}

// Search scans the matching kinds for index matches.
func (d *Driver) Search(ctx context.Context, kind string, criteria map[string]string) ([]*store.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	var out []*store.Record
	for k, table := range d.kinds {
		if kind != "" && k != kind {
			continue
		}
		for _, rec := range table {
			if rec.Matches(criteria) {
				out = append(out, rec.Clone())
			}
		}
	}
	store.SortByKey(out)
	return out, nil
}

// Scan visits every record of kind in key order.
func (d *Driver) Scan(ctx context.Context, kind string, fn func(*store.Record) error) error {
	d.mu.RLock()
	recs := make([]*store.Record, 0, len(d.kinds[kind]))
	closed := d.closed
	for _, rec := range d.kinds[kind] {
		recs = append(recs, rec.Clone())
	}
	d.mu.RUnlock()

	if closed {
		return store.ErrClosed
	}
	store.SortByKey(recs)
	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Lock and Unlock let wrapping drivers make a mutation and a snapshot atomic.
func (d *Driver) Lock()   { d.mu.Lock() }
func (d *Driver) Unlock() { d.mu.Unlock() }

// SnapshotLocked returns every record grouped by kind. Callers must hold the lock.
func (d *Driver) SnapshotLocked() map[string]map[string]*store.Record {
	out := make(map[string]map[string]*store.Record, len(d.kinds))
	for kind, table := range d.kinds {
		t := make(map[string]*store.Record, len(table))
		for key, rec := range table {
			t[key] = rec
		}
		out[kind] = t
	}
	return out
}

// LoadLocked replaces the state with the given records. Callers must hold the lock.
func (d *Driver) LoadLocked(kinds map[string]map[string]*store.Record) {
	d.kinds = make(map[string]map[string]*store.Record, len(kinds))
	for kind, table := range kinds {
		t := make(map[string]*store.Record, len(table))
		for key, rec := range table {
			rec.Kind, rec.Key = kind, key
			t[key] = rec
		}
		d.kinds[kind] = t
	}
}

// Compile-time interface checks
var _ store.Store = (*Driver)(nil)
