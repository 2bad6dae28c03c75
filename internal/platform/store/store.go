// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package store provides persistence primitives and driver abstractions.
//
// The store is a generic record collaborator: every record belongs to a kind
// (a table-like namespace), is addressed by a primary key, carries an opaque
// JSON document, and may declare secondary index values for Search.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Common errors for store operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrClosed        = errors.New("store closed")
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init initializes the driver (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (memory, json, sqlite, mirror).
	Name() string
}

// Record is a single stored document.
type Record struct {
	Kind string `json:"kind"`
	Key  string `json:"key"`

	// Data is the JSON document.
	Data json.RawMessage `json:"data"`

	// Indexes maps secondary index field names to values. Only non-empty
	// values are indexed.
	Indexes map[string]string `json:"indexes,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// Clone returns a deep copy so callers never share driver-owned memory.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Data = append(json.RawMessage(nil), r.Data...)
	if r.Indexes != nil {
		c.Indexes = make(map[string]string, len(r.Indexes))
		for k, v := range r.Indexes {
			c.Indexes[k] = v
		}
	}
	return &c
}

// Matches reports whether the record satisfies every search criterion.
func (r *Record) Matches(criteria map[string]string) bool {
	for field, want := range criteria {
		if r.Indexes[field] != want {
			return false
		}
	}
	return true
}

// RecordStore is the CRUD contract every driver implements.
type RecordStore interface {
	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, kind, key string) (*Record, error)

	// Create inserts a record or returns ErrAlreadyExists.
	Create(ctx context.Context, rec *Record) error

	// Update replaces an existing record or returns ErrNotFound.
	Update(ctx context.Context, rec *Record) error

	// Delete removes a record or returns ErrNotFound.
	Delete(ctx context.Context, kind, key string) error

	// Search returns records whose indexes match every criterion, ordered by key.
	// An empty kind searches across all kinds.
	Search(ctx context.Context, kind string, criteria map[string]string) ([]*Record, error)

	// Scan calls fn for every record of kind, ordered by key. Returning an
	// error from fn stops the scan and is returned to the caller.
	Scan(ctx context.Context, kind string, fn func(*Record) error) error
}

// Store is a driver that also serves records.
type Store interface {
	Driver
	RecordStore
}

// NewRecord builds a record by marshaling v as the document.
func NewRecord(kind, key string, v any, indexes map[string]string) (*Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("store: failed to marshal %s/%s: %w", kind, key, err)
	}
	return &Record{Kind: kind, Key: key, Data: data, Indexes: compactIndexes(indexes)}, nil
}

// Decode unmarshals the record document into v.
func (r *Record) Decode(v any) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("store: failed to decode %s/%s: %w", r.Kind, r.Key, err)
	}
	return nil
}

// SortByKey orders records by kind then key for deterministic results.
func SortByKey(recs []*Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Kind != recs[j].Kind {
			return recs[i].Kind < recs[j].Kind
		}
		return recs[i].Key < recs[j].Key
	})
}

func compactIndexes(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
