// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package tombstone records deleted objects so reads can tell "gone" apart
// from "never existed".
package tombstone

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/components/activity"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/store"
)

// Kind is the record kind tombstones are stored under.
const Kind = "tombstone"

var (
	// ErrNotFound means no tombstone exists for the key.
	ErrNotFound = errors.New("tombstone not found")

	// ErrMissingKey means the object lacks an objectType or uuid.
	ErrMissingKey = errors.New("tombstone requires objectType and uuid")
)

// Tombstone marks a deleted object.
type Tombstone struct {
	ObjectType string `json:"objectType"`
	UUID       string `json:"uuid"`
	Created    string `json:"created,omitempty"`
	Updated    string `json:"updated,omitempty"`
	Deleted    string `json:"deleted"`
}

// Key returns the persisted key "<objectType>/<uuid>".
func Key(objectType, uuid string) string {
	return objectType + "/" + uuid
}

// Ledger writes and reads tombstones.
type Ledger struct {
	store store.RecordStore
	now   func() time.Time
}

// NewLedger creates a ledger over st. A nil now uses time.Now.
func NewLedger(st store.RecordStore, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: st, now: now}
}

// Mark tombstones obj under its own objectType and uuid.
func (l *Ledger) Mark(ctx context.Context, obj *activity.Object) error {
	if obj == nil {
		return ErrMissingKey
	}
	return l.MarkFull(ctx, obj, obj.ObjectType, obj.UUID)
}

// MarkFull tombstones obj under an explicit key. A second mark for the
// same key keeps the first tombstone.
func (l *Ledger) MarkFull(ctx context.Context, obj *activity.Object, objectType, uuid string) error {
	if objectType == "" || uuid == "" {
		return ErrMissingKey
	}

	ts := Tombstone{
		ObjectType: objectType,
		UUID:       uuid,
		Deleted:    l.now().UTC().Format(time.RFC3339),
	}
	if obj != nil {
		ts.Created = obj.Published
		ts.Updated = obj.Updated
	}

	rec, err := store.NewRecord(Kind, Key(objectType, uuid), ts, nil)
	if err != nil {
		return err
	}
	if err := l.store.Create(ctx, rec); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("failed to write tombstone %s: %w", rec.Key, err)
	}
	return nil
}

// Lookup returns the tombstone for (objectType, uuid) or ErrNotFound.
func (l *Ledger) Lookup(ctx context.Context, objectType, uuid string) (*Tombstone, error) {
	if objectType == "" || uuid == "" {
		return nil, ErrMissingKey
	}
	rec, err := l.store.Get(ctx, Kind, Key(objectType, uuid))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var ts Tombstone
	if err := rec.Decode(&ts); err != nil {
		return nil, err
	}
	return &ts, nil
}
