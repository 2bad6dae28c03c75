// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package testutil provides the shared conformance suite for store drivers.
package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/store"
)

type noteDoc struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// TestRecord builds a record with a uuid index for driver tests.
func TestRecord(kind, key, uuid string) *store.Record {
	rec, err := store.NewRecord(kind, key, noteDoc{ID: key, Content: "hello"}, map[string]string{
		"_uuid":  uuid,
		"author": "acct:alice@origin.example",
	})
	if err != nil {
		panic(err)
	}
	return rec
}

// RunDriverTests runs the standard test suite against a driver.
func RunDriverTests(t *testing.T, driverName string, cfg *store.DriverConfig) {
	t.Helper()
	ctx := context.Background()

	driver, err := store.New(cfg)
	if err != nil {
		t.Fatalf("failed to create %s driver: %v", driverName, err)
	}
	defer driver.Close()

	if err := driver.Init(ctx); err != nil {
		t.Fatalf("failed to init %s driver: %v", driverName, err)
	}

	if driver.Name() != driverName {
		t.Errorf("expected driver name %q, got %q", driverName, driver.Name())
	}

	t.Run("CreateGet", func(t *testing.T) {
		rec := TestRecord("note", "https://origin.example/api/note/1", "u-1")
		if err := driver.Create(ctx, rec); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		got, err := driver.Get(ctx, "note", rec.Key)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		var doc noteDoc
		if err := got.Decode(&doc); err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if doc.ID != rec.Key || doc.Content != "hello" {
			t.Errorf("unexpected document: %+v", doc)
		}
		if got.Indexes["_uuid"] != "u-1" {
			t.Errorf("expected uuid index u-1, got %q", got.Indexes["_uuid"])
		}
		if got.CreatedAt == 0 || got.UpdatedAt == 0 {
			t.Error("timestamps not set")
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		rec := TestRecord("note", "https://origin.example/api/note/dup", "u-dup")
		if err := driver.Create(ctx, rec); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		err := driver.Create(ctx, rec)
		if !errors.Is(err, store.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := driver.Get(ctx, "note", "missing")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateReindexes", func(t *testing.T) {
		rec := TestRecord("note", "https://origin.example/api/note/upd", "u-upd")
		if err := driver.Create(ctx, rec); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		rec.Indexes = map[string]string{"_uuid": "u-upd-2"}
		if err := driver.Update(ctx, rec); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		hits, err := driver.Search(ctx, "note", map[string]string{"_uuid": "u-upd"})
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(hits) != 0 {
			t.Errorf("stale index still matches: %d hits", len(hits))
		}
		hits, err = driver.Search(ctx, "note", map[string]string{"_uuid": "u-upd-2"})
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(hits) != 1 || hits[0].Key != rec.Key {
			t.Errorf("expected one hit for new index, got %d", len(hits))
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		err := driver.Update(ctx, TestRecord("note", "never-created", "u-x"))
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SearchAcrossKinds", func(t *testing.T) {
		if err := driver.Create(ctx, TestRecord("comment", "https://origin.example/api/comment/1", "u-c1")); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		hits, err := driver.Search(ctx, "", map[string]string{"author": "acct:alice@origin.example"})
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		kinds := map[string]bool{}
		for _, h := range hits {
			kinds[h.Kind] = true
		}
		if !kinds["note"] || !kinds["comment"] {
			t.Errorf("expected hits in note and comment kinds, got %v", kinds)
		}
	})

	t.Run("DeleteAndScan", func(t *testing.T) {
		for _, key := range []string{"a", "b", "c"} {
			if err := driver.Create(ctx, TestRecord("scan", key, "u-"+key)); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}
		if err := driver.Delete(ctx, "scan", "b"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := driver.Delete(ctx, "scan", "b"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}

		var keys []string
		err := driver.Scan(ctx, "scan", func(rec *store.Record) error {
			keys = append(keys, rec.Key)
			return nil
		})
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if len(keys) != 2 || keys[0] != "a" || keys[1] != "c" {
			t.Errorf("unexpected scan order: %v", keys)
		}
	})
}
