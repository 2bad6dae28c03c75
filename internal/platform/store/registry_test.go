// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package store_test

import (
	"testing"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/store"
	_ "github.com/MahdiBaghbani/fedgraph-go/internal/platform/store/json"
	_ "github.com/MahdiBaghbani/fedgraph-go/internal/platform/store/memory"
	_ "github.com/MahdiBaghbani/fedgraph-go/internal/platform/store/mirror"
	_ "github.com/MahdiBaghbani/fedgraph-go/internal/platform/store/sqlite"
)

func TestDriverRegistry(t *testing.T) {
	drivers := store.AvailableDrivers()

	expected := map[string]bool{"memory": true, "json": true, "sqlite": true, "mirror": true}
	for _, d := range drivers {
		if !expected[d] {
			t.Logf("unexpected driver registered: %s", d)
		}
		delete(expected, d)
	}

	for d := range expected {
		t.Errorf("expected driver %q not registered", d)
	}
}

func TestNewUnknownDriver(t *testing.T) {
	if _, err := store.New(&store.DriverConfig{Driver: "nope"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestRecordMatches(t *testing.T) {
	rec := &store.Record{Indexes: map[string]string{"_uuid": "u1", "author": "a"}}
	if !rec.Matches(map[string]string{"_uuid": "u1"}) {
		t.Error("expected match on single criterion")
	}
	if rec.Matches(map[string]string{"_uuid": "u1", "author": "b"}) {
		t.Error("expected mismatch when one criterion differs")
	}
	if !rec.Matches(nil) {
		t.Error("empty criteria should match")
	}
}
