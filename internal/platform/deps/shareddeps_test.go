// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package deps_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	cachememory "github.com/MahdiBaghbani/fedgraph-go/internal/platform/cache/memory"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/config"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/deps"
	httpclient "github.com/MahdiBaghbani/fedgraph-go/internal/platform/http/client"
	storememory "github.com/MahdiBaghbani/fedgraph-go/internal/platform/store/memory"

	_ "github.com/MahdiBaghbani/fedgraph-go/internal/platform/cache/loader"
	_ "github.com/MahdiBaghbani/fedgraph-go/internal/platform/store/loader"
)

func testConfig(repair bool) *config.Config {
	cfg := config.DevConfig()
	cfg.PublicOrigin = "https://local.example"
	cfg.Repair.Enabled = &repair
	return cfg
}

func TestBuild_WithOverrides(t *testing.T) {
	tests := []struct {
		name       string
		repair     bool
		wantRepair bool
	}{
		{name: "repair enabled", repair: true, wantRepair: true},
		{name: "repair disabled", repair: false, wantRepair: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := deps.Build(context.Background(), testConfig(tt.repair), deps.Options{
				Store:      storememory.New(),
				Cache:      cachememory.New(time.Minute, 0),
				HTTPClient: httpclient.StdClient{Client: &http.Client{}},
			}, nil)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			defer d.Close()

			if d.Store.Name() != "memory" {
				t.Errorf("store = %q, want memory", d.Store.Name())
			}
			for name, v := range map[string]bool{
				"Tombstones":      d.Tombstones != nil,
				"Objects":         d.Objects != nil,
				"DiscoveryClient": d.DiscoveryClient != nil,
				"Challenges":      d.Challenges != nil,
				"DialbackClient":  d.DialbackClient != nil,
				"Verifier":        d.Verifier != nil,
				"Authenticator":   d.Authenticator != nil,
				"Metrics":         d.Metrics != nil,
			} {
				if !v {
					t.Errorf("%s not wired", name)
				}
			}
			if got := d.Repair != nil; got != tt.wantRepair {
				t.Errorf("Repair wired = %v, want %v", got, tt.wantRepair)
			}
		})
	}
}

func TestBuild_ConfiguredDrivers(t *testing.T) {
	cfg := testConfig(false)
	cfg.Store.Driver = "json"
	cfg.Store.DataDir = t.TempDir()
	cfg.Cache.Driver = "memory"

	d, err := deps.Build(context.Background(), cfg, deps.Options{}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if d.Store.Name() != "json" {
		t.Errorf("store = %q, want json", d.Store.Name())
	}
	if d.HTTPClient == nil {
		t.Error("outbound client not built")
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestBuild_RejectsUnknownDrivers(t *testing.T) {
	t.Run("store", func(t *testing.T) {
		cfg := testConfig(false)
		cfg.Store.Driver = "nosuchstore"
		cfg.Store.DataDir = t.TempDir()
		if _, err := deps.Build(context.Background(), cfg, deps.Options{}, nil); err == nil {
			t.Fatal("expected error for unknown store driver")
		}
	})
	t.Run("cache", func(t *testing.T) {
		cfg := testConfig(false)
		cfg.Cache.Driver = "nosuchcache"
		if _, err := deps.Build(context.Background(), cfg, deps.Options{Store: storememory.New()}, nil); err == nil {
			t.Fatal("expected error for unknown cache driver")
		}
	})
	t.Run("root ca file", func(t *testing.T) {
		cfg := testConfig(false)
		cfg.OutboundHTTP.RootCAFile = "/nonexistent/ca.pem"
		_, err := deps.Build(context.Background(), cfg, deps.Options{
			Store: storememory.New(),
			Cache: cachememory.New(time.Minute, 0),
		}, nil)
		if err == nil {
			t.Fatal("expected error for missing root CA file")
		}
	})
}
