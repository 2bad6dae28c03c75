// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/cache"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/cache/redis"
)

func newTestCache(t *testing.T) (*redis.Cache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)

	c, err := redis.New(&redis.Config{Addr: s.Addr(), DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, s
}

func TestNew_FailFastUnreachable(t *testing.T) {
	cfg := &redis.Config{
		Addr:        "localhost:59999",
		DialTimeout: 100 * time.Millisecond,
	}

	if _, err := redis.New(cfg); err == nil {
		t.Fatal("expected error when connecting to unreachable Redis, got nil")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := redis.DefaultConfig()

	if cfg.Addr != "localhost:6379" {
		t.Errorf("expected default addr localhost:6379, got %s", cfg.Addr)
	}
	if cfg.DB != 0 {
		t.Errorf("expected default DB 0, got %d", cfg.DB)
	}
}

func TestSetGetDelete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "discovery:peer.example", []byte(`{"links":[]}`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, err := c.Get(ctx, "discovery:peer.example")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != `{"links":[]}` {
		t.Errorf("unexpected value %q", val)
	}

	if err := c.Delete(ctx, "discovery:peer.example"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "discovery:peer.example"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestTTLExpiry(t *testing.T) {
	c, s := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 30*time.Second); err != nil {
		t.Fatal(err)
	}
	s.FastForward(31 * time.Second)

	exists, err := c.Exists(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("key should have expired")
	}
}

func TestAddIsSetIfAbsent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	added, err := c.Add(ctx, "replay:tok", []byte("1"), time.Minute)
	if err != nil || !added {
		t.Fatalf("first Add: added=%v err=%v", added, err)
	}
	added, err = c.Add(ctx, "replay:tok", []byte("2"), time.Minute)
	if err != nil {
		t.Fatalf("second Add: %v", err)
	}
	if added {
		t.Error("second Add should report the key as present")
	}
}

func TestIncrementWindow(t *testing.T) {
	c, s := newTestCache(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, resetAt, err := c.Increment(ctx, "rl:peer", 1, time.Minute)
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if n != want {
			t.Errorf("Increment = %d, want %d", n, want)
		}
		if d := time.Until(resetAt); d <= 0 || d > time.Minute {
			t.Errorf("resetAt out of window: %v", d)
		}
	}

	s.FastForward(2 * time.Minute)
	n, _, err := c.Increment(ctx, "rl:peer", 1, time.Minute)
	if err != nil || n != 1 {
		t.Errorf("Increment after expiry = %d, %v, want 1", n, err)
	}
}
