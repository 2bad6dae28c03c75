// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package dialback

import (
	"context"
	"testing"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/store/memory"
)

func testChallenge(ts int64) Challenge {
	return Challenge{
		Endpoint:  "https://peer.example/api/inbox",
		Identity:  "host=origin.example",
		Token:     "tok-1",
		Timestamp: ts,
	}
}

func TestChallengeStore_ExactMatch(t *testing.T) {
	ctx := context.Background()
	cs := NewChallengeStore(memory.New(), StoreConfig{}, nil)

	ch := testChallenge(1000)
	if err := cs.Record(ctx, ch); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if ok, err := cs.Has(ctx, ch); err != nil || !ok {
		t.Fatalf("Has(recorded) = %v, %v", ok, err)
	}

	variants := map[string]Challenge{
		"endpoint":  {Endpoint: "https://peer.example/other", Identity: ch.Identity, Token: ch.Token, Timestamp: ch.Timestamp},
		"identity":  {Endpoint: ch.Endpoint, Identity: "host=evil.example", Token: ch.Token, Timestamp: ch.Timestamp},
		"token":     {Endpoint: ch.Endpoint, Identity: ch.Identity, Token: "tok-2", Timestamp: ch.Timestamp},
		"timestamp": {Endpoint: ch.Endpoint, Identity: ch.Identity, Token: ch.Token, Timestamp: 2000},
	}
	for field, v := range variants {
		t.Run(field, func(t *testing.T) {
			if ok, err := cs.Has(ctx, v); err != nil || ok {
				t.Errorf("Has with different %s = %v, %v", field, ok, err)
			}
		})
	}
}

func TestChallengeStore_ManyTokensPerPair(t *testing.T) {
	ctx := context.Background()
	cs := NewChallengeStore(memory.New(), StoreConfig{}, nil)

	for _, tok := range []string{"a", "b", "c"} {
		ch := testChallenge(1000)
		ch.Token = tok
		if err := cs.Record(ctx, ch); err != nil {
			t.Fatal(err)
		}
	}
	for _, tok := range []string{"a", "b", "c"} {
		ch := testChallenge(1000)
		ch.Token = tok
		if ok, _ := cs.Has(ctx, ch); !ok {
			t.Errorf("token %s lost", tok)
		}
	}
}

func TestChallengeStore_DurableTierAndRehydrate(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	first := NewChallengeStore(backend, StoreConfig{Now: clock}, nil)
	fresh := testChallenge(now.Add(-time.Minute).UnixMilli())
	old := testChallenge(now.Add(-2 * time.Hour).UnixMilli())
	old.Token = "old"
	for _, ch := range []Challenge{fresh, old} {
		if err := first.Record(ctx, ch); err != nil {
			t.Fatal(err)
		}
	}

	restarted := NewChallengeStore(backend, StoreConfig{Now: clock}, nil)
	if ok, err := restarted.Has(ctx, fresh); err != nil || !ok {
		t.Errorf("durable fallback Has = %v, %v", ok, err)
	}

	n, err := restarted.Rehydrate(ctx)
	if err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}
	if n != 1 {
		t.Errorf("Rehydrate loaded %d, want 1 (old one is past retention)", n)
	}
}

func TestChallengeStore_Sweep(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cs := NewChallengeStore(backend, StoreConfig{Retention: time.Hour, Now: func() time.Time { return now }}, nil)

	keep := testChallenge(now.Add(-30 * time.Minute).UnixMilli())
	drop := testChallenge(now.Add(-90 * time.Minute).UnixMilli())
	drop.Token = "drop"
	for _, ch := range []Challenge{keep, drop} {
		if err := cs.Record(ctx, ch); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := cs.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if ok, _ := cs.Has(ctx, drop); ok {
		t.Error("expired challenge still present")
	}
	if ok, _ := cs.Has(ctx, keep); !ok {
		t.Error("retained challenge was swept")
	}

	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if _, ok := cs.mem[drop.Identity][drop.Endpoint][drop.Timestamp]; ok {
		t.Error("memory tier not pruned")
	}
}

func TestChallengeStore_RunStopsOnCancel(t *testing.T) {
	cs := NewChallengeStore(memory.New(), StoreConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cs.Run(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
