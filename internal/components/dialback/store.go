// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package dialback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/store"
)

// Kind is the record kind of durable challenges.
const Kind = "dialbackrequest"

// DefaultRetention is how long challenges are kept after issue. It is much
// longer than the verification window so recent traffic can be audited.
const DefaultRetention = time.Hour

// challengeRecord is the durable document.
type challengeRecord struct {
	Challenge
	Created int64 `json:"created"`
}

// StoreConfig configures a ChallengeStore.
type StoreConfig struct {
	Retention time.Duration
	Now       func() time.Time
}

// ChallengeStore remembers issued challenges in two tiers: an in-memory
// index identity -> endpoint -> timestamp -> tokens for the verification
// hot path, and durable records for restarts and the cleanup sweep.
type ChallengeStore struct {
	mu  sync.RWMutex
	mem map[string]map[string]map[int64][]string

	st        store.RecordStore
	retention time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// NewChallengeStore creates a store backed by st.
func NewChallengeStore(st store.RecordStore, cfg StoreConfig, log *slog.Logger) *ChallengeStore {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ChallengeStore{
		mem:       make(map[string]map[string]map[int64][]string),
		st:        st,
		retention: cfg.Retention,
		now:       cfg.Now,
		log:       logutil.NoopIfNil(log),
	}
}

// Record stores ch durably, then in memory. Inserts are append-only.
func (s *ChallengeStore) Record(ctx context.Context, ch Challenge) error {
	rec, err := store.NewRecord(Kind, ch.Key(), challengeRecord{Challenge: ch, Created: s.now().UnixMilli()}, nil)
	if err != nil {
		return err
	}
	if err := s.st.Create(ctx, rec); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return fmt.Errorf("failed to record dialback challenge: %w", err)
	}
	s.remember(ch)
	return nil
}

func (s *ChallengeStore) remember(ch Challenge) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byEndpoint, ok := s.mem[ch.Identity]
	if !ok {
		byEndpoint = make(map[string]map[int64][]string)
		s.mem[ch.Identity] = byEndpoint
	}
	byTime, ok := byEndpoint[ch.Endpoint]
	if !ok {
		byTime = make(map[int64][]string)
		byEndpoint[ch.Endpoint] = byTime
	}
	for _, t := range byTime[ch.Timestamp] {
		if t == ch.Token {
			return
		}
	}
	byTime[ch.Timestamp] = append(byTime[ch.Timestamp], ch.Token)
}

// Has reports whether ch was recorded, matching all four fields exactly.
// A memory miss falls back to the durable tier.
func (s *ChallengeStore) Has(ctx context.Context, ch Challenge) (bool, error) {
	s.mu.RLock()
	for _, t := range s.mem[ch.Identity][ch.Endpoint][ch.Timestamp] {
		if t == ch.Token {
			s.mu.RUnlock()
			return true, nil
		}
	}
	s.mu.RUnlock()

	_, err := s.st.Get(ctx, Kind, ch.Key())
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Rehydrate loads durable challenges still inside the retention window
// into memory. Call once on start.
func (s *ChallengeStore) Rehydrate(ctx context.Context) (int, error) {
	threshold := s.threshold()
	n := 0
	err := s.st.Scan(ctx, Kind, func(rec *store.Record) error {
		var cr challengeRecord
		if err := rec.Decode(&cr); err != nil {
			s.log.Warn("skipping undecodable dialback challenge", "key", rec.Key, "error", err)
			return nil
		}
		if cr.Timestamp < threshold {
			return nil
		}
		s.remember(cr.Challenge)
		n++
		return nil
	})
	return n, err
}

// Sweep deletes challenges older than the retention threshold from both
// tiers and returns how many durable records were removed.
func (s *ChallengeStore) Sweep(ctx context.Context) (int, error) {
	threshold := s.threshold()

	var expired []string
	err := s.st.Scan(ctx, Kind, func(rec *store.Record) error {
		var cr challengeRecord
		if err := rec.Decode(&cr); err != nil || cr.Timestamp < threshold {
			expired = append(expired, rec.Key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range expired {
		if err := s.st.Delete(ctx, Kind, key); err != nil && !errors.Is(err, store.ErrNotFound) {
			return removed, fmt.Errorf("failed to delete dialback challenge: %w", err)
		}
		removed++
	}

	s.pruneMemory(threshold)
	return removed, nil
}

func (s *ChallengeStore) pruneMemory(threshold int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for identity, byEndpoint := range s.mem {
		for endpoint, byTime := range byEndpoint {
			for ts := range byTime {
				if ts < threshold {
					delete(byTime, ts)
				}
			}
			if len(byTime) == 0 {
				delete(byEndpoint, endpoint)
			}
		}
		if len(byEndpoint) == 0 {
			delete(s.mem, identity)
		}
	}
}

// Run sweeps every interval until ctx is done.
func (s *ChallengeStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.log.Warn("dialback challenge sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.log.Debug("dialback challenges swept", "removed", n)
			}
		}
	}
}

func (s *ChallengeStore) threshold() int64 {
	return s.now().Add(-s.retention).UnixMilli()
}
