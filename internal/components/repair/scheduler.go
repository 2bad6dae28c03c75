// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package repair reconciles actor metadata that drifted: feed and link
// references that are missing or point at the wrong server. Remote actors
// are re-discovered over webfinger with per-identity backoff; local actors
// are recomputed from local identity.
package repair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/components/acct"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/activity"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/discovery"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/objects"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/logutil"
)

// Outcome describes what a repair check did.
type Outcome string

const (
	OutcomeNoDrift  Outcome = "no_drift"
	OutcomeRepaired Outcome = "repaired"
	OutcomeFailed   Outcome = "failed"
	OutcomeBackoff  Outcome = "skipped_backoff"
	OutcomeBusy     Outcome = "skipped_busy"
)

// ErrIncompleteDocument means discovery answered without the links a
// repair needs.
var ErrIncompleteDocument = errors.New("repair: discovery document lacks activity links")

// actorFeeds are the feeds a remote actor's discovery document must supply.
var actorFeeds = []string{
	activity.FeedFollowers,
	activity.FeedFollowing,
	activity.FeedFavorites,
	activity.FeedLists,
}

var actorLinks = []string{activity.RelActivityInbox, activity.RelActivityOutbox}

// Objects is the slice of the resolver the scheduler writes through.
type Objects interface {
	IsLocal(id string) bool
	Replace(ctx context.Context, obj *activity.Object) (*activity.Object, error)
}

// Discoverer looks up remote actors.
type Discoverer interface {
	Webfinger(ctx context.Context, resource string) (*discovery.Document, error)
}

// Config configures a Scheduler.
type Config struct {
	// Timeout bounds one background repair, discovery included.
	Timeout time.Duration
	Now     func() time.Time
}

// Scheduler runs repairs. Check is the fire-and-forget read hook;
// RepairNow runs one repair synchronously. At most one repair per identity
// is in flight in this process.
type Scheduler struct {
	objects   Objects
	discovery Discoverer
	timeout   time.Duration
	now       func() time.Time
	metrics   *Metrics
	log       *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. Close it to stop background work.
func New(objs Objects, disc Discoverer, cfg Config, m *Metrics, log *slog.Logger) *Scheduler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		objects:   objs,
		discovery: disc,
		timeout:   cfg.Timeout,
		now:       cfg.Now,
		metrics:   m,
		log:       logutil.NoopIfNil(log),
		inflight:  make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Check starts a background repair when obj is an actor with drifted
// metadata. It never blocks and never reports errors to the reader.
func (s *Scheduler) Check(obj *activity.Object) {
	if !s.NeedsRepair(obj) {
		return
	}
	if !s.acquire(obj.ID) {
		s.metrics.attempts.WithLabelValues(string(OutcomeBusy)).Inc()
		return
	}

	s.wg.Add(1)
	s.metrics.inflight.Inc()
	go func() {
		defer s.wg.Done()
		defer s.metrics.inflight.Dec()
		defer s.release(obj.ID)

		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
		outcome, err := s.repair(ctx, obj)
		s.record(obj, outcome, err)
	}()
}

// RepairNow runs one repair check for obj and waits for it.
func (s *Scheduler) RepairNow(ctx context.Context, obj *activity.Object) (Outcome, error) {
	if !s.acquire(obj.ID) {
		s.metrics.attempts.WithLabelValues(string(OutcomeBusy)).Inc()
		return OutcomeBusy, nil
	}
	defer s.release(obj.ID)

	outcome, err := s.repair(ctx, obj.Clone())
	s.record(obj, outcome, err)
	return outcome, err
}

// Wait blocks until background repairs finish.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close cancels background repairs and waits for them.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
}

// NeedsRepair reports whether obj is an actor whose feed or link metadata
// is missing or inconsistent with its owner.
func (s *Scheduler) NeedsRepair(obj *activity.Object) bool {
	if obj == nil || obj.ID == "" {
		return false
	}
	d := activity.ToClass(obj.ObjectType)
	if d == nil || !d.Actor {
		return false
	}
	if s.objects.IsLocal(obj.ID) {
		return objects.ApplyLocalMetadata(obj.Clone())
	}
	return s.remoteDrift(obj)
}

// remoteDrift reports missing actor metadata or references under this
// server's origin, which a remote actor must never have.
func (s *Scheduler) remoteDrift(obj *activity.Object) bool {
	for _, rel := range actorLinks {
		href := obj.Link(rel)
		if href == "" || s.objects.IsLocal(href) {
			return true
		}
	}
	for _, feed := range actorFeeds {
		c := obj.Feed(feed)
		if c == nil || c.URL == "" || s.objects.IsLocal(c.URL) {
			return true
		}
	}
	for _, c := range obj.Feeds {
		if c != nil && s.objects.IsLocal(c.URL) {
			return true
		}
	}
	return false
}

func (s *Scheduler) repair(ctx context.Context, obj *activity.Object) (Outcome, error) {
	if !s.NeedsRepair(obj) {
		return OutcomeNoDrift, nil
	}

	if s.objects.IsLocal(obj.ID) {
		objects.ApplyLocalMetadata(obj)
		if _, err := s.objects.Replace(ctx, obj); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeRepaired, nil
	}

	now := s.now()
	if obj.Repair != nil && now.Before(obj.Repair.NextRetry()) {
		return OutcomeBackoff, nil
	}

	doc, err := s.discovery.Webfinger(ctx, obj.ID)
	if err == nil {
		err = s.applyDocument(obj, doc)
	}
	if err != nil {
		if saveErr := s.recordFailure(ctx, obj, now); saveErr != nil {
			return OutcomeFailed, fmt.Errorf("%w (saving backoff state: %v)", err, saveErr)
		}
		return OutcomeFailed, err
	}

	obj.Repair = &activity.RepairState{ConfirmedRepaired: true}
	if _, err := s.objects.Replace(ctx, obj); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeRepaired, nil
}

// applyDocument replaces the actor's links and feeds with the ones the
// owner advertises, dropping references that point at this server.
func (s *Scheduler) applyDocument(obj *activity.Object, doc *discovery.Document) error {
	for _, rel := range actorLinks {
		if doc.Link(rel) == "" {
			return ErrIncompleteDocument
		}
	}
	for _, rel := range actorLinks {
		obj.SetLink(rel, doc.Link(rel))
	}
	for _, feed := range actorFeeds {
		if href := doc.Link(feed); href != "" {
			obj.SetFeed(feed, &activity.Collection{URL: href})
		}
	}
	for name, c := range obj.Feeds {
		if c == nil || s.objects.IsLocal(c.URL) {
			delete(obj.Feeds, name)
		}
	}
	return nil
}

// recordFailure advances the backoff state and saves it.
func (s *Scheduler) recordFailure(ctx context.Context, obj *activity.Object, now time.Time) error {
	var current time.Duration
	if obj.Repair != nil {
		current = time.Duration(obj.Repair.NextRetryInterval) * time.Millisecond
	}
	obj.Repair = &activity.RepairState{
		LastFailure:       now.UnixMilli(),
		NextRetryInterval: NextInterval(current).Milliseconds(),
	}
	_, err := s.objects.Replace(ctx, obj)
	return err
}

func (s *Scheduler) record(obj *activity.Object, outcome Outcome, err error) {
	s.metrics.attempts.WithLabelValues(string(outcome)).Inc()
	switch {
	case err != nil:
		s.log.Warn("actor repair failed", "id", obj.ID, "owner", ownerHost(obj.ID), "error", err)
	case outcome == OutcomeRepaired:
		s.log.Info("actor metadata repaired", "id", obj.ID)
	}
}

func (s *Scheduler) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

// ownerHost returns the server that owns id, for logging.
func ownerHost(id string) string {
	if u, err := url.Parse(id); err == nil && u.Host != "" {
		return u.Host
	}
	return acct.Domain(id)
}
