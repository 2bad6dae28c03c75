// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package deps builds and holds the dependencies shared by all services.
package deps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/MahdiBaghbani/fedgraph-go/internal/components/dialback"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/discovery"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/objects"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/repair"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/tombstone"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/cache"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/config"
	httpclient "github.com/MahdiBaghbani/fedgraph-go/internal/platform/http/client"
	tlspkg "github.com/MahdiBaghbani/fedgraph-go/internal/platform/http/tls"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/store"
)

// Deps holds the dependencies shared by all services of one server
// instance. It is built once at startup and passed explicitly.
type Deps struct {
	Config *config.Config

	// Persistence
	Store      store.Store
	Tombstones *tombstone.Ledger
	Objects    *objects.Resolver

	// Cache backs discovery documents, the replay guard and rate limits.
	Cache cache.Counter

	// Clients
	HTTPClient      httpclient.HTTPClient
	DiscoveryClient *discovery.Client

	// Dialback
	Challenges     *dialback.ChallengeStore
	DialbackClient *dialback.Client
	Verifier       *dialback.Verifier
	Authenticator  *dialback.Authenticator

	// Repair is nil when read-triggered repair is disabled.
	Repair *repair.Scheduler

	// Metrics is the registry served at /metrics.
	Metrics *prometheus.Registry
}

// Options overrides parts of the dependency graph, mainly for tests.
type Options struct {
	// Store replaces the configured store driver. Build does not Init it.
	Store store.Store

	// Cache replaces the configured cache driver.
	Cache cache.Counter

	// HTTPClient replaces the SSRF-guarded outbound client.
	HTTPClient httpclient.HTTPClient

	// Now is the clock handed to every component.
	Now func() time.Time
}

// Build wires the dependency graph from cfg. Close the result on shutdown.
func Build(ctx context.Context, cfg *config.Config, opts Options, log *slog.Logger) (*Deps, error) {
	log = logutil.NoopIfNil(log)
	if opts.Now == nil {
		opts.Now = time.Now
	}

	d := &Deps{Config: cfg, Metrics: prometheus.NewRegistry()}
	d.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st := opts.Store
	if st == nil {
		var err error
		if st, err = openStore(ctx, cfg); err != nil {
			return nil, err
		}
	}
	d.Store = st

	c := opts.Cache
	if c == nil {
		var err error
		if c, err = openCache(cfg); err != nil {
			_ = d.Close()
			return nil, err
		}
	}
	d.Cache = c

	d.HTTPClient = opts.HTTPClient
	if d.HTTPClient == nil {
		roots, err := tlspkg.RootPool(cfg.OutboundHTTP.RootCAFile, cfg.OutboundHTTP.RootCADir)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("outbound root CAs: %w", err)
		}
		hc := httpclient.New(&cfg.OutboundHTTP)
		hc.SetRootCAs(roots)
		d.HTTPClient = httpclient.NewContextClient(hc)
	}

	d.DiscoveryClient = discovery.NewClient(d.HTTPClient, d.Cache, discovery.Options{
		Scheme: cfg.PublicScheme(),
	}, log.With("component", "discovery"))

	dm := dialback.NewMetrics(d.Metrics)
	d.Challenges = dialback.NewChallengeStore(d.Store, dialback.StoreConfig{
		Retention: cfg.Dialback.Retention(),
		Now:       opts.Now,
	}, log.With("component", "dialback"))
	d.DialbackClient = dialback.NewClient(d.Challenges, d.HTTPClient, dialback.ClientOptions{
		Now:              opts.Now,
		Metrics:          dm,
		MaxResponseBytes: cfg.OutboundHTTP.MaxResponseBytes,
		AllowSensitive:   cfg.Logging.AllowSensitive,
	}, log.With("component", "dialback"))

	var err error
	d.Verifier, err = dialback.NewVerifier(d.Challenges, dialback.VerifierConfig{
		PublicOrigin: cfg.PublicOrigin,
		Window:       cfg.Dialback.Window(),
		Now:          opts.Now,
	}, dm, log.With("component", "dialback"))
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.Authenticator, err = dialback.NewAuthenticator(d.DiscoveryClient, d.HTTPClient, d.Cache, dialback.AuthenticatorConfig{
		PublicOrigin: cfg.PublicOrigin,
		Window:       cfg.Dialback.Window(),
		ReplayTTL:    cfg.Dialback.ReplayTTL(),
		Now:          opts.Now,
	}, dm, log.With("component", "dialback"))
	if err != nil {
		_ = d.Close()
		return nil, err
	}

	d.Tombstones = tombstone.NewLedger(d.Store, opts.Now)
	d.Objects, err = objects.NewResolver(d.Store, d.Tombstones, objects.Config{
		PublicOrigin: cfg.PublicOrigin,
		Now:          opts.Now,
	}, log.With("component", "objects"))
	if err != nil {
		_ = d.Close()
		return nil, err
	}

	if cfg.RepairEnabled() {
		d.Repair = repair.New(d.Objects, d.DiscoveryClient, repair.Config{
			Timeout: time.Duration(cfg.Repair.TimeoutMS) * time.Millisecond,
			Now:     opts.Now,
		}, repair.NewMetrics(d.Metrics), log.With("component", "repair"))
		d.Objects.SetRepairer(d.Repair)
	}

	return d, nil
}

// Close stops background repairs and releases the cache and store.
func (d *Deps) Close() error {
	var errs []error
	if d.Repair != nil {
		d.Repair.Close()
	}
	if d.Cache != nil {
		errs = append(errs, d.Cache.Close())
	}
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Store.DataDir != "" && cfg.Store.Driver != "memory" {
		if err := os.MkdirAll(cfg.Store.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	st, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
		Mirror: store.MirrorConfig{
			IncludeSecrets: cfg.Store.MirrorIncludeSecrets,
			SecretKinds:    []string{dialback.Kind},
		},
	})
	if err != nil {
		return nil, err
	}
	if err := st.Init(ctx); err != nil {
		return nil, fmt.Errorf("init %s store: %w", cfg.Store.Driver, err)
	}
	return st, nil
}

func openCache(cfg *config.Config) (cache.Counter, error) {
	driver := cfg.Cache.Driver
	if driver == "" {
		driver = "memory"
	}
	c, err := cache.New(driver, cfg.Cache.DriverConfig())
	if err != nil {
		return nil, err
	}
	counter, ok := c.(cache.Counter)
	if !ok {
		_ = c.Close()
		return nil, fmt.Errorf("cache driver %q does not support counters", driver)
	}
	return counter, nil
}
