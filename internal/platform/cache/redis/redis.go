// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package redis provides a Redis/Valkey cache driver backed by valkey-go.
package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/cache"
)

func init() {
	cache.RegisterDriver("redis", func(config map[string]any) (cache.Cache, error) {
		cfg := DefaultConfig()
		if addr := cache.ConfigString(config, "addr"); addr != "" {
			cfg.Addr = addr
		}
		cfg.Password = cache.ConfigString(config, "password")
		if db, ok := cache.ConfigInt(config, "db"); ok {
			cfg.DB = db
		}
		if secs, ok := cache.ConfigInt(config, "default_ttl_seconds"); ok && secs > 0 {
			cfg.DefaultTTL = time.Duration(secs) * time.Second
		}
		return New(cfg)
	})
}

// Config holds Redis connection configuration.
type Config struct {
	Addr        string        // Redis address (host:port)
	Password    string        // Optional password
	DB          int           // Database number
	DialTimeout time.Duration // Connection timeout
	DefaultTTL  time.Duration // Used when Set is called with ttl 0
}

// DefaultConfig returns sensible defaults for Redis connection.
func DefaultConfig() *Config {
	return &Config{
		Addr:        "localhost:6379",
		DialTimeout: 5 * time.Second,
		DefaultTTL:  cache.TTLDiscovery,
	}
}

// Cache wraps a valkey client.
type Cache struct {
	client     valkey.Client
	defaultTTL time.Duration
}

// New connects and pings the server; it fails fast when Redis is unreachable.
func New(cfg *Config) (*Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = cache.TTLDiscovery
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{cfg.Addr},
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		Dialer:       net.Dialer{Timeout: cfg.DialTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("redis connect %s: %w", cfg.Addr, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis health check %s: %w", cfg.Addr, err)
	}

	return &Cache{client: client, defaultTTL: cfg.DefaultTTL}, nil
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, cache.ErrNotFound
	}
	return val, err
}

// Set stores a value with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := c.client.B().Set().Key(key).Value(valkey.BinaryString(value)).PxMilliseconds(c.ttlMillis(ttl)).Build()
	return c.client.Do(ctx, cmd).Error()
}

// Add uses SET NX so concurrent callers across instances agree on one winner.
func (c *Cache) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	cmd := c.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Nx().PxMilliseconds(c.ttlMillis(ttl)).Build()
	err := c.client.Do(ctx, cmd).Error()
	if valkey.IsValkeyNil(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Increment runs INCRBY and arms the window expiry on the first hit.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, window time.Duration) (int64, time.Time, error) {
	count, err := c.client.Do(ctx, c.client.B().Incrby().Key(key).Increment(delta).Build()).AsInt64()
	if err != nil {
		return 0, time.Time{}, err
	}
	ms := c.ttlMillis(window)
	if count == delta {
		if err := c.client.Do(ctx, c.client.B().Pexpire().Key(key).Milliseconds(ms).Build()).Error(); err != nil {
			return 0, time.Time{}, err
		}
	}
	ttl, err := c.client.Do(ctx, c.client.B().Pttl().Key(key).Build()).AsInt64()
	if err != nil {
		return 0, time.Time{}, err
	}
	if ttl < 0 {
		// Lost the expiry (key created by another writer without one).
		if err := c.client.Do(ctx, c.client.B().Pexpire().Key(key).Milliseconds(ms).Build()).Error(); err != nil {
			return 0, time.Time{}, err
		}
		ttl = ms
	}
	return count, time.Now().Add(time.Duration(ttl) * time.Millisecond), nil
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
}

// Exists checks if a key exists.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Do(ctx, c.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close releases the client.
func (c *Cache) Close() error {
	c.client.Close()
	return nil
}

func (c *Cache) ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms
}

var _ cache.Counter = (*Cache)(nil)
