// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package memory provides an in-memory cache implementation with TTL support.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/cache"
)

func init() {
	cache.RegisterDriver("memory", func(config map[string]any) (cache.Cache, error) {
		defaultTTL := 15 * time.Minute
		cleanupInterval := 5 * time.Minute

		if secs, ok := cache.ConfigInt(config, "default_ttl_seconds"); ok && secs > 0 {
			defaultTTL = time.Duration(secs) * time.Second
		}
		if secs, ok := cache.ConfigInt(config, "cleanup_interval_seconds"); ok && secs > 0 {
			cleanupInterval = time.Duration(secs) * time.Second
		}

		return New(defaultTTL, cleanupInterval), nil
	})
}

type item struct {
	value     []byte
	count     int64
	expiresAt time.Time
}

func (i *item) isExpired(now time.Time) bool {
	return now.After(i.expiresAt)
}

// Cache is an in-memory cache with TTL support.
type Cache struct {
	mu         sync.RWMutex
	items      map[string]*item
	defaultTTL time.Duration
	stopClean  chan struct{}
	closeOnce  sync.Once
}

// New creates a new in-memory cache.
// cleanupInterval specifies how often to run the cleanup goroutine (0 disables).
func New(defaultTTL time.Duration, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		items:      make(map[string]*item),
		defaultTTL: defaultTTL,
		stopClean:  make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}

	return c
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stopClean:
			return
		}
	}
}

func (c *Cache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, v := range c.items {
		if v.isExpired(now) {
			delete(c.items, k)
		}
	}
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	if it.isExpired(time.Now()) {
		return nil, cache.ErrExpired
	}

	result := make([]byte, len(it.value))
	copy(result, it.value)
	return result, nil
}

// Set stores a value with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = c.newItem(value, ttl)
	return nil
}

// Add stores the value unless a live entry already exists.
func (c *Cache) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[key]; ok && !it.isExpired(time.Now()) {
		return false, nil
	}
	c.items[key] = c.newItem(value, ttl)
	return true, nil
}

func (c *Cache) newItem(value []byte, ttl time.Duration) *item {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	return &item{value: valueCopy, expiresAt: time.Now().Add(ttl)}
}

// Increment adds delta to a fixed-window counter.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, window time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	it, ok := c.items[key]
	if !ok || it.isExpired(now) {
		if window <= 0 {
			window = c.defaultTTL
		}
		it = &item{expiresAt: now.Add(window)}
		c.items[key] = it
	}
	it.count += delta
	return it.count, it.expiresAt, nil
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	return nil
}

// Exists checks if a key exists and is not expired.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok {
		return false, nil
	}
	return !it.isExpired(time.Now()), nil
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() { close(c.stopClean) })
	return nil
}

var _ cache.Counter = (*Cache)(nil)
