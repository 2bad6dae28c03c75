// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package discovery fetches host-meta and webfinger documents (JRD) from
// remote servers and caches them.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/components/acct"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/cache"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/cache/memory"
	httpclient "github.com/MahdiBaghbani/fedgraph-go/internal/platform/http/client"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/logutil"
)

// Well-known paths.
const (
	HostMetaPath  = "/.well-known/host-meta.json"
	WebfingerPath = "/.well-known/webfinger"
)

const maxDocumentBytes = 1 << 20

var (
	// ErrNotFound means the remote answered but has no document.
	ErrNotFound = errors.New("discovery document not found")

	// ErrInvalidDocument means the remote returned something that is not a JRD.
	ErrInvalidDocument = errors.New("invalid discovery document")
)

// Link is one JRD link.
type Link struct {
	Rel      string `json:"rel"`
	Type     string `json:"type,omitempty"`
	Href     string `json:"href,omitempty"`
	Template string `json:"template,omitempty"`
}

// Document is a JSON Resource Descriptor as served by host-meta.json and
// webfinger.
type Document struct {
	Subject string   `json:"subject,omitempty"`
	Aliases []string `json:"aliases,omitempty"`
	Links   []Link   `json:"links"`
}

// Link returns the href of the first link with rel, or "".
func (d *Document) Link(rel string) string {
	for _, l := range d.Links {
		if l.Rel == rel && l.Href != "" {
			return l.Href
		}
	}
	return ""
}

// Options configures a Client.
type Options struct {
	// Scheme used to reach remote servers; defaults to https.
	Scheme string

	// CacheTTL defaults to cache.TTLDiscovery.
	CacheTTL time.Duration
}

// Client fetches and caches remote discovery documents.
type Client struct {
	http     httpclient.HTTPClient
	cache    cache.Cache
	cacheTTL time.Duration
	scheme   string
	log      *slog.Logger
}

// NewClient creates a discovery client. A nil cache is replaced with an
// in-memory one.
func NewClient(hc httpclient.HTTPClient, c cache.Cache, opts Options, log *slog.Logger) *Client {
	if c == nil {
		c = memory.New(cache.TTLDiscovery, time.Minute)
	}
	if opts.Scheme == "" {
		opts.Scheme = "https"
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = cache.TTLDiscovery
	}
	return &Client{
		http:     hc,
		cache:    c,
		cacheTTL: opts.CacheTTL,
		scheme:   opts.Scheme,
		log:      logutil.NoopIfNil(log),
	}
}

// HostMeta fetches the host-meta document of host (host[:port]).
func (c *Client) HostMeta(ctx context.Context, host string) (*Document, error) {
	u := c.scheme + "://" + host + HostMetaPath
	return c.fetchCached(ctx, "discovery:hostmeta:"+host, u)
}

// Webfinger fetches the webfinger document for resource, which is either
// an account address or an http(s) URL.
func (c *Client) Webfinger(ctx context.Context, resource string) (*Document, error) {
	host, resource, err := webfingerHost(resource)
	if err != nil {
		return nil, err
	}
	u := c.scheme + "://" + host + WebfingerPath + "?resource=" + url.QueryEscape(resource)
	return c.fetchCached(ctx, "discovery:webfinger:"+resource, u)
}

func webfingerHost(resource string) (host, canonical string, err error) {
	if strings.HasPrefix(resource, "http://") || strings.HasPrefix(resource, "https://") {
		u, err := url.Parse(resource)
		if err != nil || u.Host == "" {
			return "", "", fmt.Errorf("discovery: invalid resource %q", resource)
		}
		return u.Host, resource, nil
	}
	_, domain, err := acct.Parse(resource)
	if err != nil {
		return "", "", fmt.Errorf("discovery: %w", err)
	}
	return domain, acct.Canonical(resource), nil
}

func (c *Client) fetchCached(ctx context.Context, key, u string) (*Document, error) {
	if data, err := c.cache.Get(ctx, key); err == nil {
		var doc Document
		if err := json.Unmarshal(data, &doc); err == nil {
			return &doc, nil
		}
	}

	doc, err := c.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(doc); err == nil {
		if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
			c.log.Warn("discovery cache write failed", "key", key, "error", err)
		}
	}
	return doc, nil
}

func (c *Client) fetch(ctx context.Context, u string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", httpclient.ErrInvalidURL, err)
	}
	req.Header.Set("Accept", "application/jrd+json, application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("discovery request to %s failed: %w", u, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("discovery read from %s failed: %w", u, err)
	}
	if len(body) > maxDocumentBytes {
		return nil, httpclient.ErrResponseTooLarge
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w at %s", ErrNotFound, u)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("discovery at %s returned status %d", u, resp.StatusCode)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w at %s: %v", ErrInvalidDocument, u, err)
	}
	return &doc, nil
}
