// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/instanceid"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: strict or dev.
	Mode string `toml:"mode"`

	// PublicOrigin is the public origin (scheme + host + port) for this instance.
	// Object ids are minted under it and dialback identity checks compare against its host.
	// Example: "https://social.example"
	PublicOrigin string `toml:"public_origin"`

	// ListenAddr is the address to listen on.
	// Example: ":9200"
	ListenAddr string `toml:"listen_addr"`

	// TLS configuration
	TLS TLSConfig `toml:"tls"`

	// OutboundHTTP configuration
	OutboundHTTP OutboundHTTPConfig `toml:"outbound_http"`

	// Store selects the persistence driver.
	Store StoreConfig `toml:"store"`

	// Cache configuration
	Cache CacheConfig `toml:"cache"`

	// Dialback configuration
	Dialback DialbackConfig `toml:"dialback"`

	// Repair configuration
	Repair RepairConfig `toml:"repair"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`

	// HTTP holds per-service HTTP configuration (Reva-style).
	HTTP HTTPConfig `toml:"http"`
}

// HTTPConfig holds per-service HTTP configuration.
// Services are configured under [http.services.<svcname>].
type HTTPConfig struct {
	// Services maps service names to their raw config maps.
	// Each service decodes its own config via cfg.Decode() with Setter interface.
	Services map[string]map[string]any `toml:"services"`

	// Interceptors maps interceptor names to their raw config maps.
	// Example: [http.interceptors.ratelimit.profiles.dialback]
	Interceptors map[string]map[string]any `toml:"interceptors"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info in strict mode, debug in dev mode.
	Level string `toml:"level"`

	// AllowSensitive permits logging of sensitive values (dialback tokens).
	// Default: false. Use only for debugging.
	AllowSensitive bool `toml:"allow_sensitive"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Driver is one of memory, json, sqlite, mirror.
	Driver string `toml:"driver"`

	// DataDir holds json files and the sqlite database.
	DataDir string `toml:"data_dir"`

	// MirrorIncludeSecrets exports dialback challenge records in the mirror driver.
	MirrorIncludeSecrets bool `toml:"mirror_include_secrets"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name: "memory" (default) or "redis".
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration (Reva-style).
	// Example: [cache.drivers.redis] addr = "localhost:6379"
	Drivers map[string]any `toml:"drivers"`
}

// DriverConfig returns the raw config map for the selected cache driver.
func (c CacheConfig) DriverConfig() map[string]any {
	raw, ok := c.Drivers[c.Driver]
	if !ok {
		return nil
	}
	m, _ := raw.(map[string]any)
	return m
}

// DialbackConfig holds dialback timing settings.
type DialbackConfig struct {
	// WindowMS is the accepted clock skew for challenge dates. Default: 300000.
	WindowMS int64 `toml:"window_ms"`

	// RetentionSeconds is how long issued challenges are kept. Default: 3600.
	RetentionSeconds int `toml:"retention_seconds"`

	// CleanupIntervalSeconds is how often expired challenges are swept. Default: 600.
	CleanupIntervalSeconds int `toml:"cleanup_interval_seconds"`

	// ReplayTTLSeconds is how long an inbound token is remembered for replay detection.
	// Default: 600.
	ReplayTTLSeconds int `toml:"replay_ttl_seconds"`
}

// Window returns the skew window as a duration.
func (d DialbackConfig) Window() time.Duration { return time.Duration(d.WindowMS) * time.Millisecond }

// Retention returns the challenge retention as a duration.
func (d DialbackConfig) Retention() time.Duration {
	return time.Duration(d.RetentionSeconds) * time.Second
}

// CleanupInterval returns the sweep interval as a duration.
func (d DialbackConfig) CleanupInterval() time.Duration {
	return time.Duration(d.CleanupIntervalSeconds) * time.Second
}

// ReplayTTL returns the replay guard TTL as a duration.
func (d DialbackConfig) ReplayTTL() time.Duration {
	return time.Duration(d.ReplayTTLSeconds) * time.Second
}

// RepairConfig holds repair scheduler settings.
type RepairConfig struct {
	// Enabled turns on read-triggered repair. Pointer for presence detection.
	Enabled *bool `toml:"enabled"`

	// TimeoutMS bounds one repair attempt including discovery. Default: 30000.
	TimeoutMS int `toml:"timeout_ms"`
}

// TLSConfig holds TLS-related settings.
type TLSConfig struct {
	// Mode is one of: off, static, selfsigned
	Mode string `toml:"mode"`

	// CertFile and KeyFile for static mode
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`

	// SelfSignedDir holds the generated certificate in selfsigned mode.
	// Default: .fedgraph/certs
	SelfSignedDir string `toml:"self_signed_dir"`
}

// OutboundHTTPConfig holds settings for outbound HTTP requests.
type OutboundHTTPConfig struct {
	// SSRFMode is one of: strict, off
	SSRFMode string `toml:"ssrf_mode"`

	// TimeoutMS is the overall request timeout in milliseconds
	TimeoutMS int `toml:"timeout_ms"`

	// ConnectTimeoutMS is the connection timeout in milliseconds
	ConnectTimeoutMS int `toml:"connect_timeout_ms"`

	// MaxRedirects is the maximum number of redirects to follow
	MaxRedirects int `toml:"max_redirects"`

	// MaxResponseBytes is the maximum response body size
	MaxResponseBytes int64 `toml:"max_response_bytes"`

	// InsecureSkipVerify disables TLS verification (dev-only)
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`

	// RootCAFile and RootCADir add trusted roots for peers on private CAs.
	RootCAFile string `toml:"root_ca_file"`
	RootCADir  string `toml:"root_ca_dir"`
}

// BuildServiceConfig returns the raw service config map for a given service name.
// Returns nil if the service is not configured in [http.services.<name>].
func (c *Config) BuildServiceConfig(serviceName string) map[string]any {
	if c.HTTP.Services == nil {
		return nil
	}
	svcCfg, ok := c.HTTP.Services[serviceName]
	if !ok {
		return nil
	}
	result := make(map[string]any, len(svcCfg))
	for k, v := range svcCfg {
		result[k] = v
	}
	return result
}

// RepairEnabled returns whether read-triggered repair is on.
func (c *Config) RepairEnabled() bool {
	return c.Repair.Enabled != nil && *c.Repair.Enabled
}

// Redacted returns a string representation of the config with secrets redacted.
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	fmt.Fprintf(&sb, "  Mode: %q,\n", c.Mode)
	fmt.Fprintf(&sb, "  PublicOrigin: %q,\n", c.PublicOrigin)
	fmt.Fprintf(&sb, "  ListenAddr: %q,\n", c.ListenAddr)
	fmt.Fprintf(&sb, "  TLS: {Mode: %q, CertFile: %q, KeyFile: %q},\n", c.TLS.Mode, c.TLS.CertFile, c.TLS.KeyFile)
	fmt.Fprintf(&sb, "  OutboundHTTP: {SSRFMode: %q, TimeoutMS: %d, MaxRedirects: %d, MaxResponseBytes: %d, InsecureSkipVerify: %v},\n",
		c.OutboundHTTP.SSRFMode, c.OutboundHTTP.TimeoutMS, c.OutboundHTTP.MaxRedirects,
		c.OutboundHTTP.MaxResponseBytes, c.OutboundHTTP.InsecureSkipVerify)
	fmt.Fprintf(&sb, "  Store: {Driver: %q, DataDir: %q},\n", c.Store.Driver, c.Store.DataDir)
	// Driver maps may carry passwords; only the selected driver name is shown.
	fmt.Fprintf(&sb, "  Cache: {Driver: %q, Drivers: [REDACTED]},\n", c.Cache.Driver)
	fmt.Fprintf(&sb, "  Dialback: {WindowMS: %d, RetentionSeconds: %d, CleanupIntervalSeconds: %d, ReplayTTLSeconds: %d},\n",
		c.Dialback.WindowMS, c.Dialback.RetentionSeconds, c.Dialback.CleanupIntervalSeconds, c.Dialback.ReplayTTLSeconds)
	fmt.Fprintf(&sb, "  Repair: {Enabled: %v, TimeoutMS: %d},\n", c.RepairEnabled(), c.Repair.TimeoutMS)
	fmt.Fprintf(&sb, "  Logging: {Level: %q, AllowSensitive: %v},\n", c.Logging.Level, c.Logging.AllowSensitive)
	names := make([]string, 0, len(c.HTTP.Services))
	for name := range c.HTTP.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(&sb, "  HTTP: {Services: %q},\n", names)
	sb.WriteString("}")
	return sb.String()
}

// PublicScheme returns "http" or "https" from PublicOrigin.
// Returns "https" if PublicOrigin is empty or unparseable.
func (c *Config) PublicScheme() string {
	if c.PublicOrigin == "" {
		return "https"
	}
	u, err := url.Parse(c.PublicOrigin)
	if err != nil || u.Scheme == "" {
		return "https"
	}
	return strings.ToLower(u.Scheme)
}

// PublicAuthority returns the lowercased host[:port] from PublicOrigin.
func (c *Config) PublicAuthority() string {
	fqdn, err := instanceid.Authority(c.PublicOrigin)
	if err != nil {
		return ""
	}
	return fqdn
}

// LocalDomain returns the host of PublicOrigin without port, used as this
// server's dialback identity.
func (c *Config) LocalDomain() string {
	return instanceid.LocalDomain(c.PublicOrigin)
}
