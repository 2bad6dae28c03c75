// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode represents the server operating mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides config file mode).
	ModeFlag string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr            *string
	PublicOrigin          *string
	SSRFMode              *string
	TLSMode               *string
	StoreDriver           *string
	DataDir               *string
	CacheDriver           *string
	LoggingLevel          *string
	LoggingAllowSensitive *string // "true", "false", or "" (unset)
	RepairEnabled         *string // "true", "false", or "" (unset)
}

// fileConfig mirrors Config but with pointer fields to detect presence.
type fileConfig struct {
	Mode string `toml:"mode"`

	PublicOrigin string `toml:"public_origin"`
	ListenAddr   string `toml:"listen_addr"`

	TLS          *TLSConfig          `toml:"tls"`
	OutboundHTTP *outboundHTTPConfig `toml:"outbound_http"`
	Store        *StoreConfig        `toml:"store"`
	Cache        *CacheConfig        `toml:"cache"`
	Dialback     *DialbackConfig     `toml:"dialback"`
	Repair       *RepairConfig       `toml:"repair"`
	Logging      *LoggingConfig      `toml:"logging"`
	HTTP         *HTTPConfig         `toml:"http"`
}

// outboundHTTPConfig uses a pointer for the bool so an omitted key keeps the preset.
type outboundHTTPConfig struct {
	SSRFMode           string `toml:"ssrf_mode"`
	TimeoutMS          int    `toml:"timeout_ms"`
	ConnectTimeoutMS   int    `toml:"connect_timeout_ms"`
	MaxRedirects       int    `toml:"max_redirects"`
	MaxResponseBytes   int64  `toml:"max_response_bytes"`
	InsecureSkipVerify *bool  `toml:"insecure_skip_verify"`
	RootCAFile         string `toml:"root_ca_file"`
	RootCADir          string `toml:"root_ca_dir"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > mode in config file > default (strict)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay CLI flags
//  5. Validate enum fields
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid TOML,
// Load returns an error (fail fast). Unknown/undecoded TOML keys produce a warning
// but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}

		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	modeStr := "strict"
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}

	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)

	if opts.ConfigPath != "" {
		overlayFileConfig(cfg, &fc)
	}

	overlayFlags(cfg, opts.FlagOverrides)

	if err := validateEnums(cfg); err != nil {
		return nil, err
	}

	if err := validatePublicOrigin(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func ptrBool(b bool) *bool { return &b }

// presetForMode returns the base config for a given mode.
func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return StrictConfig()
}

// StrictConfig returns production-safe strict defaults.
func StrictConfig() *Config {
	return &Config{
		Mode:         string(ModeStrict),
		PublicOrigin: "https://localhost:9200",
		ListenAddr:   ":9200",
		// TLS is usually terminated by a reverse proxy in front of the server.
		TLS: TLSConfig{
			Mode: "off",
		},
		OutboundHTTP: OutboundHTTPConfig{
			SSRFMode:           "strict",
			TimeoutMS:          10000,
			ConnectTimeoutMS:   2000,
			MaxRedirects:       1,
			MaxResponseBytes:   1048576,
			InsecureSkipVerify: false,
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: ".fedgraph/data",
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		Dialback: DialbackConfig{
			WindowMS:               300000,
			RetentionSeconds:       3600,
			CleanupIntervalSeconds: 600,
			ReplayTTLSeconds:       600,
		},
		Repair: RepairConfig{
			Enabled:   ptrBool(true),
			TimeoutMS: 30000,
		},
		Logging: LoggingConfig{
			Level:          "info",
			AllowSensitive: false,
		},
	}
}

// DevConfig returns development mode defaults.
func DevConfig() *Config {
	cfg := StrictConfig()
	cfg.Mode = string(ModeDev)
	cfg.OutboundHTTP.SSRFMode = "off"
	cfg.OutboundHTTP.MaxRedirects = 3
	cfg.OutboundHTTP.InsecureSkipVerify = true
	cfg.Store.Driver = "json"
	cfg.Logging.Level = "debug"
	return cfg
}

// overlayFileConfig applies TOML file values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.PublicOrigin != "" {
		cfg.PublicOrigin = fc.PublicOrigin
	}
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}

	if fc.TLS != nil {
		if fc.TLS.Mode != "" {
			cfg.TLS.Mode = fc.TLS.Mode
		}
		if fc.TLS.CertFile != "" {
			cfg.TLS.CertFile = fc.TLS.CertFile
		}
		if fc.TLS.KeyFile != "" {
			cfg.TLS.KeyFile = fc.TLS.KeyFile
		}
		if fc.TLS.SelfSignedDir != "" {
			cfg.TLS.SelfSignedDir = fc.TLS.SelfSignedDir
		}
	}

	if fc.OutboundHTTP != nil {
		if fc.OutboundHTTP.SSRFMode != "" {
			cfg.OutboundHTTP.SSRFMode = fc.OutboundHTTP.SSRFMode
		}
		if fc.OutboundHTTP.TimeoutMS != 0 {
			cfg.OutboundHTTP.TimeoutMS = fc.OutboundHTTP.TimeoutMS
		}
		if fc.OutboundHTTP.ConnectTimeoutMS != 0 {
			cfg.OutboundHTTP.ConnectTimeoutMS = fc.OutboundHTTP.ConnectTimeoutMS
		}
		if fc.OutboundHTTP.MaxRedirects != 0 {
			cfg.OutboundHTTP.MaxRedirects = fc.OutboundHTTP.MaxRedirects
		}
		if fc.OutboundHTTP.MaxResponseBytes != 0 {
			cfg.OutboundHTTP.MaxResponseBytes = fc.OutboundHTTP.MaxResponseBytes
		}
		if fc.OutboundHTTP.RootCAFile != "" {
			cfg.OutboundHTTP.RootCAFile = fc.OutboundHTTP.RootCAFile
		}
		if fc.OutboundHTTP.RootCADir != "" {
			cfg.OutboundHTTP.RootCADir = fc.OutboundHTTP.RootCADir
		}
		if fc.OutboundHTTP.InsecureSkipVerify != nil {
			cfg.OutboundHTTP.InsecureSkipVerify = *fc.OutboundHTTP.InsecureSkipVerify
		}
	}

	if fc.Store != nil {
		if fc.Store.Driver != "" {
			cfg.Store.Driver = fc.Store.Driver
		}
		if fc.Store.DataDir != "" {
			cfg.Store.DataDir = fc.Store.DataDir
		}
		cfg.Store.MirrorIncludeSecrets = fc.Store.MirrorIncludeSecrets
	}

	if fc.Cache != nil {
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if len(fc.Cache.Drivers) > 0 {
			cfg.Cache.Drivers = fc.Cache.Drivers
		}
	}

	if fc.Dialback != nil {
		if fc.Dialback.WindowMS > 0 {
			cfg.Dialback.WindowMS = fc.Dialback.WindowMS
		}
		if fc.Dialback.RetentionSeconds > 0 {
			cfg.Dialback.RetentionSeconds = fc.Dialback.RetentionSeconds
		}
		if fc.Dialback.CleanupIntervalSeconds > 0 {
			cfg.Dialback.CleanupIntervalSeconds = fc.Dialback.CleanupIntervalSeconds
		}
		if fc.Dialback.ReplayTTLSeconds > 0 {
			cfg.Dialback.ReplayTTLSeconds = fc.Dialback.ReplayTTLSeconds
		}
	}

	if fc.Repair != nil {
		if fc.Repair.Enabled != nil {
			cfg.Repair.Enabled = fc.Repair.Enabled
		}
		if fc.Repair.TimeoutMS > 0 {
			cfg.Repair.TimeoutMS = fc.Repair.TimeoutMS
		}
	}

	if fc.Logging != nil {
		if fc.Logging.Level != "" {
			cfg.Logging.Level = fc.Logging.Level
		}
		// AllowSensitive is a bool, overlay when section present
		cfg.Logging.AllowSensitive = fc.Logging.AllowSensitive
	}

	if fc.HTTP != nil && len(fc.HTTP.Services) > 0 {
		if cfg.HTTP.Services == nil {
			cfg.HTTP.Services = make(map[string]map[string]any)
		}
		for name, svcCfg := range fc.HTTP.Services {
			cfg.HTTP.Services[name] = svcCfg
		}
	}
	if fc.HTTP != nil && len(fc.HTTP.Interceptors) > 0 {
		if cfg.HTTP.Interceptors == nil {
			cfg.HTTP.Interceptors = make(map[string]map[string]any)
		}
		for name, icCfg := range fc.HTTP.Interceptors {
			cfg.HTTP.Interceptors[name] = icCfg
		}
	}
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	set := func(dst *string, src *string) {
		if src != nil && *src != "" {
			*dst = *src
		}
	}
	set(&cfg.ListenAddr, f.ListenAddr)
	set(&cfg.PublicOrigin, f.PublicOrigin)
	set(&cfg.OutboundHTTP.SSRFMode, f.SSRFMode)
	set(&cfg.TLS.Mode, f.TLSMode)
	set(&cfg.Store.Driver, f.StoreDriver)
	set(&cfg.Store.DataDir, f.DataDir)
	set(&cfg.Cache.Driver, f.CacheDriver)
	set(&cfg.Logging.Level, f.LoggingLevel)

	if f.LoggingAllowSensitive != nil && *f.LoggingAllowSensitive != "" {
		cfg.Logging.AllowSensitive = *f.LoggingAllowSensitive == "true"
	}
	if f.RepairEnabled != nil && *f.RepairEnabled != "" {
		cfg.Repair.Enabled = ptrBool(*f.RepairEnabled == "true")
	}
}

// validateEnums validates enum-like config fields and returns an error for invalid values.
func validateEnums(cfg *Config) error {
	switch cfg.TLS.Mode {
	case "off", "selfsigned":
	case "static":
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return fmt.Errorf("tls.mode static requires tls.cert_file and tls.key_file")
		}
	default:
		return fmt.Errorf("invalid tls.mode %q: must be one of off, static, selfsigned", cfg.TLS.Mode)
	}

	switch cfg.OutboundHTTP.SSRFMode {
	case "strict", "off":
	default:
		return fmt.Errorf("invalid outbound_http.ssrf_mode %q: must be one of strict, off", cfg.OutboundHTTP.SSRFMode)
	}

	switch cfg.Store.Driver {
	case "memory":
	case "json", "sqlite", "mirror":
		if cfg.Store.DataDir == "" {
			return fmt.Errorf("store.data_dir is required for store.driver %q", cfg.Store.Driver)
		}
	default:
		return fmt.Errorf("invalid store.driver %q: must be one of memory, json, sqlite, mirror", cfg.Store.Driver)
	}

	switch cfg.Cache.Driver {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("invalid cache.driver %q: must be one of memory or redis", cfg.Cache.Driver)
	}

	switch cfg.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of trace, debug, info, warn, error", cfg.Logging.Level)
	}

	if cfg.Dialback.CleanupIntervalSeconds > cfg.Dialback.RetentionSeconds {
		return fmt.Errorf("dialback.cleanup_interval_seconds (%d) must not exceed dialback.retention_seconds (%d)",
			cfg.Dialback.CleanupIntervalSeconds, cfg.Dialback.RetentionSeconds)
	}

	return nil
}

// validatePublicOrigin checks the public_origin config value.
// Must be an absolute URL with http/https scheme, a host, no userinfo,
// query, fragment, or path. Whitespace is rejected, not trimmed.
func validatePublicOrigin(cfg *Config) error {
	origin := cfg.PublicOrigin
	if origin == "" {
		return fmt.Errorf("public_origin is required")
	}

	if origin != strings.TrimSpace(origin) {
		return fmt.Errorf("invalid public_origin %q: must not contain leading or trailing whitespace", origin)
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid public_origin %q: %w", origin, err)
	}

	if !u.IsAbs() {
		return fmt.Errorf("invalid public_origin %q: must be an absolute URL with http or https scheme", origin)
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("invalid public_origin %q: scheme must be http or https, got %q", origin, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("invalid public_origin %q: must include a host", origin)
	}

	if u.User != nil {
		return fmt.Errorf("invalid public_origin %q: must not include userinfo", origin)
	}

	if u.RawQuery != "" {
		return fmt.Errorf("invalid public_origin %q: must not include a query string", origin)
	}

	if u.Fragment != "" {
		return fmt.Errorf("invalid public_origin %q: must not include a fragment", origin)
	}

	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("invalid public_origin %q: must not include a path", origin)
	}

	return nil
}
