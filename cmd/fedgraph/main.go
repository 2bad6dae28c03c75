// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package main is the entrypoint for the fedgraph server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/config"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/deps"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/http/server"

	_ "github.com/MahdiBaghbani/fedgraph-go/internal/platform/cache/loader"
	_ "github.com/MahdiBaghbani/fedgraph-go/internal/platform/store/loader"
	_ "github.com/MahdiBaghbani/fedgraph-go/internal/services/loader"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: strict, interop, or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	publicOrigin := flag.String("public-origin", "", "Public origin of this server (overrides config)")
	ssrfMode := flag.String("ssrf-mode", "", "SSRF protection mode: strict or off (overrides config)")
	tlsMode := flag.String("tls-mode", "", "TLS mode: off, static, or selfsigned (overrides config)")
	storeDriver := flag.String("store-driver", "", "Store driver: memory, json, sqlite, or mirror (overrides config)")
	dataDir := flag.String("data-dir", "", "Data directory for persistent stores (overrides config)")
	cacheDriver := flag.String("cache-driver", "", "Cache driver: memory or redis (overrides config)")
	repairEnabled := flag.String("repair-enabled", "", "Read-triggered repair of stale remote objects: true or false (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	loggingAllowSensitive := flag.String("logging-allow-sensitive", "", "Allow sensitive values in logs: true or false (overrides config)")
	flag.Parse()

	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Precedence: mode preset -> TOML file -> CLI flags
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:            listenAddr,
			PublicOrigin:          publicOrigin,
			SSRFMode:              ssrfMode,
			TLSMode:               tlsMode,
			StoreDriver:           storeDriver,
			DataDir:               dataDir,
			CacheDriver:           cacheDriver,
			LoggingLevel:          loggingLevel,
			LoggingAllowSensitive: loggingAllowSensitive,
			RepairEnabled:         repairEnabled,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Logging.Level)}))
	slog.SetDefault(logger)
	logger.Info("effective configuration", "config", cfg.Redacted())

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := deps.Build(ctx, cfg, deps.Options{}, logger)
	if err != nil {
		return fmt.Errorf("build dependencies: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("closing dependencies", "error", err)
		}
	}()

	n, err := d.Challenges.Rehydrate(ctx)
	if err != nil {
		return fmt.Errorf("rehydrate challenges: %w", err)
	}
	logger.Info("rehydrated dialback challenges", "count", n)
	go d.Challenges.Run(ctx, cfg.Dialback.CleanupInterval())

	services, err := service.Build(service.CoreServices, d, logger)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, d, logger, services)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	logger.Info("server started, press Ctrl+C to stop")

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "trace":
		return slog.LevelDebug - 4 // slog has no trace level
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
