// Command webgrabber-gui starts the HTTP front-end (C10): an async
// run-management API suitable for driving from a browser UI, CI job,
// or the MCP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/use-agent/webgrabber/api"
	"github.com/use-agent/webgrabber/api/handler"
	"github.com/use-agent/webgrabber/api/middleware"
	"github.com/use-agent/webgrabber/internal/audit"
	"github.com/use-agent/webgrabber/internal/browserpool"
	"github.com/use-agent/webgrabber/internal/config"
	"github.com/use-agent/webgrabber/internal/credential"
	"github.com/use-agent/webgrabber/internal/manifest"
)

func main() {
	initLogger(envOr("WEBGRABBER_LOG_FORMAT", "text"), envOr("WEBGRABBER_LOG_LEVEL", "info"))

	home, _ := os.UserHomeDir()
	stateDir := envOr("WEBGRABBER_STATE_DIR", filepath.Join(home, ".webgrabber"))
	configPath := envOr("WEBGRABBER_CONFIG", filepath.Join(stateDir, "config.json"))
	host := envOr("WEBGRABBER_HOST", "0.0.0.0")
	port := envOr("WEBGRABBER_PORT", "8089")

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	store, err := credential.Open(stateDir)
	if err != nil {
		slog.Error("failed to open credential store", "error", err)
		os.Exit(1)
	}

	var apiKeys []string
	if raw := os.Getenv("WEBGRABBER_API_KEYS"); raw != "" {
		apiKeys = strings.Split(raw, ",")
	}

	handler.Version = envOr("WEBGRABBER_VERSION", handler.Version)
	startTime := time.Now()

	pool, err := browserpool.New(browserpool.Config{MinBrowsers: 1, HardMax: 8})
	if err != nil {
		slog.Error("failed to start browser pool", "error", err)
		os.Exit(1)
	}
	defer pool.Stop()

	manifests, err := manifest.Open(filepath.Join(stateDir, "manifests.db"))
	if err != nil {
		slog.Error("failed to open manifest store", "error", err)
		os.Exit(1)
	}
	defer manifests.Close()

	trail, err := audit.Open(filepath.Join(stateDir, "audit.jsonl"), audit.DefaultRotation)
	if err != nil {
		slog.Error("failed to open audit trail", "error", err)
		os.Exit(1)
	}
	defer trail.Close()

	router := api.NewRouter(api.ServerConfig{
		Mode:        envOr("WEBGRABBER_GIN_MODE", "release"),
		AuthEnabled: len(apiKeys) > 0,
		APIKeys:     apiKeys,
		RateLimit:   middleware.RateLimitConfig{RequestsPerSecond: 5, Burst: 10},
		Config:      cfg,
		Credentials: store,
		Pool:        pool,
		Manifests:   manifests,
		Audit:       trail,
	}, startTime)

	addr := fmt.Sprintf("%s:%s", host, port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}
	slog.Info("webgrabber-gui stopped")
}

func initLogger(format, level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
