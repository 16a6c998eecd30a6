// Package api wires the gin router for the webgrabber HTTP front-end
// (C10): a thin wrapper around the orchestrator (C7) for concurrent or
// remote triggering.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webgrabber/api/handler"
	"github.com/use-agent/webgrabber/api/middleware"
	"github.com/use-agent/webgrabber/internal/audit"
	"github.com/use-agent/webgrabber/internal/browserpool"
	"github.com/use-agent/webgrabber/internal/config"
	"github.com/use-agent/webgrabber/internal/credential"
	"github.com/use-agent/webgrabber/internal/manifest"
)

// ServerConfig configures the router's middleware and handler
// dependencies.
type ServerConfig struct {
	Mode        string
	AuthEnabled bool
	APIKeys     []string
	RateLimit   middleware.RateLimitConfig
	Config      *config.Config
	Credentials *credential.Store
	Pool        *browserpool.Pool
	Manifests   *manifest.Store
	Audit       *audit.Trail
}

// NewRouter builds a gin.Engine exposing the run-management API.
//
// Middleware chain:
//
//	Global: Recovery -> Logger
//	API:    Auth (if enabled) -> RateLimit
//
// Health is intentionally outside auth so monitoring probes always work.
func NewRouter(cfg ServerConfig, startTime time.Time) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(startTime))

	protected := v1.Group("")
	if cfg.AuthEnabled {
		protected.Use(middleware.Auth(cfg.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	deps := handler.Deps{Config: cfg.Config, Credentials: cfg.Credentials, Pool: cfg.Pool, Manifests: cfg.Manifests, Audit: cfg.Audit}
	protected.POST("/runs", handler.PostRun(deps))
	protected.GET("/runs/:id", handler.GetRun())
	protected.POST("/runs/:id/cancel", handler.CancelRun())

	return r
}
