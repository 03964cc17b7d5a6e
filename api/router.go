package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagediff/api/handler"
	"github.com/use-agent/pagediff/api/middleware"
	"github.com/use-agent/pagediff/config"
	"github.com/use-agent/pagediff/normalizer"
	"github.com/use-agent/pagediff/store"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health sits outside auth. ctx bounds the rate limiter's background cleanup.
func NewRouter(ctx context.Context, cfg *config.Config, runner handler.DiffRunner, st store.Store, sessions handler.SessionStatter, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(sessions, cfg.Store.Driver, startTime))

	// Protected group: auth and rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	// Diff
	protected.POST("/diff", handler.PostDiff(runner))

	// Review
	md := normalizer.NewMarkdownConverter()
	protected.GET("/snapshots", handler.ListSnapshots(st))
	protected.GET("/snapshots/:id", handler.GetSnapshot(st))
	protected.GET("/snapshots/:id/:side/body", handler.GetSideBody(st, md))
	protected.GET("/snapshots/:id/:side/metadata", handler.GetSideMetadata(st))
	protected.GET("/assets/:ref", handler.GetAsset(st))

	return r
}
