package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"issue-scout/internal/services/health"
	"issue-scout/internal/shared/config"
	"issue-scout/internal/shared/metrics"
	"issue-scout/internal/shared/server/middleware"
	"issue-scout/internal/shared/server/respond"
)

// RouteRegistrar is implemented by every feature handler.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// RouterDeps are the handlers and services mounted by NewRouter.
type RouterDeps struct {
	Config   config.Config
	Health   *health.Service
	Handlers []RouteRegistrar
	// RateLimits overrides the default per-group buckets when non-nil.
	RateLimits map[string]middleware.RateLimitRule
}

// DefaultRateLimits gives scan triggers a narrow bucket and progress polling a wide one.
func DefaultRateLimits() map[string]middleware.RateLimitRule {
	return map[string]middleware.RateLimitRule{
		"SCAN":    {Rate: 0.2, Burst: 3},
		"POLLING": {Rate: 5, Burst: 20},
		"DEFAULT": {Rate: 10, Burst: 30},
	}
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	limits := deps.RateLimits
	if limits == nil {
		limits = DefaultRateLimits()
	}

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Identity(deps.Config.Env),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    limits,
			GroupFor: middleware.ScanRouteGroups,
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		status, ok := deps.Health.Status(c.Request.Context())
		if !ok {
			respond.JSON(c, http.StatusServiceUnavailable, status)
			return
		}
		respond.OK(c, status)
	})
	for _, h := range deps.Handlers {
		if h != nil {
			h.RegisterRoutes(api)
		}
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
