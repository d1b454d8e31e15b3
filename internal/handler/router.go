package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"shopchat/internal/middleware"
	"shopchat/internal/monitor"
	"shopchat/pkg/limiter"
	"shopchat/pkg/utils"
)

// RouterConfig wires the ops/API surface
type RouterConfig struct {
	Health    *HealthHandler
	Customers *CustomerHandler
	Messages  *MessageHandler

	// TokenValidator authenticates /api/v1. Nil leaves the API unmounted.
	TokenValidator func(token string) (*middleware.UserInfo, error)

	Metrics     *monitor.MetricsCollector
	MetricsPath string
	Tracer      *monitor.Tracer

	// RateLimiter limits /api/v1 per tenant. Nil disables it.
	RateLimiter    limiter.RateLimiter
	RequestTimeout time.Duration
}

// NewRouter builds the gin engine
func NewRouter(cfg RouterConfig) *gin.Engine {
	utils.RegisterCustomValidators()
	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())
	router.Use(middleware.Observe(cfg.Metrics, cfg.Tracer))

	router.GET("/health", cfg.Health.Health)
	router.GET("/ping", cfg.Health.Ping)
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(cfg.Metrics.Handler()))
	}

	router.NoRoute(func(c *gin.Context) {
		utils.Error(c, utils.CodeNotFound, "route not found")
	})

	if cfg.TokenValidator == nil {
		return router
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.TokenValidator))
	v1.Use(middleware.RateLimit(cfg.RateLimiter))
	v1.Use(middleware.Timeout(cfg.RequestTimeout))
	{
		customers := v1.Group("/customers")
		{
			customers.GET("/:id/messages", cfg.Customers.ListMessages)
			customers.GET("/:id/conversation", cfg.Customers.GetConversation)
		}
		v1.POST("/messages/resync", cfg.Messages.Resync)
	}
	return router
}
