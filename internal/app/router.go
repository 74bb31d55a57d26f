package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"glamtrack/internal/handler"
	"glamtrack/internal/middleware"
	internalRedis "glamtrack/internal/redis"
	"glamtrack/internal/relay"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	TrackingHandler *handler.TrackingHandler
	StatusHandler   *handler.StatusHandler
	Hub             *relay.Hub
	Tracker         *relay.Tracker
	ResponseCache   internalRedis.ResponseCacheInterface
	NewRelicApp     *newrelic.Application
	JWTSecret       string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Websocket endpoint. Auth happens inside the handler because the
	// token rides in the query string.
	router.GET("/ws", relay.HandleWebSocket(deps.Hub, deps.Tracker, deps.JWTSecret))

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.JWTSecret))
	v1.Use(middleware.IdempotencyMiddleware(deps.ResponseCache))
	{
		orders := v1.Group("/orders")
		{
			orders.GET("/:id/tracking", deps.TrackingHandler.GetTrackingSeed)
			orders.POST("/:id/status", deps.StatusHandler.UpdateStatus)
		}
	}

	return router
}
