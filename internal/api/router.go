package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"fleet-monitor-backend/config"
	"fleet-monitor-backend/internal/mw"
)

// NewResponseCache builds the history cache from the server config.
func NewResponseCache(cfg config.ServerConfig) *mw.ResponseCache {
	return mw.NewResponseCache(time.Duration(cfg.CacheTTLSeconds) * time.Second)
}

// NewRouter creates and configures a new Gin router.
func NewRouter(deps Deps, cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	if deps.Cache == nil {
		deps.Cache = NewResponseCache(cfg)
	}
	caching := deps.Cache.Middleware()
	handler := NewHandler(deps)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.RequestIPHeader)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/health", handler.GetHealth)
		api.GET("/robots", handler.GetRobots)

		api.GET("/exceptions", handler.GetOpenExceptions)
		api.GET("/exceptions/history", caching, handler.GetExceptionHistory)
		api.POST("/exceptions/:robot_id/ack", handler.AcknowledgeException)

		api.GET("/blacklist", handler.GetBlacklist)
		api.PUT("/blacklist", handler.PutBlacklist)

		api.GET("/session", handler.GetSession)
		api.POST("/session", handler.StartSession)
		api.DELETE("/session", handler.EndSession)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
