package api

import (
	"pulsewire/internal/metrics"
	"pulsewire/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func RegisterRoutes(h *TelemetryHandler, rdb *redis.Client, apiKey string, requestsPerSecond int) *gin.Engine {
	r := gin.New()

	r.Use(
		middleware.CorsMiddleware(),
		middleware.RequestID(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
	)
	r.SetTrustedProxies(nil)

	// Public Routes
	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Ingest and control routes, gated by the static agent key.
	protected := r.Group("/v1")
	protected.Use(middleware.AgentKeyMiddleware(apiKey))

	// Rate limiter for ingest writes only; control operations stay cheap.
	ingestLimiter := middleware.RateLimitMiddleware(rdb, requestsPerSecond)

	{
		protected.POST("/telemetry", ingestLimiter, h.Submit)
		protected.POST("/telemetry/batch", ingestLimiter, h.SubmitBatch)
		protected.POST("/flush", h.Flush)
		protected.GET("/queue", h.Queue)
		protected.DELETE("/queue", h.ClearQueue)
		protected.GET("/pipeline/metrics", h.PipelineMetrics)
		protected.PUT("/config", h.UpdateConfig)
		protected.PUT("/network", h.SetNetworkState)
	}
	return r
}
