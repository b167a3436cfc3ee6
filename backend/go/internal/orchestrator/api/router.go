package api

import (
	"DayPilot/backend/go/pkg/logger"
	"DayPilot/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置并返回控制 API 的 Gin 引擎。limiter 为 nil 时不限流。
func SetupRouter(h *Handler, log *logger.Logger, limiter ratelimiter.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log))

	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/health", h.Health)
		apiV1.GET("/metrics", h.Metrics)
		apiV1.GET("/phases", h.Phases)

		// 会产生副作用的操作
		control := apiV1.Group("")
		if limiter != nil {
			control.Use(RateLimit(limiter))
		}
		{
			control.POST("/phases/:name/run", h.RunPhase)
			control.POST("/scheduler/start", h.StartScheduler)
			control.POST("/scheduler/stop", h.StopScheduler)
		}
	}
	return r
}
