package api

import (
	"DayPilot/backend/go/internal/models"
	"DayPilot/backend/go/pkg/logger"
	"DayPilot/backend/go/pkg/ratelimiter"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger 为每个请求记录一条结构化日志。
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithRequest(models.RequestInfo{
			Method:     c.Request.Method,
			Path:       c.FullPath(),
			RemoteAddr: c.ClientIP(),
			Status:     c.Writer.Status(),
			LatencyMs:  time.Since(start).Milliseconds(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("请求失败")
			return
		}
		entry.Debug("请求完成")
	}
}

// RateLimit 限制手动触发的频率，超出时返回 429。
func RateLimit(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
