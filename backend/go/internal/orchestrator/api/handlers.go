package api

import (
	"DayPilot/backend/go/internal/models"
	"DayPilot/backend/go/internal/orchestrator"
	"DayPilot/backend/go/pkg/logger"
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Controller 是控制 API 所需的调度器能力。
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Running() bool
	RunPhase(ctx context.Context, name string) (models.AgentRunRecord, error)
	Metrics() models.RunnerMetrics
	Phases() []orchestrator.PhaseStatus
	Health(ctx context.Context) models.SystemHealth
}

// Handler 处理控制 API 的请求。
type Handler struct {
	ctrl Controller
	log  *logger.Logger
}

// NewHandler 创建一个 Handler。
func NewHandler(ctrl Controller, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{ctrl: ctrl, log: log}
}

// Health 返回调度器和依赖的健康状态。
func (h *Handler) Health(c *gin.Context) {
	health := h.ctrl.Health(c.Request.Context())
	status := http.StatusOK
	for _, dep := range health.Dependencies {
		if dep != "ok" {
			status = http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(status, health)
}

// Metrics 返回调度计数器。
func (h *Handler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Metrics())
}

// Phases 返回阶段表。
func (h *Handler) Phases(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"running": h.ctrl.Running(), "phases": h.ctrl.Phases()})
}

// RunPhase 立即同步运行一个阶段，并返回其执行记录。
func (h *Handler) RunPhase(c *gin.Context) {
	name := c.Param("name")
	rec, err := h.ctrl.RunPhase(c.Request.Context(), name)
	switch {
	case errors.Is(err, orchestrator.ErrUnknownPhase):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, orchestrator.ErrPhaseRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.log.WithError(models.NewErrorInfo(err)).Error("手动触发阶段失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// StartScheduler 启动调度循环。
func (h *Handler) StartScheduler(c *gin.Context) {
	if err := h.ctrl.Start(c.Request.Context()); err != nil {
		if errors.Is(err, orchestrator.ErrSchedulerRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": true})
}

// StopScheduler 停止调度循环并等待进行中的阶段结束。
func (h *Handler) StopScheduler(c *gin.Context) {
	if err := h.ctrl.Stop(c.Request.Context()); err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": false})
}
