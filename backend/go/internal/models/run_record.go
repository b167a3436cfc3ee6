package models

import (
	"errors"
	"time"
)

// RunStatus 定义了阶段执行记录的状态枚举。
type RunStatus string

const (
	RunStatusSuccess       RunStatus = "success"
	RunStatusError         RunStatus = "error"
	RunStatusCriticalError RunStatus = "critical_error"
)

// AgentRunRecord 是一次阶段执行的审计日志，写入后不可修改。
type AgentRunRecord struct {
	ID         string                 `json:"id" bson:"_id"`
	Agent      string                 `json:"agent" bson:"agent"`
	Status     RunStatus              `json:"status" bson:"status"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Error      string                 `json:"error,omitempty" bson:"error,omitempty"`
	DurationMs int64                  `json:"duration_ms" bson:"duration_ms"`
	Timestamp  time.Time              `json:"timestamp" bson:"timestamp"`
}

// ResolutionLogEntry 记录一次冲突解决尝试，无论是否被应用。
type ResolutionLogEntry struct {
	ID           string      `json:"id" bson:"_id"`
	TaskRef      string      `json:"task_ref" bson:"task_ref"`
	ConflictType string      `json:"conflict_type" bson:"conflict_type"`
	Original     Conflict    `json:"original" bson:"original"`
	Resolved     *Resolution `json:"resolved,omitempty" bson:"resolved,omitempty"`
	Applied      bool        `json:"applied" bson:"applied"`
	Reason       string      `json:"reason" bson:"reason"`
	Timestamp    time.Time   `json:"timestamp" bson:"timestamp"`
}

// PhaseMetrics 是单个阶段的执行计数
type PhaseMetrics struct {
	Runs           int64     `json:"runs"`
	Successes      int64     `json:"successes"`
	Errors         int64     `json:"errors"`
	Rejected       int64     `json:"rejected"`
	LastStatus     RunStatus `json:"last_status,omitempty"`
	LastDurationMs int64     `json:"last_duration_ms"`
	LastRunAt      time.Time `json:"last_run_at,omitempty"`
}

// RunnerMetrics 是调度器的全局计数器，持久化到 runner_metrics
type RunnerMetrics struct {
	TotalRuns  int64                   `json:"total_runs"`
	Successful int64                   `json:"successful"`
	Errors     int64                   `json:"errors"`
	Rejected   int64                   `json:"rejected"`
	Phases     map[string]PhaseMetrics `json:"phases"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// SystemHealth 是调度器与依赖的健康快照，持久化到 system_health
type SystemHealth struct {
	Status       string            `json:"status"` // running / stopped
	Phases       map[string]string `json:"phases"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	CheckedAt    time.Time         `json:"checked_at"`
}

var (
	// ErrDataUnavailable 表示没有可用的新鲜快照或计划。
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrPersistence 表示学习存储写入失败。
	ErrPersistence = errors.New("persistence failure")
)
