package store

import (
	"DayPilot/backend/go/internal/models"
	"DayPilot/backend/go/pkg/logger"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// 状态键
const (
	KeyLatestSnapshot   = "latest_snapshot"
	KeyLatestPlan       = "latest_plan"
	KeyLastPlanningTime = "last_planning_time"
	KeyLatestExecution  = "latest_execution"
	KeyLatestReview     = "latest_review"
	KeyRunnerMetrics    = "runner_metrics"
	KeySystemHealth     = "system_health"
)

// 学习数据键
const (
	KeyTaskPatterns        = "task_patterns"
	KeyPerformanceInsights = "performance_insights"
	KeyUserPreferences     = "user_preferences"
)

const (
	stateNamespace    = "state"
	learningNamespace = "learning"
	planKeyPrefix     = "plan:"
)

// PlanKey 返回按日期保存计划的状态键，date 形如 2006-01-02。
// latest_plan 会被每次规划覆盖，复盘按日期读取当天最后一版计划。
func PlanKey(date string) string {
	return planKeyPrefix + date
}

// LearningStore 是持久化状态、学习数据和追加写日志的统一入口。
// Get* 在键不存在时返回 found=false 且不报错；所有存储故障都包装 models.ErrPersistence。
type LearningStore interface {
	GetState(ctx context.Context, key string, out interface{}) (bool, error)
	SetState(ctx context.Context, key string, value interface{}) error
	GetLearningData(ctx context.Context, key string, out interface{}) (bool, error)
	SaveLearningData(ctx context.Context, key string, value interface{}) error
	AppendExecutionLog(ctx context.Context, record models.AgentRunRecord) error
	AppendResolutionLog(ctx context.Context, entry models.ResolutionLogEntry) error
}

// KV 是按命名空间划分的键值存储。
type KV interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
}

// Journal 是只追加的日志存储。
type Journal interface {
	AppendExecution(ctx context.Context, record models.AgentRunRecord) error
	AppendResolution(ctx context.Context, entry models.ResolutionLogEntry) error
}

// RunPublisher 把执行记录转发到外部，失败不影响日志写入。
type RunPublisher interface {
	PublishRun(ctx context.Context, record models.AgentRunRecord) error
}

// Store 组合 KV 和 Journal 实现 LearningStore。
type Store struct {
	kv        KV
	journal   Journal
	publisher RunPublisher
	log       *logger.Logger
	now       func() time.Time
}

// Option 配置 Store。
type Option func(*Store)

// WithPublisher 设置执行记录的转发器。
func WithPublisher(p RunPublisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithLogger 设置日志记录器。
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock 设置时间来源。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New 创建一个 Store。
func New(kv KV, journal Journal, opts ...Option) *Store {
	s := &Store{kv: kv, journal: journal, log: logger.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetState 读取状态键并解码到 out。
func (s *Store) GetState(ctx context.Context, key string, out interface{}) (bool, error) {
	return s.get(ctx, stateNamespace, key, out)
}

// SetState 整体替换状态键的值。
func (s *Store) SetState(ctx context.Context, key string, value interface{}) error {
	return s.set(ctx, stateNamespace, key, value)
}

// GetLearningData 读取学习数据并解码到 out。
func (s *Store) GetLearningData(ctx context.Context, key string, out interface{}) (bool, error) {
	return s.get(ctx, learningNamespace, key, out)
}

// SaveLearningData 整体替换学习数据。
func (s *Store) SaveLearningData(ctx context.Context, key string, value interface{}) error {
	return s.set(ctx, learningNamespace, key, value)
}

// AppendExecutionLog 追加一条阶段执行记录，并尽力转发给发布者。
func (s *Store) AppendExecutionLog(ctx context.Context, record models.AgentRunRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now().UTC()
	}
	if err := s.journal.AppendExecution(ctx, record); err != nil {
		return fmt.Errorf("%w: append execution log for %s: %v", models.ErrPersistence, record.Agent, err)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishRun(ctx, record); err != nil {
			s.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "publish_failure", Phase: record.Agent}).
				Warn("无法转发执行记录")
		}
	}
	return nil
}

// AppendResolutionLog 追加一条冲突解决记录。
func (s *Store) AppendResolutionLog(ctx context.Context, entry models.ResolutionLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}
	if err := s.journal.AppendResolution(ctx, entry); err != nil {
		return fmt.Errorf("%w: append resolution log for %s: %v", models.ErrPersistence, entry.TaskRef, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, namespace, key string, out interface{}) (bool, error) {
	data, found, err := s.kv.Get(ctx, namespace, key)
	if err != nil {
		return false, fmt.Errorf("%w: read %s: %v", models.ErrPersistence, key, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", models.ErrPersistence, key, err)
	}
	return true, nil
}

func (s *Store) set(ctx context.Context, namespace, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", models.ErrPersistence, key, err)
	}
	if err := s.kv.Set(ctx, namespace, key, data); err != nil {
		return fmt.Errorf("%w: write %s: %v", models.ErrPersistence, key, err)
	}
	return nil
}
