package executor

import (
	"DayPilot/backend/go/internal/database/kafka"
	"DayPilot/backend/go/internal/models"
	"DayPilot/backend/go/pkg/logger"
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Executor 把最终计划落地到外部系统并返回执行报告。
type Executor interface {
	Execute(ctx context.Context, plan *models.PlanProposal) (*models.ExecutionReport, error)
}

// PlanMessage 是发布到计划主题的消息体，下游的日历和任务同步服务消费它。
type PlanMessage struct {
	Plan        *models.PlanProposal `json:"plan"`
	PublishedAt time.Time            `json:"published_at"`
}

// KafkaExecutor 把计划发布到 Kafka，由下游服务更新日历、任务状态并发送通知。
type KafkaExecutor struct {
	writer kafka.MessageWriter
	topic  string
	log    *logger.Logger
	now    func() time.Time
}

// NewKafkaExecutor 创建一个写入计划主题的 KafkaExecutor。
func NewKafkaExecutor(client *kafka.KafkaClient, log *logger.Logger) *KafkaExecutor {
	return NewKafkaExecutorWithWriter(client.NewTopicWriter(client.Config.PlanTopic), client.Config.PlanTopic, log)
}

// NewKafkaExecutorWithWriter 使用给定的 writer 创建 KafkaExecutor。
func NewKafkaExecutorWithWriter(w kafka.MessageWriter, topic string, log *logger.Logger) *KafkaExecutor {
	if log == nil {
		log = logger.Discard()
	}
	return &KafkaExecutor{writer: w, topic: topic, log: log, now: time.Now}
}

// Execute 发布计划。报告列出交给下游的日历条目、任务状态更新和通知。
func (k *KafkaExecutor) Execute(ctx context.Context, plan *models.PlanProposal) (*models.ExecutionReport, error) {
	if plan == nil {
		return nil, fmt.Errorf("%w: no plan to execute", models.ErrDataUnavailable)
	}
	now := k.now().UTC()
	report := &models.ExecutionReport{
		CalendarUpdates: []string{},
		NotionUpdates:   []string{},
		Notifications:   []string{},
		Errors:          []string{},
		ExecutedAt:      now,
	}

	data, err := json.Marshal(PlanMessage{Plan: plan, PublishedAt: now})
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafkago.Message{Key: []byte(plan.Date), Value: data}); err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report, fmt.Errorf("publish plan %s to %s: %w", plan.Date, k.topic, err)
	}

	for _, e := range plan.Schedule {
		report.CalendarUpdates = append(report.CalendarUpdates,
			fmt.Sprintf("%s %s-%s", e.Title, e.Start.Format("15:04"), e.End.Format("15:04")))
		if e.TaskID != "" {
			report.NotionUpdates = append(report.NotionUpdates,
				fmt.Sprintf("%s -> %s", e.TaskID, models.TaskStatusScheduled))
		}
	}
	report.Notifications = append(report.Notifications,
		fmt.Sprintf("plan for %s: %d entries, %d open conflicts", plan.Date, len(plan.Schedule), len(plan.Conflicts)))

	k.log.WithPayload(map[string]interface{}{"date": plan.Date, "topic": k.topic, "entries": len(plan.Schedule)}).Info("计划已发布")
	return report, nil
}

// Close 关闭底层的 writer。
func (k *KafkaExecutor) Close() error {
	return k.writer.Close()
}
