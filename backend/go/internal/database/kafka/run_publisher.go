package kafka

import (
	"DayPilot/backend/go/internal/models"
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// RunPublisher 把阶段执行记录镜像到 Kafka，供外部监控消费。
type RunPublisher struct {
	writer MessageWriter
}

// NewRunPublisher 创建一个写入运行事件主题的 RunPublisher。
func NewRunPublisher(client *KafkaClient) *RunPublisher {
	return &RunPublisher{writer: client.NewTopicWriter(client.Config.RunTopic)}
}

// NewRunPublisherWithWriter 使用给定的 writer 创建 RunPublisher。
func NewRunPublisherWithWriter(w MessageWriter) *RunPublisher {
	return &RunPublisher{writer: w}
}

// PublishRun 将 AgentRunRecord 序列化为 JSON 并发送到 Kafka，以阶段名作为消息键。
func (p *RunPublisher) PublishRun(ctx context.Context, record models.AgentRunRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(record.Agent), Value: data}); err != nil {
		return fmt.Errorf("failed to write run record to kafka: %w", err)
	}
	return nil
}

// Close 关闭底层的 writer 连接。
func (p *RunPublisher) Close() error {
	return p.writer.Close()
}
