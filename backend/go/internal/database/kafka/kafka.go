package kafka

import (
	"DayPilot/backend/go/internal/config"
	"DayPilot/backend/go/pkg/logger"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaClient 持有 Kafka 的管理连接和配置。各发布者按主题创建自己的 writer。
type KafkaClient struct {
	Conn   *kafka.Conn // 用于管理的连接
	Config *config.KafkaConfig
}

var (
	client  *KafkaClient
	once    sync.Once
	initErr error
)

// GetClient 使用单例模式初始化并返回一个 KafkaClient 实例。
// 首次调用时，它会连接到 Kafka 并自动创建配置中缺失的主题。
func GetClient(cfg *config.KafkaConfig) (*KafkaClient, error) {
	once.Do(func() {
		if len(cfg.Brokers) == 0 {
			initErr = fmt.Errorf("未配置 Kafka brokers")
			return
		}
		topics := cfg.Topics()
		if len(topics) == 0 {
			initErr = fmt.Errorf("未配置 Kafka topics")
			return
		}

		conn, err := kafka.Dial("tcp", cfg.Brokers[0])
		if err != nil {
			initErr = fmt.Errorf("kafka 初始化连接失败: %w", err)
			return
		}
		if err := ensureTopics(conn, topics); err != nil {
			conn.Close()
			initErr = err
			return
		}

		logger.New("kafka", "").WithPayload(map[string]interface{}{"topics": topics}).Info("成功初始化 Kafka 客户端")
		client = &KafkaClient{Conn: conn, Config: cfg}
	})

	return client, initErr
}

// ensureTopics 创建不存在的主题。
func ensureTopics(conn *kafka.Conn, topics []string) error {
	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("无法读取 Kafka 分区信息: %w", err)
	}
	existing := make(map[string]struct{})
	for _, p := range partitions {
		existing[p.Topic] = struct{}{}
	}

	var toCreate []kafka.TopicConfig
	for _, name := range topics {
		if _, ok := existing[name]; !ok {
			toCreate = append(toCreate, kafka.TopicConfig{
				Topic:             name,
				NumPartitions:     1,
				ReplicationFactor: 1,
			})
		}
	}
	if len(toCreate) == 0 {
		return nil
	}
	if err := conn.CreateTopics(toCreate...); err != nil {
		return fmt.Errorf("自动创建 Kafka 主题失败: %w", err)
	}
	return nil
}

// MessageWriter 是 kafka.Writer 中发布者用到的部分，测试中可以替换。
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewTopicWriter 创建写入指定主题的 writer。
func (c *KafkaClient) NewTopicWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(c.Config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
}

// Close 安全地关闭单例的 Kafka 管理连接。
func (c *KafkaClient) Close() error {
	if c == nil || c.Conn == nil {
		return nil
	}
	if err := c.Conn.Close(); err != nil {
		return fmt.Errorf("关闭 Kafka 管理连接失败: %w", err)
	}
	return nil
}

// HealthCheck 检查 Kafka 连接的健康状况。
func (c *KafkaClient) HealthCheck(ctx context.Context) error {
	if c == nil || c.Conn == nil {
		return fmt.Errorf("kafka 客户端未初始化，无法进行健康检查")
	}
	_, err := c.Conn.Controller()
	return err
}
