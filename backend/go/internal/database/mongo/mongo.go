package mongo

import (
	"DayPilot/backend/go/internal/config"
	"DayPilot/backend/go/pkg/logger"
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	client  *mongo.Client
	once    sync.Once
	initErr error
)

// GetClient 使用单例模式初始化并返回一个 MongoDB 客户端实例。
// 它确保到 MongoDB 的连接在整个应用生命周期中只被建立一次。
func GetClient(cfg *config.MongoConfig) (*mongo.Client, error) {
	once.Do(func() {
		clientOptions := options.Client().ApplyURI(cfg.Address)
		// 如果配置了用户名和密码，则设置认证信息。
		if cfg.Username != "" && cfg.Password != "" {
			clientOptions.SetAuth(options.Credential{
				Username: cfg.Username,
				Password: cfg.Password,
			})
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		c, err := mongo.Connect(ctx, clientOptions)
		if err != nil {
			initErr = fmt.Errorf("无法连接到 MongoDB: %w", err)
			return
		}
		if err = c.Ping(ctx, nil); err != nil {
			_ = c.Disconnect(ctx)
			initErr = fmt.Errorf("无法 Ping MongoDB: %w", err)
			return
		}

		logger.New("mongodb", "").WithPayload(map[string]interface{}{"database": cfg.Database}).Info("成功连接到 MongoDB")
		client = c
	})

	return client, initErr
}

// EnsureIndexes 为日志集合建立按时间倒序的索引，便于查询最近的记录。
func EnsureIndexes(ctx context.Context, db *mongo.Database, collections ...string) error {
	for _, name := range collections {
		_, err := db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "timestamp", Value: -1}},
		})
		if err != nil {
			return fmt.Errorf("为集合 '%s' 创建索引失败: %w", name, err)
		}
	}
	return nil
}

// Close 安全地断开单例的 MongoDB 客户端连接。
func Close(ctx context.Context) error {
	if client != nil {
		return client.Disconnect(ctx)
	}
	return nil
}

// HealthCheck 检查 MongoDB 连接的健康状况。
func HealthCheck(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("MongoDB 客户端未初始化")
	}
	return client.Ping(ctx, nil)
}
