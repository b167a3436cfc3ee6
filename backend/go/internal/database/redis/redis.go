package redis

import (
	"DayPilot/backend/go/internal/config"
	"DayPilot/backend/go/pkg/logger"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// heartbeatTTL 是健康检查写入的心跳键的存活时间。
const heartbeatTTL = time.Minute

var (
	client  *redis.Client
	prefix  string
	once    sync.Once
	initErr error
)

// GetClient 以单例方式连接 Redis，并确认状态键所在的库可写。
func GetClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	once.Do(func() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err := checkWritable(ctx, rdb, cfg.KeyPrefix); err != nil {
			_ = rdb.Close()
			initErr = fmt.Errorf("无法连接到 Redis: %w", err)
			return
		}

		logger.New("redis", "").WithPayload(map[string]interface{}{
			"address": cfg.Address,
			"db":      cfg.DB,
			"prefix":  cfg.KeyPrefix,
		}).Info("成功连接到 Redis")
		client = rdb
		prefix = cfg.KeyPrefix
	})

	return client, initErr
}

// Close 关闭单例连接。
func Close() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// HealthCheck 除 Ping 外还会写入并读回心跳键，只读副本或满内存的实例会被判为不健康。
func HealthCheck(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("Redis 客户端未初始化")
	}
	return checkWritable(ctx, client, prefix)
}

func heartbeatKey(keyPrefix string) string {
	if keyPrefix == "" {
		return "health:heartbeat"
	}
	return keyPrefix + ":health:heartbeat"
}

func checkWritable(ctx context.Context, rdb *redis.Client, keyPrefix string) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	key := heartbeatKey(keyPrefix)
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	if err := rdb.Set(ctx, key, stamp, heartbeatTTL).Err(); err != nil {
		return fmt.Errorf("写入心跳键 %s 失败: %w", key, err)
	}
	got, err := rdb.Get(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("读取心跳键 %s 失败: %w", key, err)
	}
	if got != stamp {
		return fmt.Errorf("心跳键 %s 的值不一致", key)
	}
	return nil
}
