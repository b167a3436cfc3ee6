package store

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

// RedisKV 把每个键存为一个 Redis 字符串，键名为 "<prefix>:<namespace>:<key>"。
type RedisKV struct {
	client *redis.Client
	prefix string
}

// NewRedisKV 创建一个 RedisKV。
func NewRedisKV(client *redis.Client, prefix string) *RedisKV {
	return &RedisKV{client: client, prefix: prefix}
}

func (r *RedisKV) key(namespace, key string) string {
	if r.prefix == "" {
		return namespace + ":" + key
	}
	return r.prefix + ":" + namespace + ":" + key
}

// Get 读取键值，键不存在时 found 为 false。
func (r *RedisKV) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.key(namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set 写入键值，不设置过期时间。
func (r *RedisKV) Set(ctx context.Context, namespace, key string, value []byte) error {
	return r.client.Set(ctx, r.key(namespace, key), value, 0).Err()
}
