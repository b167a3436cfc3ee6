package redis

import (
	"DayPilot/backend/go/internal/config"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckWritable_WritesPrefixedHeartbeat(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	require.NoError(t, checkWritable(context.Background(), rdb, "daypilot"))
	assert.True(t, mr.Exists("daypilot:health:heartbeat"))
	assert.Equal(t, heartbeatTTL, mr.TTL("daypilot:health:heartbeat"))

	require.NoError(t, checkWritable(context.Background(), rdb, ""))
	assert.True(t, mr.Exists("health:heartbeat"))
}

func TestCheckWritable_ReportsServerErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mr.SetError("READONLY You can't write against a read only replica.")
	err := checkWritable(context.Background(), rdb, "daypilot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READONLY")
}

func TestGetClientAndHealthCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := GetClient(ctx, &config.RedisConfig{Address: mr.Addr(), KeyPrefix: "daypilot"})
	require.NoError(t, err)
	require.NotNil(t, c)
	t.Cleanup(func() { _ = Close() })

	require.NoError(t, HealthCheck(ctx))
	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("daypilot:health:heartbeat"), "heartbeat expires")

	require.NoError(t, HealthCheck(ctx))
	assert.True(t, mr.Exists("daypilot:health:heartbeat"))
}
