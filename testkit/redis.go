package testkit

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/ceyewan/dbroute/shard"
)

// NewRedisEndpoint 使用 testcontainers 启动 Redis，返回 map 策略可用的端点
// 使用 DB 1 避免与默认的 DB 0 冲突
func NewRedisEndpoint(t *testing.T) shard.Endpoint {
	ctx := context.Background()

	container, err := redis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	port, err := strconv.Atoi(mapped.Port())
	require.NoError(t, err)

	return shard.Endpoint{Scheme: shard.SchemeRedis, Host: host, Port: port, DB: 1}
}
