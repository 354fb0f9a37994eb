package connector

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcetcd "github.com/testcontainers/testcontainers-go/modules/etcd"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/ceyewan/dbroute/clog"
)

func getTestLogger() clog.Logger {
	logger, err := clog.New(clog.NewDevDefaultConfig(""))
	if err != nil {
		return clog.Discard()
	}
	return logger
}

func setupRedisContainer(t *testing.T) *RedisConfig {
	ctx := context.Background()

	container, err := redis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return &RedisConfig{Name: "test-redis", Addr: fmt.Sprintf("%s:%s", host, port.Port())}
}

func setupMySQLContainer(t *testing.T) *MySQLConfig {
	ctx := context.Background()

	container, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("dbroute"),
		mysql.WithUsername("dbroute"),
		mysql.WithPassword("dbroute"),
	)
	require.NoError(t, err, "failed to start mysql container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)
	port, err := strconv.Atoi(mappedPort.Port())
	require.NoError(t, err)

	return &MySQLConfig{
		Name:     "test-mysql",
		Host:     host,
		Port:     port,
		Username: "dbroute",
		Password: "dbroute",
		Database: "dbroute",
	}
}

func setupEtcdContainer(t *testing.T) *EtcdConfig {
	ctx := context.Background()

	container, err := tcetcd.Run(ctx, "quay.io/coreos/etcd:v3.5.9")
	require.NoError(t, err, "failed to start etcd container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "2379")
	require.NoError(t, err)

	return &EtcdConfig{
		Name:        "test-etcd",
		Endpoints:   []string{fmt.Sprintf("%s:%s", host, port.Port())},
		DialTimeout: 5 * time.Second,
	}
}

func TestRedisConnectorIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn, err := NewRedis(setupRedisContainer(t), WithLogger(getTestLogger()))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Connect(ctx))
	assert.True(t, conn.IsHealthy())

	client := conn.GetClient()
	ok, err := client.HSetNX(ctx, "orders:12", "345", "db0:1").Result()
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = client.HSetNX(ctx, "orders:12", "345", "db1:2").Result()
	require.NoError(t, err)
	assert.False(t, ok, "HSETNX keeps the first value")

	require.NoError(t, conn.HealthCheck(ctx))
	require.NoError(t, conn.Close())
	assert.False(t, conn.IsHealthy())
}

func TestMySQLConnectorIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn, err := NewMySQL(setupMySQLContainer(t), WithLogger(getTestLogger()))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Connect(ctx))
	assert.True(t, conn.IsHealthy())

	var result string
	require.NoError(t, conn.GetClient().Raw("SELECT 1 AS val").Scan(&result).Error)
	assert.Equal(t, "1", result)

	require.NoError(t, conn.HealthCheck(ctx))
	require.NoError(t, conn.Close())
	assert.False(t, conn.IsHealthy())
}

func TestEtcdConnectorIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn, err := NewEtcd(setupEtcdContainer(t), WithLogger(getTestLogger()))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Connect(ctx))
	assert.True(t, conn.IsHealthy())

	client := conn.GetClient()
	_, err = client.Put(ctx, "/dbroute/test", "value")
	require.NoError(t, err)
	resp, err := client.Get(ctx, "/dbroute/test")
	require.NoError(t, err)
	require.Len(t, resp.Kvs, 1)
	assert.Equal(t, "value", string(resp.Kvs[0].Value))

	require.NoError(t, conn.HealthCheck(ctx))
	require.NoError(t, conn.Close())
	assert.False(t, conn.IsHealthy())
}
