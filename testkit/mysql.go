package testkit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/ceyewan/dbroute/connector"
)

const mysqlCredential = "dbroute"

// MySQLNode 启动 MySQL 容器，等待可连接后返回分片节点定义
//
// 返回值可直接放入 shard.Settings.Nodes，多个逻辑节点可以共用同一个实例。
func MySQLNode(t *testing.T) map[string]any {
	ctx := context.Background()

	container, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase(mysqlCredential),
		mysql.WithUsername(mysqlCredential),
		mysql.WithPassword(mysqlCredential),
	)
	require.NoError(t, err, "failed to start MySQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)
	port, err := strconv.Atoi(mapped.Port())
	require.NoError(t, err)

	waitMySQL(t, &connector.MySQLConfig{
		Name:     "testkit-probe",
		Host:     host,
		Port:     port,
		Username: mysqlCredential,
		Password: mysqlCredential,
		Database: mysqlCredential,
	})

	return map[string]any{
		"host":     host,
		"port":     port,
		"user":     mysqlCredential,
		"password": mysqlCredential,
		"database": mysqlCredential,
	}
}

// waitMySQL 容器日志就绪后 MySQL 仍可能拒绝连接，探测直到成功
func waitMySQL(t *testing.T, cfg *connector.MySQLConfig) {
	conn, err := connector.NewMySQL(cfg, connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create mysql connector")
	defer conn.Close()

	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return conn.Connect(ctx) == nil
	}, time.Minute, 2*time.Second, "mysql not ready")
}
