package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dbroute/mapstore"
	"github.com/ceyewan/dbroute/shard"
)

// NewRouter 构建路由器，使用测试 logger 和进程内分配存储
func NewRouter(t *testing.T, settings *shard.Settings, opts ...shard.Option) *shard.Router {
	dialer := NewMemoryDialer(t)
	base := []shard.Option{shard.WithLogger(NewLogger()), shard.WithStoreDialer(dialer)}

	router, err := shard.NewRouter(settings, append(base, opts...)...)
	require.NoError(t, err, "failed to build router")
	return router
}

// NewMemoryDialer 返回所有端点共用同一个内存存储的 Dialer
// 生命周期由 t.Cleanup 管理
func NewMemoryDialer(t *testing.T) *mapstore.Dialer {
	mem := mapstore.NewMemory()
	dialer, err := mapstore.NewDialer(
		mapstore.WithLogger(NewLogger()),
		mapstore.WithFactory(func(ctx context.Context, ep shard.Endpoint) (shard.AssignmentStore, error) {
			return mem, nil
		}),
	)
	require.NoError(t, err, "failed to create memory dialer")

	t.Cleanup(func() {
		_ = dialer.Close()
	})
	return dialer
}
