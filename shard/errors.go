package shard

import "github.com/ceyewan/dbroute/xerrors"

// 配置错误：Build/Reload 阶段发现，整个拓扑构建失败，已生效的拓扑保持不变
var (
	// ErrInvalidConfig 分片配置无效
	ErrInvalidConfig = xerrors.Wrap(xerrors.ErrInvalidInput, "shard: invalid config")
)

// 解析错误：每次 Resolve 最多返回一个，解析器自身不做重试
var (
	// ErrUnknownTable 表没有分片描述
	ErrUnknownTable = xerrors.Wrap(xerrors.ErrNotFound, "shard: unknown table")

	// ErrUnknownNode 节点名不存在
	ErrUnknownNode = xerrors.Wrap(xerrors.ErrNotFound, "shard: unknown node")

	// ErrInvalidKey 分片键无法按策略解析（日期、数值等）
	ErrInvalidKey = xerrors.Wrap(xerrors.ErrInvalidInput, "shard: invalid key")

	// ErrKeyOutOfRange 分片键没有落在任何已配置的日期或数值区间内
	ErrKeyOutOfRange = xerrors.Wrap(xerrors.ErrNotFound, "shard: key out of range")

	// ErrNoReplicaConfigured 请求从库但该主库没有配置从库
	ErrNoReplicaConfigured = xerrors.Wrap(xerrors.ErrNotFound, "shard: no replica configured")

	// ErrStoreUnavailable map 策略的外部存储不可用
	ErrStoreUnavailable = xerrors.Wrap(xerrors.ErrUnavailable, "shard: assignment store unavailable")

	// ErrInvalidAssignment 外部存储中的分配记录无法使用
	ErrInvalidAssignment = xerrors.Wrap(xerrors.ErrConflict, "shard: invalid assignment")

	// ErrUDFFailure 自定义路由函数返回失败
	ErrUDFFailure = xerrors.Wrap(xerrors.ErrInternal, "shard: udf failure")
)

func configError(table, format string, args ...any) error {
	if table == "" {
		return xerrors.Wrapf(ErrInvalidConfig, format, args...)
	}
	return xerrors.Wrapf(ErrInvalidConfig, "table %s: "+format, append([]any{table}, args...)...)
}
