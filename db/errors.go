package db

import "github.com/ceyewan/dbroute/xerrors"

var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = xerrors.Wrap(xerrors.ErrInvalidInput, "db: invalid config")

	// ErrRouterRequired 未提供路由器
	ErrRouterRequired = xerrors.Wrap(xerrors.ErrInvalidInput, "db: router is required")

	// ErrNodeUnavailable 节点连接建立失败
	ErrNodeUnavailable = xerrors.Wrap(xerrors.ErrUnavailable, "db: node unavailable")

	// ErrShardMismatch 分片键落在其他节点上
	ErrShardMismatch = xerrors.Wrap(xerrors.ErrConflict, "db: sharding key belongs to another node")

	// ErrClosed 组件已关闭
	ErrClosed = xerrors.Wrap(xerrors.ErrUnavailable, "db: closed")
)
