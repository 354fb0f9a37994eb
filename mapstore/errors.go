package mapstore

import (
	"github.com/ceyewan/dbroute/shard"
	"github.com/ceyewan/dbroute/xerrors"
)

var (
	// ErrClosed Dialer 已关闭
	ErrClosed = xerrors.Wrap(shard.ErrStoreUnavailable, "mapstore: dialer closed")

	// ErrOpenState 端点熔断器处于打开状态，请求被快速拒绝
	ErrOpenState = xerrors.Wrap(shard.ErrStoreUnavailable, "mapstore: circuit breaker open")

	// ErrCorruptRecord 存储返回了无法识别的记录
	ErrCorruptRecord = xerrors.Wrap(xerrors.ErrInternal, "mapstore: corrupt record")
)
