package metrics

import (
	"github.com/ceyewan/dbroute/clog"
	"github.com/prometheus/client_golang/prometheus"
)

// Option 配置 Meter 实例的选项函数类型
type Option func(*options)

type options struct {
	logger   clog.Logger
	registry *prometheus.Registry
}

// WithLogger 注入日志记录器，组件会自动添加 "metrics" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("metrics")
		}
	}
}

// WithRegistry 使用独立的 Prometheus Registry，而不是全局默认 Registry
//
// 测试或同一进程内运行多个路由器时使用。
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}
