package mapstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/dbroute/clog"
	"github.com/ceyewan/dbroute/metrics"
	"github.com/ceyewan/dbroute/shard"
)

// BreakerConfig 端点熔断配置
type BreakerConfig struct {
	// MaxRequests 半开状态下允许通过的最大请求数（默认：1）
	MaxRequests uint32 `mapstructure:"max_requests" json:"max_requests" yaml:"max_requests"`

	// Interval 闭合状态下的统计周期（默认：0，不清空统计）
	Interval time.Duration `mapstructure:"interval" json:"interval" yaml:"interval"`

	// Timeout 打开状态持续时间（默认：30s）
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`

	// FailureRatio 失败率阈值（默认：0.6）
	FailureRatio float64 `mapstructure:"failure_ratio" json:"failure_ratio" yaml:"failure_ratio"`

	// MinimumRequests 触发熔断的最小请求数（默认：10）
	MinimumRequests uint32 `mapstructure:"minimum_requests" json:"minimum_requests" yaml:"minimum_requests"`
}

func (c *BreakerConfig) setDefaults() {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = 0.6
	}
	if c.MinimumRequests == 0 {
		c.MinimumRequests = 10
	}
}

// Factory 为端点创建存储，用于替换内置的 redis/etcd 后端
type Factory func(ctx context.Context, ep shard.Endpoint) (shard.AssignmentStore, error)

type options struct {
	logger   clog.Logger
	meter    metrics.Meter
	tracer   trace.TracerProvider
	breaker  BreakerConfig
	factory  Factory
	prefix   string
	username string
	password string

	cacheSize int
	cacheTTL  time.Duration

	rateLimit float64
	rateBurst int
}

// Option 配置 Dialer
type Option func(*options)

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("mapstore")
		}
	}
}

// WithMeter 设置指标收集器，同时传给内部创建的连接器
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithTracer 设置 TracerProvider，Redis 命令会产生 span
func WithTracer(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracer = tp
	}
}

// WithBreaker 设置端点熔断参数
func WithBreaker(cfg BreakerConfig) Option {
	return func(o *options) {
		o.breaker = cfg
	}
}

// WithCache 开启本地缓存，记住已读到或已写入的分配
//
// 分配写入后不再变化，缓存只影响外部存储被人工修改时的可见延迟。
// size <= 0 关闭缓存。
func WithCache(size int, ttl time.Duration) Option {
	return func(o *options) {
		o.cacheSize = size
		o.cacheTTL = ttl
	}
}

// WithRateLimit 限制每个端点每秒访问存储的次数，缓存命中不计入
//
// 超出时等待令牌，等待会超过 ctx 截止时间时直接返回 ErrStoreUnavailable。
// rps <= 0 关闭限流，burst 缺省为 1。
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		o.rateLimit = rps
		o.rateBurst = burst
	}
}

// WithKeyPrefix 设置存储键前缀，redis 默认无前缀，etcd 默认 DefaultEtcdPrefix
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithCredentials 设置连接外部存储使用的认证信息
func WithCredentials(username, password string) Option {
	return func(o *options) {
		o.username = username
		o.password = password
	}
}

// WithFactory 替换内置后端
func WithFactory(f Factory) Option {
	return func(o *options) {
		o.factory = f
	}
}

func applyOptions(opts []Option) *options {
	o := &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.breaker.setDefaults()
	if o.cacheSize > 0 && o.cacheTTL <= 0 {
		o.cacheTTL = 10 * time.Minute
	}
	if o.rateLimit > 0 && o.rateBurst <= 0 {
		o.rateBurst = 1
	}
	return o
}
