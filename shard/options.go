package shard

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ceyewan/dbroute/clog"
	"github.com/ceyewan/dbroute/metrics"
)

// Option 配置 Build 和 Router 的选项，Build 只使用时区和 UDF 注册表
type Option func(*options)

type options struct {
	logger   clog.Logger
	meter    metrics.Meter
	tracer   trace.Tracer
	rand     Rand
	clock    func() time.Time
	location *time.Location
	udfs     *UDFRegistry
	dialer   StoreDialer
}

// WithLogger 设置日志记录器
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("shard")
		}
	}
}

// WithMeter 设置指标收集器
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithTracer 设置 TracerProvider，每次 Resolve 产生一个 span
func WithTracer(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithRand 替换加权选择和分表编号使用的随机源
//
// r 不要求并发安全，Router 内部会加锁。
func WithRand(r Rand) Option {
	return func(o *options) {
		if r != nil {
			o.rand = &lockedRand{src: r}
		}
	}
}

// WithClock 替换 "N ago" 与历史截止日期使用的当前时间
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLocation 设置解析日期配置和日期分片键时使用的时区，默认 time.Local
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithUDFRegistry 设置 udf 策略查找函数的注册表
func WithUDFRegistry(r *UDFRegistry) Option {
	return func(o *options) {
		o.udfs = r
	}
}

// WithStoreDialer 设置 map 策略的外部存储拨号器
func WithStoreDialer(d StoreDialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

const tracerName = "github.com/ceyewan/dbroute/shard"

func applyOptions(opts []Option) *options {
	o := &options{
		logger:   clog.Discard(),
		meter:    metrics.Discard(),
		tracer:   noop.NewTracerProvider().Tracer(tracerName),
		rand:     globalRand{},
		clock:    time.Now,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) now() time.Time {
	return o.clock().In(o.location)
}
