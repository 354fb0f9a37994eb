package connector

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/dbroute/clog"
	"github.com/ceyewan/dbroute/metrics"
)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	tracer trace.TracerProvider
}

// Option 配置连接器的选项
type Option func(*options)

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("connector")
		}
	}
}

// WithMeter 设置指标收集器
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithTracer 设置 TracerProvider，Redis 命令和 GORM 语句会产生 span
func WithTracer(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracer = tp
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
	return o
}

// connMetrics 记录连接尝试次数，所有连接器共用同一组指标
type connMetrics struct {
	attempts metrics.Counter
	labels   []metrics.Label
}

func newConnMetrics(meter metrics.Meter, kind, name string) *connMetrics {
	counter, err := meter.Counter("dbroute_connector_connect_total", "Number of connector connect attempts")
	if err != nil {
		counter, _ = metrics.Discard().Counter("", "")
	}
	return &connMetrics{
		attempts: counter,
		labels:   []metrics.Label{metrics.L("connector", kind), metrics.L("name", name)},
	}
}

func (m *connMetrics) observe(ctx context.Context, err error) {
	result := metrics.OutcomeSuccess
	if err != nil {
		result = metrics.OutcomeError
	}
	m.attempts.Inc(ctx, append(m.labels, metrics.L(metrics.LabelResult, result))...)
}
