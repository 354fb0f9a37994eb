// Package testkit 为各组件测试提供共用的依赖和容器化后端
package testkit

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ceyewan/dbroute/clog"
	"github.com/ceyewan/dbroute/metrics"
)

// Kit 一个测试用例的公共依赖
type Kit struct {
	Ctx    context.Context
	Logger clog.Logger
	Meter  metrics.Meter
	Tracer *sdktrace.TracerProvider
	Spans  *tracetest.SpanRecorder
}

// NewKit 创建 Kit，Tracer 同步记录所有 span 供断言
func NewKit(t *testing.T) *Kit {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	return &Kit{
		Ctx:    context.Background(),
		Logger: NewLogger(),
		Meter:  NewMeter(),
		Tracer: tp,
		Spans:  spans,
	}
}

// SpanNames 返回已结束 span 的名称
func (k *Kit) SpanNames() []string {
	ended := k.Spans.Ended()
	names := make([]string, 0, len(ended))
	for _, s := range ended {
		names = append(names, s.Name())
	}
	return names
}

// NewLogger 测试日志，级别由 DBROUTE_TEST_LOG 控制，默认 warn
func NewLogger() clog.Logger {
	cfg := clog.NewDevDefaultConfig("dbroute")
	cfg.Level = "warn"
	if lvl := os.Getenv("DBROUTE_TEST_LOG"); lvl != "" {
		cfg.Level = lvl
	}
	logger, err := clog.New(cfg, clog.WithTraceContext())
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewMeter 不暴露 HTTP 端点的测试 meter，每次使用独立的 registry
func NewMeter() metrics.Meter {
	meter, err := metrics.New(metrics.NewDevDefaultConfig("dbroute-test"),
		metrics.WithRegistry(prometheus.NewRegistry()))
	if err != nil {
		return metrics.Discard()
	}
	return meter
}

// NewID 8 位随机串，用作 bucket 或表名后缀避免用例间冲突
func NewID() string {
	return uuid.New().String()[:8]
}
