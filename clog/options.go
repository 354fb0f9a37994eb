package clog

import "bytes"

// ContextField 从 Context 中按 Key 取值，以 FieldName 输出
type ContextField struct {
	Key       any
	FieldName string
}

// Option 配置 Logger
type Option func(*options)

type options struct {
	namespaceParts []string
	contextFields  []ContextField
	traceContext   bool
	buffer         *bytes.Buffer
}

// WithNamespace 追加命名空间，多级之间以 "." 连接，如 "dbroute.shard"
func WithNamespace(parts ...string) Option {
	return func(o *options) {
		o.namespaceParts = append(o.namespaceParts, parts...)
	}
}

// WithContextField 从 ctx.Value(key) 取值作为日志字段
func WithContextField(key any, fieldName string) Option {
	return func(o *options) {
		o.contextFields = append(o.contextFields, ContextField{Key: key, FieldName: fieldName})
	}
}

// WithTraceContext 从 ctx 中的 OpenTelemetry span 提取 trace_id 和 span_id
//
// 路由解析和存储访问都会创建 span，开启后日志可以和链路对应起来。
func WithTraceContext() Option {
	return func(o *options) {
		o.traceContext = true
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
