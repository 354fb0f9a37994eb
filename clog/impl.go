package clog

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// NamespaceKey 日志中命名空间的字段名
const NamespaceKey = "namespace"

type logger struct {
	handler   slog.Handler
	opts      *options
	namespace string
	attrs     []slog.Attr
}

func newLogger(config *Config, opts *options) (Logger, error) {
	handler, err := newHandler(config, opts)
	if err != nil {
		return nil, err
	}
	return &logger{
		handler:   handler,
		opts:      opts,
		namespace: strings.Join(opts.namespaceParts, "."),
	}, nil
}

func (l *logger) Debug(msg string, fields ...Field) { l.log(context.Background(), DebugLevel, msg, fields) }
func (l *logger) Info(msg string, fields ...Field) { l.log(context.Background(), InfoLevel, msg, fields) }
func (l *logger) Warn(msg string, fields ...Field) { l.log(context.Background(), WarnLevel, msg, fields) }
func (l *logger) Error(msg string, fields ...Field) { l.log(context.Background(), ErrorLevel, msg, fields) }
func (l *logger) Fatal(msg string, fields ...Field) { l.log(context.Background(), FatalLevel, msg, fields) }

func (l *logger) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, DebugLevel, msg, fields)
}

func (l *logger) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, InfoLevel, msg, fields)
}

func (l *logger) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, WarnLevel, msg, fields)
}

func (l *logger) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, ErrorLevel, msg, fields)
}

func (l *logger) FatalContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, FatalLevel, msg, fields)
}

// WithNamespace 子 Logger 共享 handler，命名空间在创建时拼好
func (l *logger) WithNamespace(parts ...string) Logger {
	if len(parts) == 0 {
		return l
	}
	ns := strings.Join(parts, ".")
	if l.namespace != "" {
		ns = l.namespace + "." + ns
	}
	return &logger{handler: l.handler, opts: l.opts, namespace: ns, attrs: l.attrs}
}

func (l *logger) With(fields ...Field) Logger {
	attrs := make([]slog.Attr, 0, len(l.attrs)+len(fields))
	attrs = append(append(attrs, l.attrs...), fields...)
	return &logger{handler: l.handler, opts: l.opts, namespace: l.namespace, attrs: attrs}
}

func (l *logger) log(ctx context.Context, level Level, msg string, fields []Field) {
	sl := level.slogLevel()
	if !l.handler.Enabled(ctx, sl) {
		return
	}

	attrs := make([]slog.Attr, 0, len(l.attrs)+len(fields)+3)
	attrs = append(attrs, l.attrs...)
	attrs = append(attrs, fields...)
	attrs = contextAttrs(ctx, l.opts, attrs)
	if l.namespace != "" {
		attrs = append(attrs, slog.String(NamespaceKey, l.namespace))
	}

	// 跳过 runtime.Callers、log 和 Info 等包装方法
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), sl, msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = l.handler.Handle(ctx, r)

	if level == FatalLevel {
		os.Exit(1)
	}
}

func (l *logger) SetLevel(level Level) error {
	if h, ok := l.handler.(*clogHandler); ok {
		h.levelVar.Set(level.slogLevel())
	}
	return nil
}

// Flush slog 同步写出，文件输出时同步到磁盘
func (l *logger) Flush() {
	if h, ok := l.handler.(*clogHandler); ok && h.file != nil {
		_ = h.file.Sync()
	}
}
