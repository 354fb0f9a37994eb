package clog

import "context"

type discard struct{}

// Discard 返回丢弃所有输出的 Logger，组件未注入日志时使用
func Discard() Logger { return discard{} }

func (discard) Debug(string, ...Field) {}
func (discard) Info(string, ...Field) {}
func (discard) Warn(string, ...Field) {}
func (discard) Error(string, ...Field) {}
func (discard) Fatal(string, ...Field) {}
func (discard) DebugContext(context.Context, string, ...Field) {}
func (discard) InfoContext(context.Context, string, ...Field) {}
func (discard) WarnContext(context.Context, string, ...Field) {}
func (discard) ErrorContext(context.Context, string, ...Field) {}
func (discard) FatalContext(context.Context, string, ...Field) {}
func (d discard) With(...Field) Logger { return d }
func (d discard) WithNamespace(...string) Logger { return d }
func (discard) SetLevel(Level) error { return nil }
func (discard) Flush() {}
