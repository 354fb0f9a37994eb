package clog

import (
	"fmt"
	"log/slog"
	"time"
)

// Field 即 slog.Attr，避免额外分配
type Field = slog.Attr

func String(k, v string) Field { return slog.String(k, v) }
func Int(k string, v int) Field { return slog.Int(k, v) }
func Int64(k string, v int64) Field { return slog.Int64(k, v) }
func Float64(k string, v float64) Field { return slog.Float64(k, v) }
func Bool(k string, v bool) Field { return slog.Bool(k, v) }
func Time(k string, v time.Time) Field { return slog.Time(k, v) }
func Any(k string, v any) Field { return slog.Any(k, v) }

func Duration(k string, v time.Duration) Field {
	return slog.Duration(k, v)
}

// Error 只输出错误消息，err 为 nil 时返回空字段（slog 会忽略）
//
//	logger.Warn("store get failed", clog.Error(err)) // err_msg="connection refused"
func Error(err error) Field {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("err_msg", err.Error())
}

// ErrorType 同时输出错误消息和具体类型，用于排查 errors.Is 匹配失败的情况
func ErrorType(err error) Field {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Group("error",
		slog.String("msg", err.Error()),
		slog.String("type", fmt.Sprintf("%T", err)),
	)
}

// 路由相关的常用字段，保证各组件日志的键名一致

// Table 逻辑表或物理表名
func Table(name string) Field { return slog.String("table", name) }

// Node 节点名
func Node(name string) Field { return slog.String("node", name) }

// Key 分片键，任意类型统一格式化为字符串
func Key(v any) Field { return slog.String("shard_key", fmt.Sprint(v)) }

// Secret 敏感值只输出是否已设置
func Secret(k, v string) Field {
	if v == "" {
		return slog.String(k, "")
	}
	return slog.String(k, "******")
}
