package clog

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level 日志级别，数值与 slog 对齐，Fatal 高于 Error
type Level int

const (
	DebugLevel Level = iota - 4
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelNames = map[Level]string{
	DebugLevel: "debug",
	InfoLevel:  "info",
	WarnLevel:  "warn",
	ErrorLevel: "error",
	FatalLevel: "fatal",
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel 解析级别名（不区分大小写），失败时返回 InfoLevel
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for l, n := range levelNames {
		if n == name {
			return l, nil
		}
	}
	if name == "warning" {
		return WarnLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level: %s", s)
}

// slogLevel 相邻级别在 slog 中相差 4，Fatal 即 Error+4
func (l Level) slogLevel() slog.Level {
	if _, ok := levelNames[l]; !ok {
		return slog.LevelInfo
	}
	return slog.Level((l - InfoLevel) * 4)
}
