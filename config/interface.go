// Package config 为 dbroute 提供配置加载与热更新能力，基于 Viper 实现。
//
// 分片拓扑、日志、指标、数据库连接等配置都从同一个 Loader 读取。
// 优先级：环境变量 > .env > 环境特定配置（config.<env>.yaml）> 基础配置。
//
// 基本使用：
//
//	loader, err := config.New(&config.Config{Name: "dbroute", Paths: []string{"./etc"}})
//	if err != nil {
//		return err
//	}
//	if err := loader.Load(ctx); err != nil {
//		return err
//	}
//
//	var settings shard.Settings
//	_ = loader.UnmarshalKey("shard", &settings)
//
//	// 配置文件变化时收到事件
//	ch, _ := loader.Watch(ctx, "shard")
package config

import (
	"context"
	"time"
)

// Loader 定义配置加载器的核心行为
type Loader interface {
	// Load 加载配置并启动文件监听
	Load(ctx context.Context) error

	// Get 获取原始配置值
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体
	Unmarshal(v any) error

	// UnmarshalKey 将指定 Key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Watch 监听指定 Key 的变化，ctx 取消后通道关闭
	Watch(ctx context.Context, key string) (<-chan Event, error)

	// Validate 验证当前配置的有效性
	Validate() error
}

// Event 配置变更事件
type Event struct {
	Key       string // 配置 key
	Value     any    // 新值
	OldValue  any    // 旧值
	Source    string // "file"
	Timestamp time.Time
}
