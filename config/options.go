package config

import "context"

// MustLoad 创建并加载配置，失败时 panic，仅用于进程初始化
func MustLoad(cfg *Config, opts ...Option) Loader {
	loader, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	if err := loader.Load(context.Background()); err != nil {
		panic(err)
	}
	return loader
}
