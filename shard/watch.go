package shard

import (
	"context"

	"github.com/ceyewan/dbroute/clog"
	"github.com/ceyewan/dbroute/config"
)

// WatchLoader 监听 loader 中 key 的变化并自动 Reload
//
// 新配置无效时记录错误并保留当前拓扑。ctx 取消后停止监听。
func (r *Router) WatchLoader(ctx context.Context, loader config.Loader, key string) error {
	events, err := loader.Watch(ctx, key)
	if err != nil {
		return err
	}

	go func() {
		for ev := range events {
			settings, err := LoadSettings(loader, key)
			if err == nil {
				err = r.Reload(settings)
			}
			if err != nil {
				r.logger.Error("reload on config change failed",
					clog.String("key", ev.Key),
					clog.String("source", ev.Source),
					clog.Error(err),
				)
			}
		}
		r.logger.Debug("config watch stopped", clog.String("key", key))
	}()
	return nil
}
