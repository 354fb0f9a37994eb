// Package mapstore 提供 map 分片策略使用的分配存储实现。
//
// 分配记录以 bucket/field 两级组织，一旦写入不再修改，先写者胜出：
//
//   - Redis: 每个 bucket 是一个 hash，写入使用 HSETNX
//   - Etcd:  每条记录是一个 key，写入使用 CreateRevision == 0 的事务
//   - Memory: 进程内实现，用于测试和单机场景
//
// Dialer 实现 shard.StoreDialer，按端点懒加载连接，每个端点外包一层熔断器，
// 并可选地用本地缓存记住已命中的分配。
//
// 基本使用：
//
//	dialer := mapstore.NewDialer(
//		mapstore.WithLogger(logger),
//		mapstore.WithCache(100_000, 10*time.Minute),
//	)
//	defer dialer.Close()
//
//	router, err := shard.NewRouter(settings, shard.WithStoreDialer(dialer))
package mapstore
