// Package shard 是 dbroute 的分片路由核心。
//
// 对一次逻辑访问 (table, key, class)，Router 计算出数据所在的物理节点，
// 以及拆表时的物理表名。支持的策略：
//
//	none     不分片，使用第一个主库
//	mod      key mod M 选择节点，拆表后缀 _r
//	date     按日期区间选择节点，拆表后缀 _2024 / _2024A / _2024S1 / _202401
//	history  按截止日期和状态分为当前库与历史库，历史表后缀 _h
//	range    按数值区间选择节点，拆表后缀 _label
//	map      分配记录保存在外部存储（Redis/Etcd），首次访问时按权重分配
//	udf      委托给注册的自定义函数
//
// 读请求（Replica）在主库对应的从库中按权重随机选择。
//
// 配置由 Build 一次性校验为只读的 Topology；Router.Reload 原子替换快照，
// 新配置无效时保留旧快照。
//
// 基本使用：
//
//	settings, err := shard.LoadSettings(loader, "shard")
//	if err != nil {
//		return err
//	}
//	router, err := shard.NewRouter(settings, shard.WithLogger(logger), shard.WithMeter(meter))
//	if err != nil {
//		return err
//	}
//	_ = router.WatchLoader(ctx, loader, "shard")
//
//	target, err := router.Resolve(ctx, "orders", 10086, shard.Primary)
//	if errors.Is(err, shard.ErrKeyOutOfRange) {
//		...
//	}
//	fmt.Println(target.NodeName, target.Table)
package shard
