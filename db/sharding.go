package db

import (
	"context"
	"slices"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/sharding"

	"github.com/ceyewan/dbroute/shard"
	"github.com/ceyewan/dbroute/xerrors"
)

// maxLocalShards 雪花主键生成器最多支持 1024 个分表
const maxLocalShards = 1024

// checkLocalSharding 检查本地分表的表是否为同一配置的拆表 mod 表
func checkLocalSharding(topo *shard.Topology, rule ShardingRule) error {
	if !rule.Enabled() {
		return nil
	}

	var first *shard.ModRule
	for _, table := range rule.Tables {
		desc, ok := topo.Descriptor(table)
		if !ok {
			return xerrors.Wrapf(ErrInvalidConfig, "local sharding table %s is not routed", table)
		}
		mod, ok := desc.Rule.(shard.ModRule)
		if !ok || !desc.SplitTable {
			return xerrors.Wrapf(ErrInvalidConfig, "local sharding table %s must be a split mod table", table)
		}
		if mod.Modulus > maxLocalShards {
			return xerrors.Wrapf(ErrInvalidConfig, "local sharding table %s has %d partitions, at most %d supported",
				table, mod.Modulus, maxLocalShards)
		}
		if first == nil {
			first = &mod
			continue
		}
		if mod.Modulus != first.Modulus || !slices.Equal(mod.Partitions, first.Partitions) {
			return xerrors.Wrapf(ErrInvalidConfig, "local sharding table %s is partitioned differently from %s",
				table, rule.Tables[0])
		}
	}
	return nil
}

// localSuffixes 返回节点上持有的分表后缀
func localSuffixes(mod shard.ModRule, node string) []string {
	var out []string
	for r, owner := range mod.Partitions {
		if owner == node {
			out = append(out, "_"+strconv.Itoa(r))
		}
	}
	return out
}

// registerSharding 在节点连接上注册分表中间件
func (d *database) registerSharding(gdb *gorm.DB, node string) error {
	rule := d.cfg.LocalSharding
	if !rule.Enabled() {
		return nil
	}

	lead := rule.Tables[0]
	desc, ok := d.resolver.Topology().Descriptor(lead)
	if !ok {
		return xerrors.Wrapf(ErrInvalidConfig, "local sharding table %s is not routed", lead)
	}
	mod, ok := desc.Rule.(shard.ModRule)
	if !ok {
		return xerrors.Wrapf(ErrInvalidConfig, "local sharding table %s must be a split mod table", lead)
	}
	suffixes := localSuffixes(mod, node)
	if len(suffixes) == 0 {
		return nil
	}

	tables := make([]any, len(rule.Tables))
	for i, v := range rule.Tables {
		tables[i] = v
	}
	middleware := sharding.Register(sharding.Config{
		ShardingKey:         rule.ShardingKey,
		NumberOfShards:      uint(mod.Modulus),
		ShardingAlgorithm:   d.shardingAlgorithm(lead, node),
		ShardingSuffixs:     func() []string { return suffixes },
		PrimaryKeyGenerator: sharding.PKSnowflake,
	}, tables...)

	if err := gdb.Use(middleware); err != nil {
		return xerrors.Wrapf(err, "failed to register sharding middleware for tables %v", rule.Tables)
	}
	return nil
}

// shardingAlgorithm 由路由器计算后缀，分片键落在其他节点时返回错误
func (d *database) shardingAlgorithm(table, node string) func(value any) (string, error) {
	return func(value any) (string, error) {
		target, err := d.resolver.Resolve(context.Background(), table, value, shard.Primary)
		if err != nil {
			return "", err
		}
		if target.NodeName != node {
			return "", xerrors.Wrapf(ErrShardMismatch, "key %v of %s routes to %s, connection is %s",
				value, table, target.NodeName, node)
		}
		return target.Suffix, nil
	}
}
