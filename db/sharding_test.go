package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dbroute/shard"
	"github.com/ceyewan/dbroute/testkit"
)

func TestLocalSuffixes(t *testing.T) {
	mod := shard.ModRule{Modulus: 4, Partitions: []string{"db0", "db1", "db0", "db1"}}
	assert.Equal(t, []string{"_0", "_2"}, localSuffixes(mod, "db0"))
	assert.Equal(t, []string{"_1", "_3"}, localSuffixes(mod, "db1"))
	assert.Empty(t, localSuffixes(mod, "db2"))
}

func TestShardingAlgorithmDelegatesToRouter(t *testing.T) {
	f := newSQLiteFixture(t)
	sdb := newSQLiteDB(t, f, &Config{
		LocalSharding: ShardingRule{ShardingKey: "user_id", Tables: []string{"orders", "order_items"}},
	})
	alg := sdb.(*database).shardingAlgorithm("orders", "db0")

	suffix, err := alg(int64(5))
	require.NoError(t, err)
	assert.Equal(t, "_1", suffix)

	suffix, err = alg("4")
	require.NoError(t, err)
	assert.Equal(t, "_0", suffix)

	_, err = alg(int64(6))
	assert.ErrorIs(t, err, ErrShardMismatch)

	_, err = alg(nil)
	assert.ErrorIs(t, err, shard.ErrInvalidKey)
}

func TestLocalShardingRewritesLogicalTable(t *testing.T) {
	f := newSQLiteFixture(t)
	sdb := newSQLiteDB(t, f, &Config{
		LocalSharding: ShardingRule{ShardingKey: "user_id", Tables: []string{"orders"}},
	})
	ctx := context.Background()

	// 路由之外准备数据
	raw := testkit.OpenSQLiteFile(t, f.paths["db0"])
	for _, table := range []string{"orders_0", "orders_1"} {
		require.NoError(t, raw.Table(table).AutoMigrate(&Order{}))
	}
	require.NoError(t, raw.Table("orders_1").Create(&Order{ID: 11, UserID: 5, Amount: 10}).Error)
	require.NoError(t, raw.Table("orders_0").Create(&Order{ID: 12, UserID: 4, Amount: 20}).Error)

	conn, err := sdb.Node(ctx, "db0")
	require.NoError(t, err)

	var orders []Order
	require.NoError(t, conn.Where("user_id = ?", int64(5)).Find(&orders).Error)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(11), orders[0].ID)

	orders = nil
	require.NoError(t, conn.Where("user_id = ?", int64(4)).Find(&orders).Error)
	require.Len(t, orders, 1)
	assert.Equal(t, 20, orders[0].Amount)

	// 2 属于 db1
	err = conn.Where("user_id = ?", int64(2)).Find(&orders).Error
	assert.Error(t, err)
}
