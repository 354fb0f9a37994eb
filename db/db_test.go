package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ceyewan/dbroute/shard"
	"github.com/ceyewan/dbroute/testkit"
)

// Order 测试用的订单模型
type Order struct {
	ID     int64 `gorm:"primaryKey"`
	UserID int64 `gorm:"index"`
	Amount int
}

type sqliteFixture struct {
	router *shard.Router
	paths  map[string]string
}

// newSQLiteFixture orders 按 user_id 模 4 拆到 db0(0-1)、db1(2-3)，profiles 固定在 db1
func newSQLiteFixture(t *testing.T) *sqliteFixture {
	nodes := make(map[string]any)
	paths := make(map[string]string)
	for _, name := range []string{"db0", "db1"} {
		node, path := testkit.NewSQLiteNode(t, name)
		nodes[name] = node
		paths[name] = path
	}

	settings := &shard.Settings{
		Nodes: nodes,
		Tables: map[string]shard.TableSpec{
			"orders": {
				ShardType:  "mod",
				DiffTable:  true,
				Masters:    "db0, db1",
				StoreByMod: 4,
				Mod:        map[string]string{"db0": "0-1", "db1": "2-3"},
			},
			"order_items": {
				ShardType:  "mod",
				DiffTable:  true,
				Masters:    "db0, db1",
				StoreByMod: 4,
				Mod:        map[string]string{"db0": "0-1", "db1": "2-3"},
			},
			"invoices": {
				ShardType:  "mod",
				DiffTable:  true,
				Masters:    "db0, db1",
				StoreByMod: 4,
				Mod:        map[string]string{"db0": "0,2", "db1": "1,3"},
			},
			"profiles": {Masters: "db1"},
		},
	}
	return &sqliteFixture{router: testkit.NewRouter(t, settings), paths: paths}
}

func newSQLiteDB(t *testing.T, f *sqliteFixture, cfg *Config) DB {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Driver = DriverSQLite
	sdb, err := New(f.router, cfg, WithLogger(testkit.NewLogger()), WithSilentMode())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sdb.Close() })
	return sdb
}

func TestNewValidation(t *testing.T) {
	f := newSQLiteFixture(t)

	_, err := New(nil, &Config{})
	assert.ErrorIs(t, err, ErrRouterRequired)

	cases := []struct {
		name string
		cfg  *Config
	}{
		{name: "driver", cfg: &Config{Driver: "postgres"}},
		{name: "empty key", cfg: &Config{LocalSharding: ShardingRule{Tables: []string{"orders"}}}},
		{name: "empty table", cfg: &Config{LocalSharding: ShardingRule{ShardingKey: "user_id", Tables: []string{""}}}},
		{name: "unknown table", cfg: &Config{LocalSharding: ShardingRule{ShardingKey: "user_id", Tables: []string{"carts"}}}},
		{name: "not mod", cfg: &Config{LocalSharding: ShardingRule{ShardingKey: "user_id", Tables: []string{"profiles"}}}},
		{name: "different partitions", cfg: &Config{LocalSharding: ShardingRule{ShardingKey: "user_id", Tables: []string{"orders", "invoices"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(f.router, tc.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err = New(f.router, &Config{LocalSharding: ShardingRule{ShardingKey: "user_id", Tables: []string{"orders", "order_items"}}})
	assert.NoError(t, err)
}

func TestRouteScopesToPhysicalTable(t *testing.T) {
	f := newSQLiteFixture(t)
	sdb := newSQLiteDB(t, f, nil)
	ctx := context.Background()

	tx, target, err := sdb.Route(ctx, "orders", 5, shard.Primary)
	require.NoError(t, err)
	assert.Equal(t, "db0", target.NodeName)
	assert.Equal(t, "orders_1", target.Table)

	require.NoError(t, tx.AutoMigrate(&Order{}))

	tx, _, err = sdb.Route(ctx, "orders", 5, shard.Primary)
	require.NoError(t, err)
	require.NoError(t, tx.Create(&Order{ID: 1, UserID: 5, Amount: 30}).Error)

	raw := testkit.OpenSQLiteFile(t, f.paths["db0"])
	assert.True(t, raw.Migrator().HasTable("orders_1"))
	var got Order
	require.NoError(t, raw.Table("orders_1").First(&got, 1).Error)
	assert.Equal(t, int64(5), got.UserID)

	assert.False(t, testkit.OpenSQLiteFile(t, f.paths["db1"]).Migrator().HasTable("orders_1"))
}

func TestRouteOpensEachNodeOnce(t *testing.T) {
	f := newSQLiteFixture(t)
	sdb := newSQLiteDB(t, f, nil)
	ctx := context.Background()

	for _, key := range []int{0, 1, 4, 5} {
		_, target, err := sdb.Route(ctx, "orders", key, shard.Primary)
		require.NoError(t, err)
		assert.Equal(t, "db0", target.NodeName)
	}
	assert.Equal(t, 1, sdb.(*database).nodes.Size())

	_, target, err := sdb.Route(ctx, "profiles", "anything", shard.Primary)
	require.NoError(t, err)
	assert.Equal(t, "db1", target.NodeName)
	assert.Equal(t, "profiles", target.Table)
	assert.Equal(t, 2, sdb.(*database).nodes.Size())
}

func TestRoutePropagatesRouterErrors(t *testing.T) {
	f := newSQLiteFixture(t)
	sdb := newSQLiteDB(t, f, nil)
	ctx := context.Background()

	_, _, err := sdb.Route(ctx, "carts", 1, shard.Primary)
	assert.ErrorIs(t, err, shard.ErrUnknownTable)

	_, _, err = sdb.Route(ctx, "orders", 1, shard.Replica)
	assert.ErrorIs(t, err, shard.ErrNoReplicaConfigured)

	_, err = sdb.Node(ctx, "db9")
	assert.ErrorIs(t, err, shard.ErrUnknownNode)
}

func TestTransaction(t *testing.T) {
	f := newSQLiteFixture(t)
	sdb := newSQLiteDB(t, f, nil)
	ctx := context.Background()

	tx, _, err := sdb.Route(ctx, "orders", 2, shard.Primary)
	require.NoError(t, err)
	require.NoError(t, tx.AutoMigrate(&Order{}))

	errAbort := errors.New("abort")
	err = sdb.Transaction(ctx, "orders", 2, func(ctx context.Context, tx *gorm.DB, target *shard.Target) error {
		assert.Equal(t, "db1", target.NodeName)
		if err := tx.Table(target.Table).Create(&Order{ID: 7, UserID: 2}).Error; err != nil {
			return err
		}
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	err = sdb.Transaction(ctx, "orders", 2, func(ctx context.Context, tx *gorm.DB, target *shard.Target) error {
		return tx.Table(target.Table).Create(&Order{ID: 8, UserID: 2}).Error
	})
	require.NoError(t, err)

	var ids []int64
	raw := testkit.OpenSQLiteFile(t, f.paths["db1"])
	require.NoError(t, raw.Table("orders_2").Pluck("id", &ids).Error)
	assert.Equal(t, []int64{8}, ids)
}

func TestSQLiteNodeWithoutPath(t *testing.T) {
	settings := &shard.Settings{
		Nodes:  map[string]any{"db0": "localhost:1:app:secret"},
		Tables: map[string]shard.TableSpec{"profiles": {Masters: "db0"}},
	}
	sdb, err := New(testkit.NewRouter(t, settings), &Config{Driver: DriverSQLite})
	require.NoError(t, err)

	_, _, err = sdb.Route(context.Background(), "profiles", 1, shard.Primary)
	assert.ErrorIs(t, err, ErrNodeUnavailable)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClose(t *testing.T) {
	f := newSQLiteFixture(t)
	sdb, err := New(f.router, &Config{Driver: DriverSQLite}, WithSilentMode())
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = sdb.Route(ctx, "orders", 1, shard.Primary)
	require.NoError(t, err)

	require.NoError(t, sdb.Close())
	require.NoError(t, sdb.Close())

	_, _, err = sdb.Route(ctx, "orders", 1, shard.Primary)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRouteRecordsQuerySpans(t *testing.T) {
	kit := testkit.NewKit(t)
	f := newSQLiteFixture(t)
	sdb, err := New(f.router, &Config{Driver: DriverSQLite},
		WithLogger(kit.Logger), WithMeter(kit.Meter), WithTracer(kit.Tracer), WithSilentMode())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sdb.Close() })

	tx, _, err := sdb.Route(kit.Ctx, "profiles", nil, shard.Primary)
	require.NoError(t, err)
	require.NoError(t, tx.Exec("CREATE TABLE profiles (id INTEGER PRIMARY KEY)").Error)

	assert.NotEmpty(t, kit.SpanNames(), "otelgorm should record a span per statement")
}

func TestRouteReopensNodeAfterReload(t *testing.T) {
	nodeA, pathA := testkit.NewSQLiteNode(t, "a")
	nodeB, pathB := testkit.NewSQLiteNode(t, "b")
	settings := func(node map[string]any) *shard.Settings {
		return &shard.Settings{
			Nodes:  map[string]any{"db0": node},
			Tables: map[string]shard.TableSpec{"profiles": {Masters: "db0"}},
		}
	}
	router := testkit.NewRouter(t, settings(nodeA))
	sdb, err := New(router, &Config{Driver: DriverSQLite}, WithLogger(testkit.NewLogger()), WithSilentMode())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sdb.Close() })
	ctx := context.Background()

	tx, target, err := sdb.Route(ctx, "profiles", nil, shard.Primary)
	require.NoError(t, err)
	assert.Equal(t, pathA, target.Node.Database)
	require.NoError(t, tx.Exec("CREATE TABLE marker_a (id INTEGER PRIMARY KEY)").Error)

	require.NoError(t, router.Reload(settings(nodeB)))

	tx, target, err = sdb.Route(ctx, "profiles", nil, shard.Primary)
	require.NoError(t, err)
	assert.Equal(t, pathB, target.Node.Database)
	assert.False(t, tx.Migrator().HasTable("marker_a"), "connection must follow the reloaded node")
	require.NoError(t, tx.Exec("CREATE TABLE marker_b (id INTEGER PRIMARY KEY)").Error)

	assert.True(t, testkit.OpenSQLiteFile(t, pathB).Migrator().HasTable("marker_b"))
	assert.False(t, testkit.OpenSQLiteFile(t, pathA).Migrator().HasTable("marker_b"))

	nc, ok := sdb.(*database).nodes.Load("db0")
	require.True(t, ok)
	assert.Equal(t, pathB, nc.node.Database)
	assert.Equal(t, 1, sdb.(*database).nodes.Size())

	require.NoError(t, sdb.Transaction(ctx, "profiles", nil, func(ctx context.Context, tx *gorm.DB, target *shard.Target) error {
		assert.Equal(t, pathB, target.Node.Database)
		return tx.Exec("INSERT INTO marker_b (id) VALUES (1)").Error
	}))
}
