package shard

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveModExample(t *testing.T) {
	r := newTestRouter(t, map[string]TableSpec{"orders": ordersMod()})
	ctx := context.Background()

	target, err := r.Resolve(ctx, "orders", 5, Primary)
	require.NoError(t, err)
	assert.Equal(t, "db0", target.NodeName)
	assert.Equal(t, "orders_1", target.Table)
	assert.Equal(t, "_1", target.Suffix)
	assert.Equal(t, "10.0.0.1", target.Node.Host)
	assert.Equal(t, Primary, target.Class)

	target, err = r.Resolve(ctx, "orders", 6, Primary)
	require.NoError(t, err)
	assert.Equal(t, "db1", target.NodeName)
	assert.Equal(t, "orders_2", target.Table)
}

func TestResolveModProperty(t *testing.T) {
	r := newTestRouter(t, map[string]TableSpec{"orders": ordersMod()})
	ctx := context.Background()
	want := []string{"db0", "db0", "db1", "db1"}

	for k := int64(-20); k <= 20; k++ {
		rem := ((k % 4) + 4) % 4
		for _, key := range []any{k, int(k), fmt.Sprint(k), float64(k)} {
			target, err := r.Resolve(ctx, "orders", key, Primary)
			require.NoError(t, err, "key %v", key)
			assert.Equal(t, want[rem], target.NodeName, "key %v", key)
			assert.Equal(t, fmt.Sprintf("orders_%d", rem), target.Table, "key %v", key)
		}
	}
}

func TestResolveModWithoutSplit(t *testing.T) {
	spec := ordersMod()
	spec.DiffTable = false
	r := newTestRouter(t, map[string]TableSpec{"orders": spec})

	target, err := r.Resolve(context.Background(), "orders", "7", Primary)
	require.NoError(t, err)
	assert.Equal(t, "db1", target.NodeName)
	assert.Equal(t, "orders", target.Table)
	assert.Empty(t, target.Suffix)
}

func TestResolveInvalidIntegerKeys(t *testing.T) {
	r := newTestRouter(t, map[string]TableSpec{"orders": ordersMod()})
	for _, key := range []any{nil, true, "abc", "1.5", 2.5, "", struct{}{}} {
		_, err := r.Resolve(context.Background(), "orders", key, Primary)
		assert.ErrorIs(t, err, ErrInvalidKey, "key %v", key)
	}
}

func TestResolveUnknownTableAndCaseFolding(t *testing.T) {
	r := newTestRouter(t, map[string]TableSpec{"orders": ordersMod()})

	_, err := r.Resolve(context.Background(), "payments", 1, Primary)
	assert.ErrorIs(t, err, ErrUnknownTable)

	target, err := r.Resolve(context.Background(), "ORDERS", 1, Primary)
	require.NoError(t, err)
	assert.Equal(t, "orders_1", target.Table)
}

func TestResolveNone(t *testing.T) {
	r := newTestRouter(t, map[string]TableSpec{"users": {Masters: "db1, db0"}})

	for i := 0; i < 5; i++ {
		target, err := r.Resolve(context.Background(), "users", i, Primary)
		require.NoError(t, err)
		assert.Equal(t, "db1", target.NodeName)
		assert.Equal(t, "users", target.Table)
	}
}

func TestResolveReplica(t *testing.T) {
	spec := ordersMod()
	spec.Slaves = map[string]any{"db0": "r0:1, r1:1"}
	r := newTestRouter(t, map[string]TableSpec{"orders": spec}, WithRand(&seqRand{vals: []int{0, 99}}))
	ctx := context.Background()

	target, err := r.Resolve(ctx, "orders", 1, Replica)
	require.NoError(t, err)
	assert.Equal(t, "r0", target.NodeName)
	assert.Equal(t, "orders_1", target.Table)
	assert.Equal(t, Replica, target.Class)
	assert.Equal(t, "reader", target.Node.User)

	target, err = r.Resolve(ctx, "orders", 1, Replica)
	require.NoError(t, err)
	assert.Equal(t, "r1", target.NodeName)

	_, err = r.Resolve(ctx, "orders", 2, Replica)
	assert.ErrorIs(t, err, ErrNoReplicaConfigured)

	target, err = r.Resolve(ctx, "orders", 2, ParseReplicaClass("whatever"))
	require.NoError(t, err)
	assert.Equal(t, "db1", target.NodeName)
}

func TestResolveDate(t *testing.T) {
	r := newTestRouter(t, map[string]TableSpec{
		"logs": {
			ShardType:   "date",
			DiffTable:   true,
			Masters:     "db0, db1, db2",
			StoreByDate: "month",
			Date: map[string]string{
				"db0": "2023-01-01, 2023-12-31",
				"db1": "2024-01-01",
				"db2": "all",
			},
		},
	})
	ctx := context.Background()

	tests := []struct {
		key   any
		node  string
		table string
	}{
		{"2023-05-06", "db0", "logs_202305"},
		{"2023-12-31", "db0", "logs_202312"},
		{"2024-03-01 10:00:00", "db1", "logs_202403"},
		{time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC), "db1", "logs_202511"},
		{"2022-07-01", "db2", "logs_202207"},
		{20230101, "db0", "logs_202301"},
	}
	for _, tt := range tests {
		target, err := r.Resolve(ctx, "logs", tt.key, Primary)
		require.NoError(t, err, "key %v", tt.key)
		assert.Equal(t, tt.node, target.NodeName, "key %v", tt.key)
		assert.Equal(t, tt.table, target.Table, "key %v", tt.key)
	}

	for _, bad := range []any{"not a date", 7, "12:30", "12:30:05", "3-4", "15"} {
		_, err := r.Resolve(ctx, "logs", bad, Primary)
		assert.ErrorIs(t, err, ErrInvalidKey, "key %v", bad)
	}
}

func TestResolveDateSameIntervalSameTarget(t *testing.T) {
	r := newTestRouter(t, map[string]TableSpec{
		"logs": {
			ShardType:   "date",
			DiffTable:   true,
			Masters:     "db0",
			StoreByDate: "year",
			Date:        map[string]string{"db0": "2023-01-01, 2023-12-31"},
		},
	})
	ctx := context.Background()

	a, err := r.Resolve(ctx, "logs", "2023-02-01", Primary)
	require.NoError(t, err)
	b, err := r.Resolve(ctx, "logs", "2023-11-30", Primary)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "logs_2023", a.Table)

	_, err = r.Resolve(ctx, "logs", "2024-01-01", Primary)
	assert.ErrorIs(t, err, ErrKeyOutOfRange)
}

func TestResolveDateAgoUsesClock(t *testing.T) {
	// fixedNow = 2026-06-15，一年前为 2025-06-15
	r := newTestRouter(t, map[string]TableSpec{
		"logs": {
			ShardType:   "date",
			Masters:     "db0, db1",
			StoreByDate: "year",
			Date:        map[string]string{"db0": "1 year ago", "db1": "2025-06-15"},
		},
	})
	ctx := context.Background()

	for key, want := range map[string]string{
		"2025-01-01": "db0",
		"2025-06-14": "db0",
		"2025-06-15": "db1",
		"2026-01-01": "db1",
	} {
		target, err := r.Resolve(ctx, "logs", key, Primary)
		require.NoError(t, err, key)
		assert.Equal(t, want, target.NodeName, key)
		assert.Equal(t, "logs", target.Table, key)
	}
}

func TestDateSuffix(t *testing.T) {
	tests := []struct {
		g    Granularity
		date time.Time
		want string
	}{
		{GranularityYear, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "_2024"},
		{GranularityHalfYear, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), "_2024A"},
		{GranularityHalfYear, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), "_2024B"},
		{GranularitySeason, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "_2024S1"},
		{GranularitySeason, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), "_2024S2"},
		{GranularitySeason, time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC), "_2024S3"},
		{GranularitySeason, time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), "_2024S4"},
		{GranularityMonth, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "_202403"},
		{GranularityMonth, time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC), "_202411"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dateSuffix(tt.g, tt.date), "%s %v", tt.g, tt.date)
	}
}

func historySpec(conds string) TableSpec {
	return TableSpec{
		ShardType:      "history",
		DiffTable:      true,
		Masters:        "db0, db1",
		StoreByHistory: "30 day",
		StoreByStatus:  "done",
		StoreByConds:   conds,
		History:        map[string]string{"db0": "current", "db1": "history"},
	}
}

func TestResolveHistoryBoth(t *testing.T) {
	// 截止日期为 2026-05-16
	r := newTestRouter(t, map[string]TableSpec{"tickets": historySpec("both")})
	ctx := context.Background()

	tests := []struct {
		key   string
		node  string
		table string
	}{
		{"2026-01-01@done", "db1", "tickets_h"},
		{"2026-06-10@done", "db0", "tickets"},
		{"2026-01-01@open", "db0", "tickets"},
		{"2026-01-01", "db0", "tickets"},
		{"@done", "db0", "tickets"},
		{"", "db0", "tickets"},
	}
	for _, tt := range tests {
		target, err := r.Resolve(ctx, "tickets", tt.key, Primary)
		require.NoError(t, err, tt.key)
		assert.Equal(t, tt.node, target.NodeName, tt.key)
		assert.Equal(t, tt.table, target.Table, tt.key)
	}

	_, err := r.Resolve(ctx, "tickets", "someday@done", Primary)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestResolveHistoryAny(t *testing.T) {
	r := newTestRouter(t, map[string]TableSpec{"tickets": historySpec("")})
	ctx := context.Background()

	for key, want := range map[string]string{
		"2026-01-01":      "db1",
		"@done":           "db1",
		"2026-06-10@done": "db1",
		"2026-06-10@open": "db0",
		"2026-06-10":      "db0",
	} {
		target, err := r.Resolve(ctx, "tickets", key, Primary)
		require.NoError(t, err, key)
		assert.Equal(t, want, target.NodeName, key)
	}

	target, err := r.Resolve(ctx, "tickets", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Primary)
	require.NoError(t, err)
	assert.Equal(t, "db1", target.NodeName)
}

func TestResolveRangeExample(t *testing.T) {
	r := newTestRouter(t, map[string]TableSpec{
		"accounts": {
			ShardType:    "range",
			DiffTable:    true,
			Masters:      "dbA, dbB",
			StoreByRange: map[string]any{"small": []any{0, 99}, "large": []any{100, 0}},
			Range:        map[string]string{"dbA": "small", "dbB": "large"},
		},
	})
	ctx := context.Background()

	target, err := r.Resolve(ctx, "accounts", 99, Primary)
	require.NoError(t, err)
	assert.Equal(t, "dba", target.NodeName)
	assert.Equal(t, "accounts_small", target.Table)

	target, err = r.Resolve(ctx, "accounts", 100, Primary)
	require.NoError(t, err)
	assert.Equal(t, "dbb", target.NodeName)
	assert.Equal(t, "accounts_large", target.Table)

	target, err = r.Resolve(ctx, "accounts", 0, Primary)
	require.NoError(t, err)
	assert.Equal(t, "dba", target.NodeName)

	target, err = r.Resolve(ctx, "accounts", int64(1)<<40, Primary)
	require.NoError(t, err)
	assert.Equal(t, "dbb", target.NodeName)

	_, err = r.Resolve(ctx, "accounts", -1, Primary)
	assert.ErrorIs(t, err, ErrKeyOutOfRange)

	_, err = r.Resolve(ctx, "accounts", "x", Primary)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func mapSpec(split bool) TableSpec {
	return TableSpec{
		ShardType:  "map",
		DiffTable:  split,
		Masters:    "db0, db1",
		StoreByMap: "127.0.0.1:6379:1",
		Map:        map[string]string{"db0": "0-3", "db1": "4-7"},
	}
}

func TestResolveMapAssignsOnceAndReuses(t *testing.T) {
	store := newMemStore()
	dialer := &memDialer{store: store}
	// 第一次：权重抽取 1（db0），分表编号下标 2
	r := newTestRouter(t, map[string]TableSpec{"sessions": mapSpec(true)},
		WithStoreDialer(dialer), WithRand(&seqRand{vals: []int{0, 2}}))
	ctx := context.Background()

	first, err := r.Resolve(ctx, "sessions", "user-123456", Primary)
	require.NoError(t, err)
	assert.Equal(t, "db0", first.NodeName)
	assert.Equal(t, "sessions_2", first.Table)
	assert.Equal(t, "db0:2", store.data["sessions:user-123"]["456"])

	second, err := r.Resolve(ctx, "sessions", "user-123456", Primary)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, store.gets)
	assert.Equal(t, 1, store.sets)

	require.NotEmpty(t, dialer.dialled)
	assert.Equal(t, Endpoint{Scheme: SchemeRedis, Host: "127.0.0.1", Port: 6379, DB: 1}, dialer.dialled[0])
}

func TestResolveMapShortKeyBucket(t *testing.T) {
	store := newMemStore()
	r := newTestRouter(t, map[string]TableSpec{"sessions": mapSpec(false)},
		WithStoreDialer(&memDialer{store: store}), WithRand(&seqRand{vals: []int{99}}))

	target, err := r.Resolve(context.Background(), "sessions", 42, Primary)
	require.NoError(t, err)
	assert.Equal(t, "db1", target.NodeName)
	assert.Equal(t, "sessions", target.Table)
	assert.Equal(t, "db1", store.data["sessions:0"]["42"])
}

func TestResolveMapHitUsesStoredValue(t *testing.T) {
	store := newMemStore()
	store.put("sessions:1000", "001", "DB1:5")
	r := newTestRouter(t, map[string]TableSpec{"sessions": mapSpec(true)}, WithStoreDialer(&memDialer{store: store}))

	target, err := r.Resolve(context.Background(), "sessions", 1000001, Primary)
	require.NoError(t, err)
	assert.Equal(t, "db1", target.NodeName)
	assert.Equal(t, "sessions_5", target.Table)
	assert.Equal(t, 0, store.sets)
}

func TestResolveMapConcurrentWriterWins(t *testing.T) {
	store := newMemStore()
	store.winner = "db1:6"
	r := newTestRouter(t, map[string]TableSpec{"sessions": mapSpec(true)},
		WithStoreDialer(&memDialer{store: store}), WithRand(&seqRand{vals: []int{0, 0}}))

	target, err := r.Resolve(context.Background(), "sessions", "abcd", Primary)
	require.NoError(t, err)
	assert.Equal(t, "db1", target.NodeName)
	assert.Equal(t, "sessions_6", target.Table)
}

func TestResolveMapInvalidAssignment(t *testing.T) {
	for _, stored := range []string{"ghost:1", "db1", "db1:x"} {
		store := newMemStore()
		store.put("sessions:0", "k", stored)
		r := newTestRouter(t, map[string]TableSpec{"sessions": mapSpec(true)}, WithStoreDialer(&memDialer{store: store}))

		_, err := r.Resolve(context.Background(), "sessions", "k", Primary)
		assert.ErrorIs(t, err, ErrInvalidAssignment, stored)
	}
}

func TestResolveMapStoreUnavailable(t *testing.T) {
	ctx := context.Background()

	r := newTestRouter(t, map[string]TableSpec{"sessions": mapSpec(true)}, WithStoreDialer(&memDialer{err: errBoom}))
	_, err := r.Resolve(ctx, "sessions", "k", Primary)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, errBoom)

	store := newMemStore()
	store.getErr = errBoom
	r = newTestRouter(t, map[string]TableSpec{"sessions": mapSpec(true)}, WithStoreDialer(&memDialer{store: store}))
	_, err = r.Resolve(ctx, "sessions", "k", Primary)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 1, store.gets, "store errors are not retried")

	_, err = r.Resolve(ctx, "sessions", "", Primary)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestResolveUDF(t *testing.T) {
	reg := NewUDFRegistry()
	var router *Router
	reg.MustRegister("byTenant", func(ctx context.Context, table string, key any, class ReplicaClass, args []string) (*Target, error) {
		return router.Target(args[0], fmt.Sprintf("%s_%v", table, key), class)
	})
	reg.MustRegister("failing", func(context.Context, string, any, ReplicaClass, []string) (*Target, error) {
		return nil, errBoom
	})
	reg.MustRegister("empty", func(context.Context, string, any, ReplicaClass, []string) (*Target, error) {
		return nil, nil
	})

	router = newTestRouter(t, map[string]TableSpec{
		"tenants": {ShardType: "udf", UDF: "byTenant(DB2, ignored)"},
		"broken":  {ShardType: "udf", UDF: "failing()"},
		"nothing": {ShardType: "udf", UDF: "empty()"},
	}, WithUDFRegistry(reg))
	ctx := context.Background()

	target, err := router.Resolve(ctx, "tenants", "acme", Replica)
	require.NoError(t, err)
	assert.Equal(t, &Target{NodeName: "db2", Node: router.Topology().Nodes["db2"], Table: "tenants_acme", Class: Replica}, target)

	_, err = router.Resolve(ctx, "broken", 1, Primary)
	assert.ErrorIs(t, err, ErrUDFFailure)
	assert.True(t, errors.Is(err, errBoom))

	_, err = router.Resolve(ctx, "nothing", 1, Primary)
	assert.ErrorIs(t, err, ErrUDFFailure)

	_, err = router.Target("ghost", "t", Primary)
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestUDFRegistry(t *testing.T) {
	reg := NewUDFRegistry()
	fn := func(context.Context, string, any, ReplicaClass, []string) (*Target, error) { return nil, nil }

	require.NoError(t, reg.Register("a", fn))
	assert.Error(t, reg.Register("a", fn))
	assert.Error(t, reg.Register("", fn))
	assert.Error(t, reg.Register("b", nil))
	assert.Panics(t, func() { reg.MustRegister("a", fn) })

	_, ok := reg.Lookup("a")
	assert.True(t, ok)
	_, ok = reg.Lookup("missing")
	assert.False(t, ok)

	var nilReg *UDFRegistry
	_, ok = nilReg.Lookup("a")
	assert.False(t, ok)
}
