package shard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordersMod() TableSpec {
	return TableSpec{
		ShardType:  "mod",
		DiffTable:  true,
		Masters:    "db0, db1",
		StoreByMod: 4,
		Mod:        map[string]string{"db0": "0-1", "db1": "2-3"},
	}
}

func TestBuildTopology(t *testing.T) {
	reg := NewUDFRegistry()
	reg.MustRegister("pin", func(ctx context.Context, table string, key any, class ReplicaClass, args []string) (*Target, error) {
		return &Target{NodeName: args[0], Table: table}, nil
	})

	topo, err := Build(settingsWith(map[string]TableSpec{
		"orders": ordersMod(),
		"users": {
			Masters: map[string]any{"db1": 2, "DB0": 1},
			Slaves:  map[string]any{"db0": "r0:3, r1", "db1": map[string]any{"r1": 1}},
		},
		"logs": {
			ShardType:   "date",
			Masters:     "db0, db1, db2",
			StoreByDate: "Season",
			Date: map[string]string{
				"db2": "all",
				"db1": "2024-01-01",
				"db0": "2023-01-01, 2023-12-31",
			},
		},
		"custom": {ShardType: "udf", UDF: "pin(db2)"},
	}), WithUDFRegistry(reg))
	require.NoError(t, err)

	assert.Len(t, topo.Nodes, len(testNodes()))
	assert.Equal(t, 3307, topo.Nodes["db2"].Port)
	assert.Equal(t, "orders", topo.Nodes["db0"].Database)

	orders := topo.Tables["orders"]
	assert.Equal(t, PolicyMod, orders.Policy)
	assert.True(t, orders.SplitTable)
	assert.Equal(t, ModRule{Modulus: 4, Partitions: []string{"db0", "db0", "db1", "db1"}}, orders.Rule)

	users := topo.Tables["users"]
	assert.Equal(t, PolicyNone, users.Policy)
	assert.Equal(t, NoneRule{}, users.Rule)
	assert.Equal(t, []WeightedNode{{"db0", 1}, {"db1", 2}}, users.Primaries)
	assert.Equal(t, []WeightedNode{{"r0", 3}, {"r1", 1}}, users.Replicas["db0"])
	assert.Equal(t, []WeightedNode{{"r1", 1}}, users.Replicas["db1"])

	logs := topo.Tables["logs"].Rule.(DateRule)
	assert.Equal(t, GranularitySeason, logs.Granularity)
	require.Len(t, logs.Entries, 3)
	assert.Equal(t, []DateKind{DateBetween, DateFrom, DateAll},
		[]DateKind{logs.Entries[0].Kind, logs.Entries[1].Kind, logs.Entries[2].Kind})
	assert.Equal(t, []string{"db0", "db1", "db2"},
		[]string{logs.Entries[0].Node, logs.Entries[1].Node, logs.Entries[2].Node})

	custom := topo.Tables["custom"].Rule.(UDFRule)
	assert.Equal(t, "pin", custom.Name)
	assert.Equal(t, []string{"db2"}, custom.Args)
	assert.NotNil(t, custom.Func)
	assert.Empty(t, topo.Tables["custom"].Primaries)
}

func TestBuildTableLookupIgnoresCase(t *testing.T) {
	topo, err := Build(settingsWith(map[string]TableSpec{"Orders": ordersMod()}))
	require.NoError(t, err)

	d, ok := topo.Descriptor("Orders")
	require.True(t, ok)
	assert.Equal(t, "Orders", d.Table)

	d, ok = topo.Descriptor("ORDERS")
	require.True(t, ok)
	assert.Equal(t, "Orders", d.Table)

	_, ok = topo.Descriptor("order")
	assert.False(t, ok)
}

func TestBuildHistoryAndRangeAndMap(t *testing.T) {
	topo, err := Build(settingsWith(map[string]TableSpec{
		"tickets": {
			ShardType:      "history",
			Masters:        "db0, db1",
			StoreByHistory: "90 days",
			StoreByStatus:  "closed",
			StoreByConds:   "BOTH",
			History:        map[string]string{"db0": "Current", "db1": "history"},
		},
		"accounts": {
			ShardType:    "range",
			Masters:      "dba, dbb",
			StoreByRange: "small:0-99, large:100",
			Range:        map[string]string{"dbA": "small", "dbb": "LARGE"},
		},
		"sessions": {
			ShardType:  "map",
			DiffTable:  true,
			Masters:    "db0:3, db1",
			StoreByMap: "etcd://127.0.0.1:2379",
			Map:        map[string]string{"db0": "0-3", "db1": "4,6"},
		},
	}))
	require.NoError(t, err)

	history := topo.Tables["tickets"].Rule.(HistoryRule)
	assert.Equal(t, HistoryRule{Cutoff: &Offset{90, "day"}, Status: "closed", Conds: CondsBoth, Current: "db0", History: "db1"}, history)

	ranges := topo.Tables["accounts"].Rule.(RangeRule)
	assert.Equal(t, []RangeEntry{
		{Label: "small", Min: 0, Max: 99, Node: "dba"},
		{Label: "large", Min: 100, Node: "dbb"},
	}, ranges.Ranges)

	m := topo.Tables["sessions"].Rule.(MapRule)
	assert.Equal(t, Endpoint{Scheme: SchemeEtcd, Host: "127.0.0.1", Port: 2379}, m.Endpoint)
	assert.Equal(t, map[string][]int{"db0": {0, 1, 2, 3}, "db1": {4, 6}}, m.Partitions)
}

func TestBuildConfigErrors(t *testing.T) {
	reg := NewUDFRegistry()
	reg.MustRegister("known", func(context.Context, string, any, ReplicaClass, []string) (*Target, error) {
		return nil, nil
	})

	mutate := func(f func(*TableSpec)) TableSpec {
		s := ordersMod()
		f(&s)
		return s
	}

	tests := []struct {
		name  string
		nodes map[string]any
		spec  TableSpec
	}{
		{name: "unknown policy", spec: mutate(func(s *TableSpec) { s.ShardType = "hash" })},
		{name: "no masters", spec: TableSpec{ShardType: "none"}},
		{name: "unknown master", spec: mutate(func(s *TableSpec) { s.Masters = "db0, db9" })},
		{name: "duplicate master", spec: mutate(func(s *TableSpec) { s.Masters = "db0, DB0" })},
		{name: "slaves for non master", spec: mutate(func(s *TableSpec) { s.Slaves = map[string]any{"db2": "r0"} })},
		{name: "unknown slave", spec: mutate(func(s *TableSpec) { s.Slaves = map[string]any{"db0": "r9"} })},
		{name: "mod without section", spec: mutate(func(s *TableSpec) { s.Mod = nil })},
		{name: "mod negative modulus", spec: mutate(func(s *TableSpec) { s.StoreByMod = -4 })},
		{name: "mod remainder outside", spec: mutate(func(s *TableSpec) { s.Mod = map[string]string{"db0": "0-1", "db1": "2-4"} })},
		{name: "mod remainder uncovered", spec: mutate(func(s *TableSpec) { s.Mod = map[string]string{"db0": "0-1", "db1": "3"} })},
		{name: "mod remainder twice", spec: mutate(func(s *TableSpec) { s.Mod = map[string]string{"db0": "0-2", "db1": "2-3"} })},
		{name: "mod bad list", spec: mutate(func(s *TableSpec) { s.Mod = map[string]string{"db0": "0-x", "db1": "2-3"} })},
		{name: "mod node not master", spec: mutate(func(s *TableSpec) { s.Mod = map[string]string{"db0": "0-1", "db2": "2-3"} })},
		{name: "date bad granularity", spec: TableSpec{ShardType: "date", Masters: "db0", StoreByDate: "week", Date: map[string]string{"db0": "all"}}},
		{name: "date missing section", spec: TableSpec{ShardType: "date", Masters: "db0", StoreByDate: "year"}},
		{name: "date bad entry", spec: TableSpec{ShardType: "date", Masters: "db0", StoreByDate: "year", Date: map[string]string{"db0": "2024-12-01, 2024-01-01"}}},
		{name: "history bad conds", spec: TableSpec{ShardType: "history", Masters: "db0, db1", StoreByStatus: "x", StoreByConds: "either", History: map[string]string{"db0": "current", "db1": "history"}}},
		{name: "history bad cutoff", spec: TableSpec{ShardType: "history", Masters: "db0, db1", StoreByHistory: "3 weeks", History: map[string]string{"db0": "current", "db1": "history"}}},
		{name: "history no predicate", spec: TableSpec{ShardType: "history", Masters: "db0, db1", History: map[string]string{"db0": "current", "db1": "history"}}},
		{name: "history bad role", spec: TableSpec{ShardType: "history", Masters: "db0, db1", StoreByStatus: "x", History: map[string]string{"db0": "current", "db1": "archive"}}},
		{name: "history missing node", spec: TableSpec{ShardType: "history", Masters: "db0, db1", StoreByStatus: "x", History: map[string]string{"db0": "current"}}},
		{name: "history two currents", spec: TableSpec{ShardType: "history", Masters: "db0, db1", StoreByStatus: "x", History: map[string]string{"db0": "current", "db1": "current"}}},
		{name: "range bad spec", spec: TableSpec{ShardType: "range", Masters: "dba", StoreByRange: "small", Range: map[string]string{"dba": "small"}}},
		{name: "range missing section", spec: TableSpec{ShardType: "range", Masters: "dba", StoreByRange: "small:0-9"}},
		{name: "range undeclared label", spec: TableSpec{ShardType: "range", Masters: "dba", StoreByRange: "small:0-9", Range: map[string]string{"dba": "small, big"}}},
		{name: "range unmapped label", spec: TableSpec{ShardType: "range", Masters: "dba", StoreByRange: "small:0-9, big:10", Range: map[string]string{"dba": "small"}}},
		{name: "map no endpoint", spec: TableSpec{ShardType: "map", Masters: "db0"}},
		{name: "map bad endpoint", spec: TableSpec{ShardType: "map", Masters: "db0", StoreByMap: "localhost"}},
		{name: "map split without ids", spec: TableSpec{ShardType: "map", DiffTable: true, Masters: "db0, db1", StoreByMap: "h:6379", Map: map[string]string{"db0": "1"}}},
		{name: "udf missing", spec: TableSpec{ShardType: "udf"}},
		{name: "udf unparsable", spec: TableSpec{ShardType: "udf", UDF: "known"}},
		{name: "udf unknown", spec: TableSpec{ShardType: "udf", UDF: "unknown(a)"}},
		{name: "malformed node", nodes: map[string]any{"db0": "h:3306"}, spec: TableSpec{Masters: "db0"}},
		{name: "node case clash", nodes: map[string]any{"db0": "h:1:u:p", "DB0": "h:2:u:p"}, spec: TableSpec{Masters: "db0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes := tt.nodes
			if nodes == nil {
				nodes = testNodes()
			}
			topo, err := Build(&Settings{Nodes: nodes, Tables: map[string]TableSpec{"t": tt.spec}}, WithUDFRegistry(reg))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Nil(t, topo)
		})
	}
}

func TestBuildNilSettingsAndTableCaseClash(t *testing.T) {
	_, err := Build(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Build(settingsWith(map[string]TableSpec{"orders": ordersMod(), "ORDERS": ordersMod()}))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuildModDefaultsToSingleRemainder(t *testing.T) {
	topo, err := Build(settingsWith(map[string]TableSpec{
		"t": {ShardType: "mod", Masters: "db0", Mod: map[string]string{"db0": "0"}},
	}))
	require.NoError(t, err)
	assert.Equal(t, ModRule{Modulus: 1, Partitions: []string{"db0"}}, topo.Tables["t"].Rule)
}
