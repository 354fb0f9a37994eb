package mapstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dbroute/mapstore"
	"github.com/ceyewan/dbroute/shard"
	"github.com/ceyewan/dbroute/testkit"
)

func assertFirstWriteWins(t *testing.T, ep shard.Endpoint) {
	t.Helper()
	ctx := context.Background()

	d, err := mapstore.NewDialer(mapstore.WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	defer d.Close()

	s, err := d.Dial(ctx, ep)
	require.NoError(t, err)

	bucket := "orders:" + testkit.NewID()
	_, ok, err := s.Get(ctx, bucket, "456")
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := s.SetIfAbsent(ctx, bucket, "456", "db0:1")
	require.NoError(t, err)
	assert.Equal(t, "db0:1", v)

	v, err = s.SetIfAbsent(ctx, bucket, "456", "db1:3")
	require.NoError(t, err)
	assert.Equal(t, "db0:1", v)

	v, ok, err = s.Get(ctx, bucket, "456")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "db0:1", v)
}

func TestRedisStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	assertFirstWriteWins(t, testkit.NewRedisEndpoint(t))
}

func TestEtcdStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	assertFirstWriteWins(t, testkit.NewEtcdEndpoint(t))
}

func TestRouterWithRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ep := testkit.NewRedisEndpoint(t)

	d, err := mapstore.NewDialer(mapstore.WithLogger(testkit.NewLogger()), mapstore.WithKeyPrefix("dbroute:"))
	require.NoError(t, err)
	defer d.Close()

	settings := &shard.Settings{
		Nodes: map[string]any{
			"db0": "10.0.0.1:3306:app:secret",
			"db1": "10.0.0.2:3306:app:secret",
		},
		Tables: map[string]shard.TableSpec{
			"sessions": {
				ShardType:  "map",
				DiffTable:  true,
				Masters:    "db0, db1",
				StoreByMap: ep.String(),
				Map:        map[string]string{"db0": "0-3", "db1": "4-7"},
			},
		},
	}
	router, err := shard.NewRouter(settings, shard.WithStoreDialer(d), shard.WithLogger(testkit.NewLogger()))
	require.NoError(t, err)

	ctx := context.Background()
	key := "u-" + testkit.NewID()
	first, err := router.Resolve(ctx, "sessions", key, shard.Primary)
	require.NoError(t, err)
	for range 5 {
		again, err := router.Resolve(ctx, "sessions", key, shard.Primary)
		require.NoError(t, err)
		assert.Equal(t, first.NodeName, again.NodeName)
		assert.Equal(t, first.Table, again.Table)
	}
}
