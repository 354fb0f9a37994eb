package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"

	"github.com/ceyewan/dbroute/shard"
)

func TestRender(t *testing.T) {
	target := &shard.Target{
		NodeName: "db0",
		Node:     shard.Node{Name: "db0", Host: "10.0.0.1", Port: 3306, User: "app", Password: "secret"},
		Table:    "orders_1",
		Suffix:   "_1",
		Class:    shard.Primary,
	}

	var buf bytes.Buffer
	require.NoError(t, render(&buf, "json", target))
	assert.NotContains(t, buf.String(), "secret")
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "orders_1", decoded["table"])

	buf.Reset()
	require.NoError(t, render(&buf, "yaml", target))
	assert.NotContains(t, buf.String(), "secret")
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, "db0", fromYAML["node_name"])

	assert.Error(t, render(&buf, "xml", target))
}

func newTestContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	global := flag.NewFlagSet("dbroute", flag.ContinueOnError)
	global.String("config", "testdata/dbroute.yaml", "")
	global.String("key", "shard", "")
	parent := cli.NewContext(cli.NewApp(), global, nil)

	set := flag.NewFlagSet("resolve", flag.ContinueOnError)
	set.String("class", "primary", "")
	set.String("format", "json", "")
	require.NoError(t, set.Parse(args))
	return cli.NewContext(parent.App, set, parent)
}

func TestNewEnvBuildsRouter(t *testing.T) {
	c := newTestContext(t)
	e, err := newEnv(t.Context(), c)
	require.NoError(t, err)
	defer e.Close()

	topo := e.router.Topology()
	assert.Len(t, topo.Tables, 3)

	target, err := e.router.Resolve(t.Context(), "orders", "6", shard.Primary)
	require.NoError(t, err)
	assert.Equal(t, "db1", target.NodeName)
	assert.Equal(t, "orders_2", target.Table)

	target, err = e.router.Resolve(t.Context(), "orders", "5", shard.Replica)
	require.NoError(t, err)
	assert.Equal(t, "r0", target.NodeName)

	target, err = e.router.Resolve(t.Context(), "payments", "150", shard.Primary)
	require.NoError(t, err)
	assert.Equal(t, "db1", target.NodeName)
	assert.Equal(t, "payments", target.Table)
}

func TestResolveCommandArgs(t *testing.T) {
	c := newTestContext(t, "orders")
	err := runResolve(c)
	assert.Error(t, err)
}

func TestNewEnvMissingFile(t *testing.T) {
	global := flag.NewFlagSet("dbroute", flag.ContinueOnError)
	global.String("config", "testdata/missing.yaml", "")
	global.String("key", "shard", "")
	c := cli.NewContext(cli.NewApp(), global, nil)

	_, err := newEnv(t.Context(), c)
	assert.Error(t, err)
}

func TestNewEnvReleasesOnSettingsError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	path := filepath.Join(t.TempDir(), "dbroute.yaml")
	content := fmt.Sprintf("log:\n  level: error\nmetrics:\n  enabled: true\n  port: %d\n  path: /metrics\nshard:\n  nodes:\n    db0: 10.0.0.1:3306:app:secret:shop\n", port)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	global := flag.NewFlagSet("dbroute", flag.ContinueOnError)
	global.String("config", path, "")
	global.String("key", "shard", "")
	c := cli.NewContext(cli.NewApp(), global, nil)

	_, err = newEnv(t.Context(), c)
	require.ErrorIs(t, err, shard.ErrInvalidConfig)

	// 失败后 metrics 服务器应已关闭
	url := fmt.Sprintf("http://127.0.0.1:%d/metrics", port)
	assert.Never(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	}, 300*time.Millisecond, 50*time.Millisecond)
}
