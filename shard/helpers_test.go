package shard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// seqRand 依次返回预设值，用于固定随机选择的结果
type seqRand struct {
	vals []int
	i    int
}

func (r *seqRand) IntN(n int) int {
	v := r.vals[r.i%len(r.vals)]
	r.i++
	if v >= n {
		return n - 1
	}
	return v
}

var fixedNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func testNodes() map[string]any {
	return map[string]any{
		"db0": "10.0.0.1:3306:app:secret:orders",
		"db1": "10.0.0.2:3306:app:secret",
		"db2": map[string]any{"host": "10.0.0.3", "port": "3307", "user": "app", "password": "secret"},
		"dba": "10.0.1.1:3306:app:secret",
		"dbb": "10.0.1.2:3306:app:secret",
		"r0":  "10.0.2.1:3306:reader:secret",
		"r1":  "10.0.2.2:3306:reader:secret",
	}
}

func settingsWith(tables map[string]TableSpec) *Settings {
	return &Settings{Nodes: testNodes(), Tables: tables}
}

func newTestRouter(t *testing.T, tables map[string]TableSpec, opts ...Option) *Router {
	t.Helper()
	base := []Option{WithClock(func() time.Time { return fixedNow }), WithLocation(time.UTC)}
	r, err := NewRouter(settingsWith(tables), append(base, opts...)...)
	require.NoError(t, err)
	return r
}

// memStore 内存分配存储，记录调用次数
type memStore struct {
	mu     sync.Mutex
	data   map[string]map[string]string
	gets   int
	sets   int
	getErr error
	// winner 非空时模拟并发写入中别人先写成功
	winner string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]map[string]string)}
}

func (s *memStore) Get(_ context.Context, bucket, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.data[bucket][field]
	return v, ok, nil
}

func (s *memStore) SetIfAbsent(_ context.Context, bucket, field, value string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.winner != "" {
		value = s.winner
	}
	if s.data[bucket] == nil {
		s.data[bucket] = make(map[string]string)
	}
	if v, ok := s.data[bucket][field]; ok {
		return v, nil
	}
	s.data[bucket][field] = value
	return value, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) put(bucket, field, value string) {
	if s.data[bucket] == nil {
		s.data[bucket] = make(map[string]string)
	}
	s.data[bucket][field] = value
}

type memDialer struct {
	store   *memStore
	err     error
	dialled []Endpoint
}

func (d *memDialer) Dial(_ context.Context, ep Endpoint) (AssignmentStore, error) {
	d.dialled = append(d.dialled, ep)
	if d.err != nil {
		return nil, d.err
	}
	return d.store, nil
}

var errBoom = errors.New("boom")
