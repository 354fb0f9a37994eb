package mapstore

import (
	"context"

	"github.com/puzpuzpuz/xsync/v4"
)

// Memory 进程内分配存储
type Memory struct {
	records *xsync.Map[string, string]
}

// NewMemory 创建空的内存存储
func NewMemory() *Memory {
	return &Memory{records: xsync.NewMap[string, string]()}
}

func memoryKey(bucket, field string) string {
	return bucket + "\x00" + field
}

// Get 读取分配记录
func (m *Memory) Get(_ context.Context, bucket, field string) (string, bool, error) {
	v, ok := m.records.Load(memoryKey(bucket, field))
	return v, ok, nil
}

// SetIfAbsent 写入分配记录，已存在时返回旧值
func (m *Memory) SetIfAbsent(_ context.Context, bucket, field, value string) (string, error) {
	actual, _ := m.records.LoadOrStore(memoryKey(bucket, field), value)
	return actual, nil
}

// Len 返回记录数
func (m *Memory) Len() int {
	return m.records.Size()
}

// Close 内存存储无需释放资源
func (m *Memory) Close() error {
	return nil
}
