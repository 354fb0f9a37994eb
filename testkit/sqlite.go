package testkit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewSQLiteNode 返回一个 SQLite 分片节点定义，database 字段为临时文件路径
//
// 返回值可直接放入 shard.Settings.Nodes，配合 db.Config{Driver: "sqlite"} 使用。
func NewSQLiteNode(t *testing.T, name string) (node map[string]any, path string) {
	path = filepath.Join(t.TempDir(), name+".db")
	return map[string]any{
		"host":     "localhost",
		"port":     1,
		"database": path,
	}, path
}

// OpenSQLiteFile 直接打开 SQLite 文件，绕过路由，用于准备和检查数据
func OpenSQLiteFile(t *testing.T, path string) *gorm.DB {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err, "failed to open sqlite file")

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}
