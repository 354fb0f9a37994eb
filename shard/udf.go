package shard

import (
	"context"
	"fmt"
	"sync"
)

// UDF 自定义路由函数
//
// args 为配置中声明的固定参数，返回的 Target 原样交给调用方。
// 返回 nil Target 或 error 都视为失败。
type UDF func(ctx context.Context, table string, key any, class ReplicaClass, args []string) (*Target, error)

// UDFRegistry 按名称注册的自定义路由函数表
//
// 函数在构建拓扑时按名称查找，未注册的名称是配置错误。
type UDFRegistry struct {
	mu    sync.RWMutex
	funcs map[string]UDF
}

// NewUDFRegistry 创建空的注册表
func NewUDFRegistry() *UDFRegistry {
	return &UDFRegistry{funcs: make(map[string]UDF)}
}

// Register 注册函数，重名或 fn 为 nil 时返回错误
func (r *UDFRegistry) Register(name string, fn UDF) error {
	if name == "" || fn == nil {
		return fmt.Errorf("udf name and func are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[name]; ok {
		return fmt.Errorf("udf %q already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// MustRegister 同 Register，失败时 panic，适合在 init 中使用
func (r *UDFRegistry) MustRegister(name string, fn UDF) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Lookup 按名称查找函数
func (r *UDFRegistry) Lookup(name string) (UDF, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}
