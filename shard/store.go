package shard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// AssignmentStore map 策略的外部分配存储，实现需并发安全
//
// 分配记录以 bucket/field 两级组织，值为 "node" 或 "node:partition"。
type AssignmentStore interface {
	// Get 读取分配记录，不存在时 ok 为 false
	Get(ctx context.Context, bucket, field string) (value string, ok bool, err error)

	// SetIfAbsent 仅在记录不存在时写入，返回最终生效的值（先写者胜出）
	SetIfAbsent(ctx context.Context, bucket, field, value string) (string, error)

	// Close 释放存储持有的资源
	Close() error
}

// StoreDialer 按端点获取分配存储，同一端点应返回同一个存储实例
type StoreDialer interface {
	Dial(ctx context.Context, ep Endpoint) (AssignmentStore, error)
}

// 端点协议
const (
	SchemeRedis = "redis"
	SchemeEtcd  = "etcd"
)

// Endpoint 外部存储地址，形如 [scheme://]host:port[:db]
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
	DB     int
}

// ParseEndpoint 解析端点，缺省协议为 redis
func ParseEndpoint(s string) (Endpoint, error) {
	ep := Endpoint{Scheme: SchemeRedis}
	rest := strings.TrimSpace(s)
	if scheme, after, ok := strings.Cut(rest, "://"); ok {
		ep.Scheme = strings.ToLower(scheme)
		rest = after
	}
	if ep.Scheme != SchemeRedis && ep.Scheme != SchemeEtcd {
		return Endpoint{}, fmt.Errorf("unsupported store scheme %q", ep.Scheme)
	}

	parts := strings.Split(rest, ":")
	if len(parts) < 2 || len(parts) > 3 || strings.TrimSpace(parts[0]) == "" {
		return Endpoint{}, fmt.Errorf("store endpoint %q must be host:port[:db]", s)
	}
	ep.Host = strings.TrimSpace(parts[0])

	port, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("store endpoint %q has invalid port", s)
	}
	ep.Port = port

	if len(parts) == 3 {
		db, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil || db < 0 {
			return Endpoint{}, fmt.Errorf("store endpoint %q has invalid db", s)
		}
		ep.DB = db
	}
	return ep, nil
}

// Addr 返回 host:port
func (e Endpoint) Addr() string {
	return e.Host + ":" + strconv.Itoa(e.Port)
}

// String 返回规范化的端点字符串，可作为缓存键
func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s:%d", e.Scheme, e.Addr(), e.DB)
}
