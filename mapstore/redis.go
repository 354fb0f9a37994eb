package mapstore

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/dbroute/connector"
	"github.com/ceyewan/dbroute/xerrors"
)

// Redis 基于 Redis hash 的分配存储
//
// bucket 对应 hash key（加上 prefix），field 对应 hash field。
type Redis struct {
	conn   connector.RedisConnector
	prefix string
	owned  bool
}

// NewRedis 基于已连接的 RedisConnector 创建存储，连接由调用方管理
func NewRedis(conn connector.RedisConnector, prefix string) *Redis {
	return &Redis{conn: conn, prefix: prefix}
}

func (s *Redis) key(bucket string) string {
	return s.prefix + bucket
}

// Get 读取分配记录
func (s *Redis) Get(ctx context.Context, bucket, field string) (string, bool, error) {
	v, err := s.conn.GetClient().HGet(ctx, s.key(bucket), field).Result()
	if xerrors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, xerrors.Wrapf(err, "redis hget %s", s.key(bucket))
	}
	return v, true, nil
}

// SetIfAbsent 使用 HSETNX 写入，未写入时读回已有值
func (s *Redis) SetIfAbsent(ctx context.Context, bucket, field, value string) (string, error) {
	client := s.conn.GetClient()
	key := s.key(bucket)

	written, err := client.HSetNX(ctx, key, field, value).Result()
	if err != nil {
		return "", xerrors.Wrapf(err, "redis hsetnx %s", key)
	}
	if written {
		return value, nil
	}

	actual, err := client.HGet(ctx, key, field).Result()
	if err != nil {
		return "", xerrors.Wrapf(err, "redis hget %s", key)
	}
	return actual, nil
}

// Close 仅关闭由 Dialer 创建的连接
func (s *Redis) Close() error {
	if s.owned {
		return s.conn.Close()
	}
	return nil
}
