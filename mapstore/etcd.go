package mapstore

import (
	"context"
	"path"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/dbroute/connector"
	"github.com/ceyewan/dbroute/xerrors"
)

// DefaultEtcdPrefix etcd 中分配记录的默认前缀
const DefaultEtcdPrefix = "/dbroute/map"

// Etcd 基于 etcd 的分配存储，每条记录对应 prefix/bucket/field
type Etcd struct {
	conn   connector.EtcdConnector
	prefix string
	owned  bool
}

// NewEtcd 基于已连接的 EtcdConnector 创建存储，prefix 为空时使用 DefaultEtcdPrefix
func NewEtcd(conn connector.EtcdConnector, prefix string) *Etcd {
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	return &Etcd{conn: conn, prefix: prefix}
}

func (s *Etcd) key(bucket, field string) string {
	return path.Join(s.prefix, bucket, field)
}

// Get 读取分配记录
func (s *Etcd) Get(ctx context.Context, bucket, field string) (string, bool, error) {
	key := s.key(bucket, field)
	resp, err := s.conn.GetClient().Get(ctx, key)
	if err != nil {
		return "", false, xerrors.Wrapf(err, "etcd get %s", key)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

// SetIfAbsent 事务写入：key 不存在时 put，否则读回已有值
func (s *Etcd) SetIfAbsent(ctx context.Context, bucket, field, value string) (string, error) {
	key := s.key(bucket, field)
	resp, err := s.conn.GetClient().Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, value)).
		Else(clientv3.OpGet(key)).
		Commit()
	if err != nil {
		return "", xerrors.Wrapf(err, "etcd txn %s", key)
	}
	if resp.Succeeded {
		return value, nil
	}

	if len(resp.Responses) == 0 {
		return "", xerrors.Wrapf(ErrCorruptRecord, "etcd txn %s: empty response", key)
	}
	kvs := resp.Responses[0].GetResponseRange().GetKvs()
	if len(kvs) == 0 {
		// 记录在 compare 和 get 之间被删除
		return "", xerrors.Wrapf(ErrCorruptRecord, "etcd txn %s: record vanished", key)
	}
	return string(kvs[0].Value), nil
}

// Close 仅关闭由 Dialer 创建的连接
func (s *Etcd) Close() error {
	if s.owned {
		return s.conn.Close()
	}
	return nil
}
