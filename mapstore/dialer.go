package mapstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/dbroute/clog"
	"github.com/ceyewan/dbroute/connector"
	"github.com/ceyewan/dbroute/shard"
	"github.com/ceyewan/dbroute/xerrors"
)

// Dialer 按端点懒加载分配存储，实现 shard.StoreDialer
type Dialer struct {
	opts    *options
	logger  clog.Logger
	metrics *storeMetrics
	cache   *otter.Cache[string, string]
	stats   *stats.Counter

	mu     sync.Mutex
	stores *xsync.Map[string, *guardedStore]
	closed atomic.Bool
}

var _ shard.StoreDialer = (*Dialer)(nil)

// NewDialer 创建 Dialer
func NewDialer(opts ...Option) (*Dialer, error) {
	o := applyOptions(opts)
	d := &Dialer{
		opts:    o,
		logger:  o.logger,
		metrics: newStoreMetrics(o.meter),
		stores:  xsync.NewMap[string, *guardedStore](),
	}

	if o.cacheSize > 0 {
		d.stats = stats.NewCounter()
		cache, err := otter.New(&otter.Options[string, string]{
			MaximumSize:      o.cacheSize,
			StatsRecorder:    d.stats,
			ExpiryCalculator: otter.ExpiryWriting[string, string](o.cacheTTL),
		})
		if err != nil {
			return nil, xerrors.Wrap(err, "failed to build assignment cache")
		}
		d.cache = cache
	}
	return d, nil
}

// Dial 返回端点对应的存储，同一端点只建立一次连接
func (d *Dialer) Dial(ctx context.Context, ep shard.Endpoint) (shard.AssignmentStore, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	key := ep.String()
	if s, ok := d.stores.Load(key); ok {
		return s, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if s, ok := d.stores.Load(key); ok {
		return s, nil
	}

	inner, err := d.open(ctx, ep)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to open assignment store",
			clog.String("endpoint", key), clog.Error(err))
		if xerrors.Is(err, shard.ErrStoreUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: dial %s: %w", shard.ErrStoreUnavailable, key, err)
	}

	s := newGuardedStore(ep, inner, d.opts, d.cache, d.metrics, d.logger)
	d.stores.Store(key, s)
	d.logger.InfoContext(ctx, "assignment store opened", clog.String("endpoint", key))
	return s, nil
}

func (d *Dialer) open(ctx context.Context, ep shard.Endpoint) (shard.AssignmentStore, error) {
	if d.opts.factory != nil {
		return d.opts.factory(ctx, ep)
	}

	connOpts := []connector.Option{
		connector.WithLogger(d.logger),
		connector.WithMeter(d.opts.meter),
		connector.WithTracer(d.opts.tracer),
	}
	name := "mapstore-" + ep.Addr()

	switch ep.Scheme {
	case shard.SchemeRedis:
		conn, err := connector.NewRedis(&connector.RedisConfig{
			Name:     name,
			Addr:     ep.Addr(),
			Password: d.opts.password,
			DB:       ep.DB,
		}, connOpts...)
		if err != nil {
			return nil, err
		}
		if err := conn.Connect(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
		s := NewRedis(conn, d.opts.prefix)
		s.owned = true
		return s, nil

	case shard.SchemeEtcd:
		conn, err := connector.NewEtcd(&connector.EtcdConfig{
			Name:      name,
			Endpoints: []string{ep.Addr()},
			Username:  d.opts.username,
			Password:  d.opts.password,
		}, connOpts...)
		if err != nil {
			return nil, err
		}
		if err := conn.Connect(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
		s := NewEtcd(conn, d.opts.prefix)
		s.owned = true
		return s, nil

	default:
		return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "unsupported store scheme %q", ep.Scheme)
	}
}

// BreakerState 返回端点熔断器状态，端点未建立时返回 closed
func (d *Dialer) BreakerState(ep shard.Endpoint) string {
	if s, ok := d.stores.Load(ep.String()); ok {
		return s.State()
	}
	return stateToString(gobreaker.StateClosed)
}

// CacheStats 返回本地缓存的命中统计，未开启缓存时返回零值
func (d *Dialer) CacheStats() stats.Stats {
	if d.stats == nil {
		return stats.Stats{}
	}
	return d.stats.Snapshot()
}

// Close 关闭所有已建立的存储，可重复调用
func (d *Dialer) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	d.stores.Range(func(key string, s *guardedStore) bool {
		if err := s.inner.Close(); err != nil {
			errs = append(errs, xerrors.Wrapf(err, "close %s", key))
		}
		d.stores.Delete(key)
		return true
	})
	if d.cache != nil {
		d.cache.InvalidateAll()
	}
	return xerrors.Combine(errs...)
}
