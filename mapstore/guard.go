package mapstore

import (
	"context"
	"fmt"

	"github.com/maypok86/otter/v2"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/ceyewan/dbroute/clog"
	"github.com/ceyewan/dbroute/shard"
	"github.com/ceyewan/dbroute/xerrors"
)

type lookup struct {
	value string
	ok    bool
}

// guardedStore 为单个端点的存储加上熔断、限流和缓存
type guardedStore struct {
	endpoint string
	backend  string
	inner    shard.AssignmentStore
	cb       *gobreaker.CircuitBreaker[lookup]
	cache    *otter.Cache[string, string]
	limiter  *rate.Limiter
	metrics  *storeMetrics
	logger   clog.Logger
}

func newGuardedStore(ep shard.Endpoint, inner shard.AssignmentStore, o *options,
	cache *otter.Cache[string, string], m *storeMetrics, logger clog.Logger) *guardedStore {
	g := &guardedStore{
		endpoint: ep.String(),
		backend:  ep.Scheme,
		inner:    inner,
		cache:    cache,
		metrics:  m,
		logger:   logger.With(clog.String("endpoint", ep.String())),
	}
	if o.rateLimit > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(o.rateLimit), o.rateBurst)
	}

	cfg := o.breaker
	g.cb = gobreaker.NewCircuitBreaker[lookup](gobreaker.Settings{
		Name:        g.endpoint,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinimumRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: g.onStateChange,
	})
	return g
}

func (g *guardedStore) cacheKey(bucket, field string) string {
	return g.endpoint + "|" + bucket + "|" + field
}

// Get 先查本地缓存，未命中时经熔断器访问存储
func (g *guardedStore) Get(ctx context.Context, bucket, field string) (string, bool, error) {
	if g.cache != nil {
		v, ok := g.cache.GetIfPresent(g.cacheKey(bucket, field))
		g.metrics.observeCache(ctx, ok)
		if ok {
			return v, true, nil
		}
	}

	if err := g.wait(ctx, "get"); err != nil {
		return "", false, err
	}
	res, err := g.cb.Execute(func() (lookup, error) {
		v, ok, err := g.inner.Get(ctx, bucket, field)
		return lookup{value: v, ok: ok}, err
	})
	if err != nil {
		return "", false, g.fail(ctx, "get", err)
	}
	g.metrics.observeOp(ctx, g.backend, "get", outcome(nil))

	if res.ok && g.cache != nil {
		g.cache.Set(g.cacheKey(bucket, field), res.value)
	}
	return res.value, res.ok, nil
}

// SetIfAbsent 经熔断器写入，生效值写入缓存
func (g *guardedStore) SetIfAbsent(ctx context.Context, bucket, field, value string) (string, error) {
	if err := g.wait(ctx, "set"); err != nil {
		return "", err
	}
	res, err := g.cb.Execute(func() (lookup, error) {
		v, err := g.inner.SetIfAbsent(ctx, bucket, field, value)
		return lookup{value: v, ok: true}, err
	})
	if err != nil {
		return "", g.fail(ctx, "set", err)
	}
	g.metrics.observeOp(ctx, g.backend, "set", outcome(nil))

	if g.cache != nil {
		g.cache.Set(g.cacheKey(bucket, field), res.value)
	}
	return res.value, nil
}

// wait 取得访问存储的令牌
func (g *guardedStore) wait(ctx context.Context, op string) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		g.metrics.observeOp(ctx, g.backend, op, resultRejected)
		return fmt.Errorf("%w: %s %s: rate limited: %w", shard.ErrStoreUnavailable, op, g.endpoint, err)
	}
	return nil
}

func (g *guardedStore) fail(ctx context.Context, op string, err error) error {
	if xerrors.Is(err, gobreaker.ErrOpenState) || xerrors.Is(err, gobreaker.ErrTooManyRequests) {
		g.metrics.observeOp(ctx, g.backend, op, resultRejected)
		return xerrors.Wrapf(ErrOpenState, "%s %s", op, g.endpoint)
	}
	g.metrics.observeOp(ctx, g.backend, op, outcome(err))
	g.logger.WarnContext(ctx, "assignment store operation failed",
		clog.String("op", op), clog.Error(err))
	if xerrors.Is(err, shard.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %w", shard.ErrStoreUnavailable, op, g.endpoint, err)
}

// State 返回熔断器状态
func (g *guardedStore) State() string {
	return stateToString(g.cb.State())
}

// Close 存储的生命周期由 Dialer 管理
func (g *guardedStore) Close() error {
	return nil
}

func (g *guardedStore) onStateChange(name string, from, to gobreaker.State) {
	if to == gobreaker.StateOpen {
		g.metrics.tripped.Inc(context.Background())
	}
	g.logger.Info("circuit breaker state changed",
		clog.String("from", stateToString(from)),
		clog.String("to", stateToString(to)))
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half_open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
