package mapstore

import (
	"context"

	"github.com/ceyewan/dbroute/metrics"
)

const (
	metricOpsTotal    = "dbroute_mapstore_ops_total"
	metricCacheTotal  = "dbroute_mapstore_cache_total"
	metricBreakerOpen = "dbroute_mapstore_breaker_open_total"
)

// 操作结果
const (
	resultRejected = "rejected"
	resultHit      = "hit"
	resultMiss     = "miss"
)

type storeMetrics struct {
	ops     metrics.Counter
	cache   metrics.Counter
	tripped metrics.Counter
}

func newStoreMetrics(m metrics.Meter) *storeMetrics {
	noop := metrics.Discard()
	sm := &storeMetrics{}

	var err error
	if sm.ops, err = m.Counter(metricOpsTotal, "Assignment store operations"); err != nil {
		sm.ops, _ = noop.Counter("", "")
	}
	if sm.cache, err = m.Counter(metricCacheTotal, "Assignment cache lookups"); err != nil {
		sm.cache, _ = noop.Counter("", "")
	}
	if sm.tripped, err = m.Counter(metricBreakerOpen, "Times an endpoint breaker opened"); err != nil {
		sm.tripped, _ = noop.Counter("", "")
	}
	return sm
}

func outcome(err error) string {
	if err != nil {
		return metrics.OutcomeError
	}
	return metrics.OutcomeSuccess
}

func (m *storeMetrics) observeOp(ctx context.Context, backend, op, result string) {
	m.ops.Inc(ctx,
		metrics.L(metrics.LabelBackend, backend),
		metrics.L("op", op),
		metrics.L(metrics.LabelResult, result))
}

func (m *storeMetrics) observeCache(ctx context.Context, hit bool) {
	result := resultMiss
	if hit {
		result = resultHit
	}
	m.cache.Inc(ctx, metrics.L(metrics.LabelResult, result))
}
