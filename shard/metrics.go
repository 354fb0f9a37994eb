package shard

import (
	"context"
	"time"

	"github.com/ceyewan/dbroute/metrics"
)

const (
	metricResolveTotal    = "dbroute_resolve_total"
	metricResolveDuration = "dbroute_resolve_duration_seconds"
	metricMapAssignment   = "dbroute_map_assignment_total"
	metricReloadTotal     = "dbroute_reload_total"
	metricTopologyTables  = "dbroute_topology_tables"
)

type routerMetrics struct {
	resolves    metrics.Counter
	latency     metrics.Histogram
	assignments metrics.Counter
	reloads     metrics.Counter
	tables      metrics.Gauge
}

func newRouterMetrics(m metrics.Meter) *routerMetrics {
	noop := metrics.Discard()
	rm := &routerMetrics{}

	var err error
	if rm.resolves, err = m.Counter(metricResolveTotal, "Number of shard resolutions"); err != nil {
		rm.resolves, _ = noop.Counter("", "")
	}
	if rm.latency, err = m.Histogram(metricResolveDuration, "Shard resolution latency",
		metrics.WithUnit("s"),
		metrics.WithBuckets([]float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5}),
	); err != nil {
		rm.latency, _ = noop.Histogram("", "")
	}
	if rm.assignments, err = m.Counter(metricMapAssignment, "Map policy assignment lookups"); err != nil {
		rm.assignments, _ = noop.Counter("", "")
	}
	if rm.reloads, err = m.Counter(metricReloadTotal, "Number of topology reloads"); err != nil {
		rm.reloads, _ = noop.Counter("", "")
	}
	if rm.tables, err = m.Gauge(metricTopologyTables, "Tables in the active topology"); err != nil {
		rm.tables, _ = noop.Gauge("", "")
	}
	return rm
}

func outcome(err error) string {
	if err != nil {
		return metrics.OutcomeError
	}
	return metrics.OutcomeSuccess
}

func (m *routerMetrics) observeResolve(ctx context.Context, policy Policy, class ReplicaClass, err error, elapsed time.Duration) {
	labels := []metrics.Label{
		metrics.L(metrics.LabelPolicy, string(policy)),
		metrics.L(metrics.LabelClass, class.String()),
	}
	m.resolves.Inc(ctx, append(labels, metrics.L(metrics.LabelResult, outcome(err)))...)
	m.latency.Record(ctx, elapsed.Seconds(), labels...)
}

func (m *routerMetrics) observeAssignment(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.assignments.Inc(ctx, metrics.L(metrics.LabelResult, result))
}

func (m *routerMetrics) observeReload(ctx context.Context, topo *Topology, err error) {
	m.reloads.Inc(ctx, metrics.L(metrics.LabelResult, outcome(err)))
	if err == nil {
		m.tables.Set(ctx, float64(len(topo.Tables)))
	}
}
