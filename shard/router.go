package shard

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/dbroute/clog"
	"github.com/ceyewan/dbroute/xerrors"
)

// Router 分片路由器，持有当前生效的拓扑快照
//
// Resolve 可并发调用；Reload 以原子替换的方式切换快照，
// 正在进行的解析继续使用开始时读取到的快照。
type Router struct {
	topo    atomic.Pointer[Topology]
	opts    *options
	logger  clog.Logger
	metrics *routerMetrics
}

// NewRouter 构建初始拓扑并创建路由器
//
// 示例：
//
//	router, err := shard.NewRouter(settings,
//		shard.WithLogger(logger),
//		shard.WithStoreDialer(mapstore.NewDialer(mapstore.WithLogger(logger))),
//	)
//	target, err := router.Resolve(ctx, "orders", 10086, shard.Primary)
func NewRouter(settings *Settings, opts ...Option) (*Router, error) {
	o := applyOptions(opts)
	r := &Router{
		opts:    o,
		logger:  o.logger,
		metrics: newRouterMetrics(o.meter),
	}
	if err := r.Reload(settings); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload 构建新拓扑并替换当前快照，失败时保留原快照
func (r *Router) Reload(settings *Settings) error {
	ctx := context.Background()
	topo, err := build(settings, r.opts)
	if err == nil {
		err = r.checkDialer(topo)
	}
	r.metrics.observeReload(ctx, topo, err)
	if err != nil {
		r.logger.Error("shard topology rejected", clog.Error(err))
		return err
	}

	r.topo.Store(topo)
	r.logger.Info("shard topology loaded",
		clog.Int("nodes", len(topo.Nodes)),
		clog.Int("tables", len(topo.Tables)),
	)
	return nil
}

func (r *Router) checkDialer(topo *Topology) error {
	if r.opts.dialer != nil {
		return nil
	}
	for _, table := range sortedKeys(topo.Tables) {
		if topo.Tables[table].Policy == PolicyMap {
			return configError(table, "map policy needs a store dialer")
		}
	}
	return nil
}

// Topology 返回当前生效的拓扑快照，调用方不得修改
func (r *Router) Topology() *Topology {
	return r.topo.Load()
}

// Target 按节点名在当前快照中构造解析结果
func (r *Router) Target(node, table string, class ReplicaClass) (*Target, error) {
	return r.topo.Load().Target(node, table, class)
}

// Resolve 计算 (table, key, class) 对应的物理节点和物理表名
//
// 返回的错误可用 errors.Is 与 ErrUnknownTable、ErrInvalidKey、ErrKeyOutOfRange、
// ErrNoReplicaConfigured、ErrStoreUnavailable、ErrInvalidAssignment、ErrUDFFailure 比较。
func (r *Router) Resolve(ctx context.Context, table string, key any, class ReplicaClass) (*Target, error) {
	start := time.Now()
	ctx, span := r.opts.tracer.Start(ctx, "shard.Resolve", trace.WithAttributes(
		attribute.String("db.table", table),
		attribute.String("shard.class", class.String()),
	))
	defer span.End()

	topo := r.topo.Load()
	desc, ok := topo.Descriptor(table)
	if !ok {
		err := xerrors.Wrapf(ErrUnknownTable, "table %s", table)
		r.metrics.observeResolve(ctx, "unknown", class, err, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("shard.policy", string(desc.Policy)))

	target, err := r.resolve(ctx, topo, desc, key, class)
	r.metrics.observeResolve(ctx, desc.Policy, class, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.DebugContext(ctx, "shard resolve failed",
			clog.Table(table),
			clog.Key(key),
			clog.String("class", class.String()),
			clog.Error(err),
		)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("shard.node", target.NodeName),
		attribute.String("shard.physical_table", target.Table),
	)
	return target, nil
}

func (r *Router) resolve(ctx context.Context, topo *Topology, desc *Descriptor, key any, class ReplicaClass) (*Target, error) {
	var (
		node   string
		suffix string
		err    error
	)

	switch rule := desc.Rule.(type) {
	case NoneRule:
		node = desc.Primaries[0].Name
	case ModRule:
		node, suffix, err = resolveMod(rule, key)
	case DateRule:
		node, suffix, err = resolveDate(rule, key, r.opts)
	case HistoryRule:
		node, suffix, err = resolveHistory(rule, key, r.opts)
	case RangeRule:
		node, suffix, err = resolveRange(rule, key)
	case MapRule:
		node, suffix, err = r.resolveMap(ctx, topo, desc, rule, key)
	case UDFRule:
		return resolveUDF(ctx, desc, rule, key, class)
	default:
		err = xerrors.Wrapf(xerrors.ErrInternal, "table %s: unsupported rule %T", desc.Table, desc.Rule)
	}
	if err != nil {
		return nil, xerrors.Wrapf(err, "table %s", desc.Table)
	}

	if class == Replica {
		replicas := desc.Replicas[node]
		if len(replicas) == 0 {
			return nil, xerrors.Wrapf(ErrNoReplicaConfigured, "table %s master %s", desc.Table, node)
		}
		node = pickWeighted(replicas, r.opts.rand)
	}

	physical := desc.Table
	if !desc.SplitTable {
		suffix = ""
	}
	physical += suffix

	return &Target{
		NodeName: node,
		Node:     topo.Nodes[node],
		Table:    physical,
		Suffix:   suffix,
		Class:    class,
	}, nil
}
