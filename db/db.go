// Package db 提供按分片路由访问数据库的 GORM 组件。
//
// db 组件在 shard.Router 之上提供：
// - 按路由结果取得已限定物理表名的 *gorm.DB
// - 每个节点懒加载一次的连接（MySQL 或 SQLite 连接器）
// - 单分片事务
// - 本地分表能力（基于 gorm.io/sharding，后缀由路由器计算）
//
// ## 基本使用
//
//	router, _ := shard.NewRouter(settings, shard.WithLogger(logger))
//	database, _ := db.New(router, &db.Config{Driver: "mysql"}, db.WithLogger(logger))
//	defer database.Close()
//
//	tx, target, err := database.Route(ctx, "orders", userID, shard.Primary)
//	if err != nil {
//		return err
//	}
//	tx.Create(&Order{UserID: userID})
//
// ## 本地分表
//
// 对拆表的 mod 表，可以在节点连接上注册分表中间件，直接用逻辑表名查询：
//
//	database, _ := db.New(router, &db.Config{
//		LocalSharding: db.ShardingRule{ShardingKey: "user_id", Tables: []string{"orders"}},
//	})
//	conn, _ := database.Node(ctx, "db0")
//	conn.Where("user_id = ?", 5).Find(&orders) // 改写为 orders_1
//
// ## 设计原则
//
// - **路由在外**：db 组件不做路由决策，只按 Target 选择连接和表
// - **连接懒加载**：节点第一次被访问时才建立连接，Close 时统一释放
package db

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
	"gorm.io/gorm"

	"github.com/ceyewan/dbroute/clog"
	"github.com/ceyewan/dbroute/connector"
	"github.com/ceyewan/dbroute/shard"
	"github.com/ceyewan/dbroute/xerrors"
)

// Resolver 路由能力，*shard.Router 实现了该接口
type Resolver interface {
	Resolve(ctx context.Context, table string, key any, class shard.ReplicaClass) (*shard.Target, error)
	Topology() *shard.Topology
}

// DB 定义了数据库组件的核心能力
type DB interface {
	// Route 解析一次访问，返回限定到物理表的 *gorm.DB 和路由结果
	Route(ctx context.Context, table string, key any, class shard.ReplicaClass) (*gorm.DB, *shard.Target, error)

	// Node 获取节点连接，已注册本地分表的表可以直接用逻辑表名查询
	Node(ctx context.Context, name string) (*gorm.DB, error)

	// Transaction 在分片键所在的主库上执行事务
	// fn 中的 tx 对象仅在当前事务范围内有效，需自行使用 target.Table
	Transaction(ctx context.Context, table string, key any, fn func(ctx context.Context, tx *gorm.DB, target *shard.Target) error) error

	// Close 关闭所有节点连接
	Close() error
}

// database 是 DB 接口的实现
type database struct {
	resolver Resolver
	cfg      *Config
	opts     *options
	logger   clog.Logger

	mu     sync.Mutex
	nodes  *xsync.Map[string, *nodeConn]
	closed atomic.Bool
}

// nodeConn 一个节点的连接
type nodeConn struct {
	node   shard.Node
	conn   connector.Connector
	client *gorm.DB
}

// New 创建数据库组件实例
//
// 参数:
//   - resolver: 路由器，通常是 *shard.Router
//   - cfg: DB 配置
//   - opts: 可选参数 (Logger, Meter, Tracer)
func New(resolver Resolver, cfg *Config, opts ...Option) (DB, error) {
	if resolver == nil {
		return nil, ErrRouterRequired
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := checkLocalSharding(resolver.Topology(), cfg.LocalSharding); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	return &database{
		resolver: resolver,
		cfg:      cfg,
		opts:     o,
		logger:   o.logger,
		nodes:    xsync.NewMap[string, *nodeConn](),
	}, nil
}

// Route 解析路由并返回节点连接
func (d *database) Route(ctx context.Context, table string, key any, class shard.ReplicaClass) (*gorm.DB, *shard.Target, error) {
	target, err := d.resolver.Resolve(ctx, table, key, class)
	if err != nil {
		return nil, nil, err
	}

	client, err := d.open(ctx, target.NodeName, target.Node)
	if err != nil {
		return nil, nil, err
	}
	return client.WithContext(ctx).Table(target.Table), target, nil
}

// Node 按节点名获取连接
func (d *database) Node(ctx context.Context, name string) (*gorm.DB, error) {
	target, err := d.resolver.Topology().Target(name, "", shard.Primary)
	if err != nil {
		return nil, err
	}
	client, err := d.open(ctx, target.NodeName, target.Node)
	if err != nil {
		return nil, err
	}
	return client.WithContext(ctx), nil
}

// Transaction 执行单分片事务
func (d *database) Transaction(ctx context.Context, table string, key any, fn func(ctx context.Context, tx *gorm.DB, target *shard.Target) error) error {
	target, err := d.resolver.Resolve(ctx, table, key, shard.Primary)
	if err != nil {
		return err
	}
	client, err := d.open(ctx, target.NodeName, target.Node)
	if err != nil {
		return err
	}
	return client.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx, target)
	})
}

// open 返回节点连接，首次访问时建立
//
// 重新加载后节点的地址或库名可能变化，缓存的连接与 node 不一致时重新建立并关闭旧连接。
func (d *database) open(ctx context.Context, name string, node shard.Node) (*gorm.DB, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if node.Name == "" {
		// 自定义路由函数可能只给出节点名
		t, err := d.resolver.Topology().Target(name, "", shard.Primary)
		if err != nil {
			return nil, err
		}
		node = t.Node
	}
	if nc, ok := d.nodes.Load(name); ok && nc.node == node {
		return nc.client, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed.Load() {
		return nil, ErrClosed
	}
	stale, ok := d.nodes.Load(name)
	if ok && stale.node == node {
		return stale.client, nil
	}

	nc, err := d.connect(ctx, node)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to open node", clog.Node(node.String()), clog.Error(err))
		return nil, fmt.Errorf("%w: node %s: %w", ErrNodeUnavailable, name, err)
	}
	d.nodes.Store(name, nc)
	if ok {
		if err := stale.conn.Close(); err != nil {
			d.logger.WarnContext(ctx, "failed to close replaced node", clog.Node(stale.node.String()), clog.Error(err))
		}
		d.logger.InfoContext(ctx, "node connection replaced",
			clog.Node(node.String()), clog.String("previous", stale.node.String()))
		return nc.client, nil
	}
	d.logger.InfoContext(ctx, "node opened", clog.Node(node.String()), clog.String("driver", d.cfg.Driver))
	return nc.client, nil
}

func (d *database) connect(ctx context.Context, node shard.Node) (*nodeConn, error) {
	connOpts := []connector.Option{
		connector.WithLogger(d.logger),
		connector.WithMeter(d.opts.meter),
		connector.WithTracer(d.opts.tracer),
	}

	var (
		conn   connector.Connector
		client func() *gorm.DB
	)
	switch d.cfg.Driver {
	case DriverSQLite:
		if node.Database == "" {
			return nil, xerrors.Wrapf(ErrInvalidConfig, "sqlite node %s has no database path", node.Name)
		}
		c, err := connector.NewSQLite(&connector.SQLiteConfig{Name: node.Name, Path: node.Database}, connOpts...)
		if err != nil {
			return nil, err
		}
		conn, client = c, c.GetClient
	default:
		c, err := connector.NewMySQL(&connector.MySQLConfig{
			Name:            node.Name,
			ConnectTimeout:  d.cfg.ConnectTimeout,
			Host:            node.Host,
			Port:            node.Port,
			Username:        node.User,
			Password:        node.Password,
			Database:        node.Database,
			MaxIdleConns:    d.cfg.MaxIdleConns,
			MaxOpenConns:    d.cfg.MaxOpenConns,
			ConnMaxLifetime: d.cfg.ConnMaxLifetime,
		}, connOpts...)
		if err != nil {
			return nil, err
		}
		conn, client = c, c.GetClient
	}

	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}

	gdb := client()
	if err := d.registerSharding(gdb, node.Name); err != nil {
		_ = conn.Close()
		return nil, err
	}

	gdb = gdb.Session(&gorm.Session{
		Logger: newGormLogger(d.logger.With(clog.Node(node.Name)), d.cfg.SlowThreshold, d.opts.silentMode),
	})
	return &nodeConn{node: node, conn: conn, client: gdb}, nil
}

// Close 关闭所有节点连接，可重复调用
func (d *database) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	d.nodes.Range(func(name string, nc *nodeConn) bool {
		if err := nc.conn.Close(); err != nil {
			errs = append(errs, xerrors.Wrapf(err, "close node %s", name))
		}
		d.nodes.Delete(name)
		return true
	})
	return xerrors.Combine(errs...)
}

func isNotFound(err error) bool {
	return xerrors.Is(err, gorm.ErrRecordNotFound)
}
