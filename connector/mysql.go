package connector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ceyewan/dbroute/clog"
	"github.com/ceyewan/dbroute/xerrors"
)

type mysqlConnector struct {
	cfg     *MySQLConfig
	dsn     string
	db      *gorm.DB
	tracer  trace.TracerProvider
	logger  clog.Logger
	metrics *connMetrics
	healthy atomic.Bool
	mu      sync.RWMutex
}

// NewMySQL 创建 MySQL 连接器，实际连接在 Connect 时建立
func NewMySQL(cfg *MySQLConfig, opts ...Option) (MySQLConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "mysql config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrapf(ErrConfig, "mysql: %v", err)
	}

	opt := applyOptions(opts)

	return &mysqlConnector{
		cfg:     cfg,
		dsn:     cfg.buildDSN(),
		tracer:  opt.tracer,
		logger:  opt.logger.With(clog.String("connector", "mysql"), clog.String("name", cfg.Name)),
		metrics: newConnMetrics(opt.meter, "mysql", cfg.Name),
	}, nil
}

// buildDSN 优先使用 cfg.DSN，否则通过驱动的 Config 生成
func (c *MySQLConfig) buildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	dc := mysqldriver.NewConfig()
	dc.User = c.Username
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	dc.DBName = c.Database
	dc.ParseTime = true
	dc.Timeout = c.ConnectTimeout
	dc.Params = map[string]string{"charset": c.Charset}
	return dc.FormatDSN()
}

// Connect 打开 GORM 实例、配置连接池并 ping
func (c *mysqlConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}

	db, err := gorm.Open(mysql.Open(c.dsn), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		c.metrics.observe(ctx, err)
		c.logger.Error("failed to open mysql", clog.Error(err), clog.String("host", c.cfg.Host))
		return xerrors.Wrapf(ErrConnection, "mysql connector[%s]: %v", c.cfg.Name, err)
	}

	if c.tracer != nil {
		if err := db.Use(otelgorm.NewPlugin(otelgorm.WithTracerProvider(c.tracer), otelgorm.WithDBName(c.cfg.Database))); err != nil {
			return xerrors.Wrapf(err, "mysql connector[%s]: register tracing plugin", c.cfg.Name)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return xerrors.Wrapf(ErrConnection, "mysql connector[%s]: %v", c.cfg.Name, err)
	}
	sqlDB.SetMaxIdleConns(c.cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(c.cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(c.cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	err = sqlDB.PingContext(pingCtx)
	c.metrics.observe(ctx, err)
	if err != nil {
		_ = sqlDB.Close()
		c.logger.Error("failed to ping mysql", clog.Error(err), clog.String("host", c.cfg.Host))
		return xerrors.Wrapf(ErrConnection, "mysql connector[%s]: ping: %v", c.cfg.Name, err)
	}

	c.db = db
	c.healthy.Store(true)
	c.logger.Info("connected to mysql",
		clog.String("host", c.cfg.Host),
		clog.Int("port", c.cfg.Port),
		clog.String("database", c.cfg.Database),
		clog.String("user", c.cfg.Username),
		clog.Secret("password", c.cfg.Password))
	return nil
}

// Close 关闭连接
func (c *mysqlConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.db == nil {
		return nil
	}

	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		c.logger.Error("failed to close mysql connection", clog.Error(err))
		return err
	}

	c.db = nil
	c.logger.Info("mysql connection closed")
	return nil
}

// HealthCheck 检查连接健康状态
func (c *mysqlConnector) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	db := c.db
	c.mu.RUnlock()

	if db == nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrClientNil, "mysql connector[%s]", c.cfg.Name)
	}

	if err := pingGorm(ctx, db); err != nil {
		c.healthy.Store(false)
		c.logger.Warn("mysql health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "mysql connector[%s]: %v", c.cfg.Name, err)
	}

	c.healthy.Store(true)
	return nil
}

func (c *mysqlConnector) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *mysqlConnector) Name() string {
	return c.cfg.Name
}

func (c *mysqlConnector) GetClient() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}
