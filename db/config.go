package db

import (
	"strings"
	"time"

	"github.com/ceyewan/dbroute/xerrors"
)

// 支持的驱动
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config DB 组件配置
type Config struct {
	// Driver 节点使用的数据库驱动: "mysql" 或 "sqlite"
	// 默认值: "mysql"。sqlite 下节点的 database 字段作为文件路径
	Driver string `mapstructure:"driver" json:"driver" yaml:"driver"`

	// 每个节点的连接池设置，0 表示使用连接器默认值
	MaxIdleConns    int           `mapstructure:"max_idle_conns" json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" json:"max_open_conns" yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout" json:"connect_timeout" yaml:"connect_timeout"`

	// SlowThreshold 慢查询阈值 (默认: 200ms)
	SlowThreshold time.Duration `mapstructure:"slow_threshold" json:"slow_threshold" yaml:"slow_threshold"`

	// LocalSharding 在节点连接上注册 gorm.io/sharding 中间件
	// 仅适用于拆表的 mod 表，后缀由路由器计算
	LocalSharding ShardingRule `mapstructure:"local_sharding" json:"local_sharding" yaml:"local_sharding"`
}

// ShardingRule 本地分表规则
//
// 同一规则下的表必须使用相同的 mod 分片配置（同一组表一起拆分）。
type ShardingRule struct {
	// 分片键列名 (例如 "user_id")
	ShardingKey string `mapstructure:"sharding_key" json:"sharding_key" yaml:"sharding_key"`

	// 应用此规则的逻辑表名列表 (例如 ["orders", "order_items"])
	Tables []string `mapstructure:"tables" json:"tables" yaml:"tables"`
}

// Enabled 是否配置了本地分表
func (r ShardingRule) Enabled() bool {
	return len(r.Tables) > 0
}

// setDefaults 设置配置的默认值（内部使用）
func (c *Config) setDefaults() {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = DriverMySQL
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = 200 * time.Millisecond
	}
}

// validate 验证配置的有效性（内部使用）
func (c *Config) validate() error {
	if c.Driver != DriverMySQL && c.Driver != DriverSQLite {
		return xerrors.Wrapf(ErrInvalidConfig, "unsupported driver: %s (must be 'mysql' or 'sqlite')", c.Driver)
	}

	rule := c.LocalSharding
	if !rule.Enabled() {
		return nil
	}
	if rule.ShardingKey == "" {
		return xerrors.Wrap(ErrInvalidConfig, "sharding key cannot be empty")
	}
	for _, table := range rule.Tables {
		if table == "" {
			return xerrors.Wrap(ErrInvalidConfig, "sharding table name cannot be empty")
		}
	}
	return nil
}
