package shard

import (
	"github.com/ceyewan/dbroute/config"
	"github.com/ceyewan/dbroute/xerrors"
)

// Settings 分片配置的原始形式，由 config.Loader 反序列化得到
//
//	shard:
//	  nodes:
//	    db0: "10.0.0.1:3306:app:secret:orders"
//	    db1: {host: 10.0.0.2, port: 3306, user: app, password: secret}
//	  tables:
//	    orders:
//	      shardtype: mod
//	      difftable: true
//	      masters: "db0:3, db1"
//	      storebymod: 4
//	      mod: {db0: "0-1", db1: "2-3"}
type Settings struct {
	// Nodes 节点名到连接串 "host:port:user:password[:database]" 或同名字段 map
	Nodes map[string]any `mapstructure:"nodes" json:"nodes" yaml:"nodes"`

	// Tables 逻辑表名到分片声明
	Tables map[string]TableSpec `mapstructure:"tables" json:"tables" yaml:"tables"`
}

// TableSpec 一张表的分片声明，字段名沿用历史配置的写法
type TableSpec struct {
	ShardType string `mapstructure:"shardtype" json:"shardtype" yaml:"shardtype"`
	DiffTable bool   `mapstructure:"difftable" json:"difftable" yaml:"difftable"`

	// Masters "db0:3, db1" 或 {db0: 3, db1: 1}，权重缺省或非正时为 1
	Masters any `mapstructure:"masters" json:"masters" yaml:"masters"`
	// Slaves 主库名到从库列表，格式同 Masters
	Slaves map[string]any `mapstructure:"slaves" json:"slaves" yaml:"slaves"`

	StoreByMod int64             `mapstructure:"storebymod" json:"storebymod" yaml:"storebymod"`
	Mod        map[string]string `mapstructure:"mod" json:"mod" yaml:"mod"`

	StoreByDate string            `mapstructure:"storebydate" json:"storebydate" yaml:"storebydate"`
	Date        map[string]string `mapstructure:"date" json:"date" yaml:"date"`

	StoreByHistory string            `mapstructure:"storebyhistory" json:"storebyhistory" yaml:"storebyhistory"`
	StoreByStatus  string            `mapstructure:"storebystatus" json:"storebystatus" yaml:"storebystatus"`
	StoreByConds   string            `mapstructure:"storebyconds" json:"storebyconds" yaml:"storebyconds"`
	History        map[string]string `mapstructure:"history" json:"history" yaml:"history"`

	// StoreByRange "small:0-99, large:100" 或 {small: [0, 99], large: [100, 0]}
	StoreByRange any               `mapstructure:"storebyrange" json:"storebyrange" yaml:"storebyrange"`
	Range        map[string]string `mapstructure:"range" json:"range" yaml:"range"`

	StoreByMap string            `mapstructure:"storebymap" json:"storebymap" yaml:"storebymap"`
	Map        map[string]string `mapstructure:"map" json:"map" yaml:"map"`

	// UDF "name(arg1, arg2)"
	UDF string `mapstructure:"udf" json:"udf" yaml:"udf"`
}

// LoadSettings 从 Loader 的 key 下读取分片配置
func LoadSettings(loader config.Loader, key string) (*Settings, error) {
	var settings Settings
	if err := loader.UnmarshalKey(key, &settings); err != nil {
		return nil, xerrors.Wrapf(ErrInvalidConfig, "decode %q: %v", key, err)
	}
	if len(settings.Tables) == 0 {
		return nil, xerrors.Wrapf(ErrInvalidConfig, "no tables under %q", key)
	}
	return &settings, nil
}
