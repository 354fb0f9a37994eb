package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"

	"github.com/ceyewan/dbroute/clog"
	"github.com/ceyewan/dbroute/config"
	"github.com/ceyewan/dbroute/mapstore"
	"github.com/ceyewan/dbroute/metrics"
	"github.com/ceyewan/dbroute/shard"
	"github.com/ceyewan/dbroute/trace"
	"github.com/ceyewan/dbroute/xerrors"
)

// storeConfig map 策略外部存储的客户端设置
type storeConfig struct {
	CacheSize int                    `mapstructure:"cache_size"`
	CacheTTL  time.Duration          `mapstructure:"cache_ttl"`
	KeyPrefix string                 `mapstructure:"key_prefix"`
	Username  string                 `mapstructure:"username"`
	Password  string                 `mapstructure:"password"`
	Breaker   mapstore.BreakerConfig `mapstructure:"breaker"`
	RateLimit float64                `mapstructure:"rate_limit"`
	RateBurst int                    `mapstructure:"rate_burst"`
}

// env 一次命令运行所需的组件
type env struct {
	loader config.Loader
	logger clog.Logger
	meter  metrics.Meter
	tracer trace.Provider
	dialer *mapstore.Dialer
	router *shard.Router
	key    string
}

func newEnv(ctx context.Context, c *cli.Context) (_ *env, err error) {
	loader, err := config.New(&config.Config{File: c.GlobalString("config")})
	if err != nil {
		return nil, err
	}
	if err := loader.Load(ctx); err != nil {
		return nil, err
	}

	logCfg := clog.NewProdDefaultConfig()
	logCfg.Output = "stderr"
	if err := loader.UnmarshalKey("log", logCfg); err != nil {
		return nil, xerrors.Wrap(err, "decode log config")
	}
	logger, err := clog.New(logCfg, clog.WithNamespace("dbroute"), clog.WithTraceContext())
	if err != nil {
		return nil, err
	}

	e := &env{loader: loader, logger: logger, key: c.GlobalString("key")}
	// 之后任一步失败都要释放已创建的组件
	defer func() {
		if err != nil {
			_ = e.Close()
		}
	}()

	metricsCfg := &metrics.Config{ServiceName: "dbroute", Version: version, Path: "/metrics"}
	if err := loader.UnmarshalKey("metrics", metricsCfg); err != nil {
		return nil, xerrors.Wrap(err, "decode metrics config")
	}
	if e.meter, err = metrics.New(metricsCfg, metrics.WithLogger(logger)); err != nil {
		return nil, err
	}

	traceCfg := &trace.Config{ServiceName: "dbroute"}
	if err := loader.UnmarshalKey("tracing", traceCfg); err != nil {
		return nil, xerrors.Wrap(err, "decode tracing config")
	}
	if e.tracer, err = trace.New(traceCfg); err != nil {
		return nil, err
	}

	var sc storeConfig
	if err := loader.UnmarshalKey("mapstore", &sc); err != nil {
		return nil, xerrors.Wrap(err, "decode mapstore config")
	}
	e.dialer, err = mapstore.NewDialer(
		mapstore.WithLogger(logger),
		mapstore.WithMeter(e.meter),
		mapstore.WithTracer(e.tracer),
		mapstore.WithCache(sc.CacheSize, sc.CacheTTL),
		mapstore.WithKeyPrefix(sc.KeyPrefix),
		mapstore.WithCredentials(sc.Username, sc.Password),
		mapstore.WithBreaker(sc.Breaker),
		mapstore.WithRateLimit(sc.RateLimit, sc.RateBurst),
	)
	if err != nil {
		return nil, err
	}

	settings, err := shard.LoadSettings(loader, e.key)
	if err != nil {
		return nil, err
	}
	e.router, err = shard.NewRouter(settings,
		shard.WithLogger(logger),
		shard.WithMeter(e.meter),
		shard.WithTracer(e.tracer),
		shard.WithStoreDialer(e.dialer),
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Close 释放已创建的组件，可用于构建到一半的 env
func (e *env) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.logger.Flush()

	var errs []error
	if e.dialer != nil {
		errs = append(errs, e.dialer.Close())
	}
	if e.meter != nil {
		errs = append(errs, e.meter.Shutdown(ctx))
	}
	if e.tracer != nil {
		errs = append(errs, e.tracer.Shutdown(ctx))
	}
	return xerrors.Combine(errs...)
}

// render 以 json 或 yaml 输出
func render(w io.Writer, format string, v any) error {
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "unknown output format %q", format)
	}
}

var formatFlag = cli.StringFlag{
	Name:  "format, f",
	Usage: "output format: json or yaml",
	Value: "json",
}
