package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/reglet-dev/glass/config"
	"github.com/reglet-dev/glass/domain/entities"
	"github.com/reglet-dev/glass/domain/ports"
	"github.com/reglet-dev/glass/host"
	"github.com/reglet-dev/glass/hostfuncs"
	binder "github.com/reglet-dev/glass/infrastructure/wazero"
	"github.com/reglet-dev/glass/registry"
	"github.com/reglet-dev/glass/trigger/httptrigger"
	"github.com/reglet-dev/glass/trigger/pingtrigger"
)

const loggerKey = "logger"

// newLogger builds the process logger from the logging flags.
func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var cfg zap.Config
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Development = false
	default:
		return nil, fmt.Errorf("log format %q: must be console or json", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func setupLogging(c *cli.Context) error {
	log, err := newLogger(c.String("log-level"), c.String("log-format"))
	if err != nil {
		return err
	}
	for _, set := range []func(*zap.Logger){
		host.SetLogger,
		binder.SetLogger,
		hostfuncs.SetLogger,
		registry.SetLogger,
		httptrigger.SetLogger,
		pingtrigger.SetLogger,
	} {
		set(log)
	}
	c.App.Metadata = map[string]any{loggerKey: log}
	return nil
}

func syncLogging(c *cli.Context) error {
	if log, ok := c.App.Metadata[loggerKey].(*zap.Logger); ok {
		_ = log.Sync()
	}
	return nil
}

func logger(c *cli.Context) *zap.Logger {
	if log, ok := c.App.Metadata[loggerKey].(*zap.Logger); ok {
		return log
	}
	return zap.NewNop()
}

// loadConfig reads the optional config file and applies the grant and engine flags over it.
func loadConfig(c *cli.Context) (entities.Config, error) {
	cfg := entities.DefaultConfig()
	if path := c.Path("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return entities.Config{}, err
		}
	}

	for _, s := range c.StringSlice("env") {
		v, err := entities.ParseEnvVar(s)
		if err != nil {
			return entities.Config{}, fmt.Errorf("--env: %w", err)
		}
		cfg.Env = append(cfg.Env, v)
	}
	for _, dir := range c.StringSlice("dir") {
		cfg.Dirs = append(cfg.Dirs, entities.DirMapping{Guest: dir, Host: dir})
	}
	for _, s := range c.StringSlice("mapdir") {
		m, err := entities.ParseDirMapping(s)
		if err != nil {
			return entities.Config{}, fmt.Errorf("--mapdir: %w", err)
		}
		cfg.Dirs = append(cfg.Dirs, m)
	}
	if c.IsSet("allowed-host") {
		cfg.AllowedHTTPHosts = c.StringSlice("allowed-host")
	}
	if c.IsSet("max-concurrent-requests") {
		cfg.MaxConcurrentRequests = c.Int("max-concurrent-requests")
	}
	if c.IsSet("inherit-stdio") {
		cfg.InheritStdio = c.Bool("inherit-stdio")
	}
	if c.IsSet("cache-dir") {
		cfg.Engine.CacheDir = c.Path("cache-dir")
	}
	if c.IsSet("timeout") {
		cfg.Engine.InvocationTimeout = c.Duration("timeout")
	}

	if err := config.Validate(cfg); err != nil {
		return entities.Config{}, err
	}
	return cfg, nil
}

// resolver picks the resolver for the component flags and the reference to resolve.
func resolver(c *cli.Context) (ports.Resolver, string, error) {
	if ref := c.String("reference"); ref != "" {
		r, err := registry.NewHTTPResolver(c.String("server"), c.Path("download-dir"))
		if err != nil {
			return nil, "", err
		}
		return r, ref, nil
	}
	if local := c.String("local"); local != "" {
		return registry.LocalResolver{}, local, nil
	}
	return nil, "", fmt.Errorf("either --reference or --local must be set")
}

// resolve locates the entrypoint component on disk.
func resolve(ctx context.Context, c *cli.Context) (host.Source, error) {
	r, ref, err := resolver(c)
	if err != nil {
		return nil, err
	}
	path, err := r.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	logger(c).Info("resolved component", zap.String("reference", ref), zap.String("path", path))
	return host.FromFile(path), nil
}

// newRegistry returns the metrics registry shared by the engine and /metrics.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func engineOptions(c *cli.Context, reg prometheus.Registerer) []host.Option {
	opts := []host.Option{host.WithRegisterer(reg)}
	if c.Bool("strict") {
		opts = append(opts, host.WithStrictNames())
	}
	return opts
}
