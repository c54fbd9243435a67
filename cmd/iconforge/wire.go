package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/iconforge/iconforge/pkg/cache"
	"github.com/iconforge/iconforge/pkg/cache/memory"
	"github.com/iconforge/iconforge/pkg/cache/redis"
	"github.com/iconforge/iconforge/pkg/cache/sqlite"
	"github.com/iconforge/iconforge/pkg/config"
	"github.com/iconforge/iconforge/pkg/expander"
	"github.com/iconforge/iconforge/pkg/history"
	"github.com/iconforge/iconforge/pkg/icons"
	"github.com/iconforge/iconforge/pkg/imagegen"
	"github.com/iconforge/iconforge/pkg/logging"
	"github.com/iconforge/iconforge/pkg/metrics"
)

// app holds the components shared by the commands that generate icons.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	cache   cache.Store
	history *history.Store
	orch    *icons.Orchestrator
}

// loadConfig loads the configuration and builds its logger.
func loadConfig(path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newApp wires the orchestrator from configuration. Callers must Close it.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	exp, err := buildExpander(cfg.Expander)
	if err != nil {
		return nil, a.fail(fmt.Errorf("init expander: %w", err))
	}
	gen, err := buildGenerator(cfg.Generator)
	if err != nil {
		return nil, a.fail(fmt.Errorf("init generator: %w", err))
	}

	a.cache, err = openCache(ctx, cfg)
	if err != nil {
		return nil, a.fail(fmt.Errorf("init cache: %w", err))
	}

	opts := []icons.Option{icons.WithLogger(logger)}
	if cfg.History.Enabled {
		a.history, err = history.New(cfg.DBPath)
		if err != nil {
			return nil, a.fail(fmt.Errorf("init history: %w", err))
		}
		opts = append(opts, icons.WithRecorder(a.history))
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New("iconforge")
		opts = append(opts, icons.WithMetrics(a.metrics))
	}

	a.orch = icons.New(exp, gen, a.cache, icons.Config{
		CacheTTL:          cfg.Cache.TTL,
		ExpansionTimeout:  cfg.Expander.Timeout,
		GenerationTimeout: cfg.Generator.Timeout,
	}, opts...)

	logger.Debug("iconforge wired",
		zap.String("expander", cfg.Expander.Provider),
		zap.String("generator", cfg.Generator.Provider),
		zap.String("cache", cfg.Cache.Backend),
		zap.Bool("history", cfg.History.Enabled))
	return a, nil
}

func (a *app) fail(err error) error {
	a.Close()
	return err
}

// Close releases the stores and flushes the logger.
func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("close cache", zap.Error(err))
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("close history", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func buildExpander(cfg config.ExpanderConfig) (expander.Expander, error) {
	switch cfg.Provider {
	case "mock":
		return expander.Mock{}, nil
	case "gemini", "":
		return expander.NewGemini(expander.GeminiConfig{
			URL:    cfg.URL,
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unknown expander provider %q", cfg.Provider)
	}
}

func buildGenerator(cfg config.GeneratorConfig) (imagegen.Generator, error) {
	switch cfg.Provider {
	case "mock":
		return imagegen.Mock{}, nil
	case "replicate", "":
		return imagegen.NewReplicate(imagegen.ReplicateConfig{
			URL:          cfg.URL,
			APIToken:     cfg.APIToken,
			Model:        cfg.Model,
			PollInterval: cfg.PollInterval,
		})
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}

// openCache opens the configured expansion cache backend.
func openCache(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "memory", "":
		return memory.New(memory.Options{
			MaxEntries:      cfg.Cache.MaxEntries,
			CleanupInterval: cfg.Cache.CleanupInterval,
		}), nil
	case "sqlite":
		return sqlite.New(filepath.Clean(cfg.DBPath))
	case "redis":
		return redis.New(ctx, redis.Options{
			Addr:      cfg.Cache.Redis.Addr,
			Password:  cfg.Cache.Redis.Password,
			DB:        cfg.Cache.Redis.DB,
			KeyPrefix: cfg.Cache.Redis.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
