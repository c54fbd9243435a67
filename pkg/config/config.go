package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/iconforge/iconforge/pkg/cache"
	"github.com/iconforge/iconforge/pkg/expander"
	"github.com/iconforge/iconforge/pkg/icons"
	"github.com/iconforge/iconforge/pkg/imagegen"
	"github.com/iconforge/iconforge/pkg/logging"
)

// Config holds all iconforge configuration.
type Config struct {
	Listen    string          `yaml:"listen" env:"ICONFORGE_LISTEN" validate:"required"`
	Port      string          `yaml:"-" env:"PORT"`
	DBPath    string          `yaml:"db_path" env:"ICONFORGE_DB_PATH"`
	MockMode  bool            `yaml:"mock_mode" env:"MOCK_MODE"`
	Log       logging.Config  `yaml:"log"`
	Cache     CacheConfig     `yaml:"cache"`
	Expander  ExpanderConfig  `yaml:"expander"`
	Generator GeneratorConfig `yaml:"generator"`
	History   HistoryConfig   `yaml:"history"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	CORS      CORSConfig      `yaml:"cors"`
}

// CacheConfig controls the prompt expansion cache.
type CacheConfig struct {
	Backend         string        `yaml:"backend" env:"ICONFORGE_CACHE_BACKEND" validate:"oneof=memory sqlite redis"`
	TTL             time.Duration `yaml:"ttl" env:"ICONFORGE_CACHE_TTL" validate:"gt=0"`
	MaxEntries      int           `yaml:"max_entries" env:"ICONFORGE_CACHE_MAX_ENTRIES" validate:"gte=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"ICONFORGE_CACHE_CLEANUP_INTERVAL" validate:"gte=0"`
	Redis           RedisConfig   `yaml:"redis"`
}

// RedisConfig locates the redis cache backend.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"ICONFORGE_REDIS_ADDR"`
	Password  string `yaml:"password" env:"ICONFORGE_REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"ICONFORGE_REDIS_DB" validate:"gte=0"`
	KeyPrefix string `yaml:"key_prefix" env:"ICONFORGE_REDIS_KEY_PREFIX"`
}

// ExpanderConfig selects and configures the prompt expander.
// Provider is "gemini" (default) or "mock".
type ExpanderConfig struct {
	Provider string        `yaml:"provider" env:"ICONFORGE_EXPANDER_PROVIDER" validate:"oneof=gemini mock"`
	URL      string        `yaml:"url" env:"ICONFORGE_EXPANDER_URL" validate:"omitempty,url"`
	APIKey   string        `yaml:"api_key" env:"GEMINI_API_KEY"`
	Model    string        `yaml:"model" env:"ICONFORGE_EXPANDER_MODEL"`
	Timeout  time.Duration `yaml:"timeout" env:"ICONFORGE_EXPANDER_TIMEOUT" validate:"gt=0"`
}

// GeneratorConfig selects and configures the image generator.
// Provider is "replicate" (default) or "mock".
type GeneratorConfig struct {
	Provider     string        `yaml:"provider" env:"ICONFORGE_GENERATOR_PROVIDER" validate:"oneof=replicate mock"`
	URL          string        `yaml:"url" env:"ICONFORGE_GENERATOR_URL" validate:"omitempty,url"`
	APIToken     string        `yaml:"api_token" env:"REPLICATE_API_TOKEN"`
	Model        string        `yaml:"model" env:"ICONFORGE_GENERATOR_MODEL"`
	Timeout      time.Duration `yaml:"timeout" env:"ICONFORGE_GENERATOR_TIMEOUT" validate:"gt=0"`
	PollInterval time.Duration `yaml:"poll_interval" env:"ICONFORGE_GENERATOR_POLL_INTERVAL" validate:"gte=0"`
}

// HistoryConfig controls the generation history store.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled" env:"ICONFORGE_HISTORY_ENABLED"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ICONFORGE_METRICS_ENABLED"`
	Path    string `yaml:"path" env:"ICONFORGE_METRICS_PATH" validate:"required,startswith=/"`
}

// CORSConfig lists the origins allowed to call the HTTP API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"ICONFORGE_CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":3000",
		DBPath: "iconforge.db",
		Log: logging.Config{
			Level:  "info",
			Format: "console",
		},
		Cache: CacheConfig{
			Backend:         "memory",
			TTL:             cache.DefaultTTL,
			CleanupInterval: 10 * time.Minute,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "iconforge",
			},
		},
		Expander: ExpanderConfig{
			Provider: "gemini",
			URL:      expander.DefaultGeminiURL,
			Model:    expander.DefaultGeminiModel,
			Timeout:  icons.DefaultExpansionTimeout,
		},
		Generator: GeneratorConfig{
			Provider:     "replicate",
			URL:          imagegen.DefaultReplicateURL,
			Model:        imagegen.DefaultReplicateModel,
			Timeout:      icons.DefaultGenerationTimeout,
			PollInterval: imagegen.DefaultPollInterval,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (with
// environment variables expanded), then environment overrides. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.applyMockMode()
	if cfg.Port != "" {
		cfg.Listen = ":" + strings.TrimPrefix(cfg.Port, ":")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyMockMode switches both upstreams to their offline substitutes.
func (c *Config) applyMockMode() {
	if !c.MockMode {
		return
	}
	c.Expander.Provider = "mock"
	c.Generator.Provider = "mock"
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return errors.New("invalid config: cache.redis.addr is required for the redis backend")
	}
	if c.Cache.Backend == "sqlite" && c.DBPath == "" {
		return errors.New("invalid config: db_path is required for the sqlite backend")
	}
	if c.History.Enabled && c.DBPath == "" {
		return errors.New("invalid config: db_path is required when history is enabled")
	}
	return nil
}
