// Package config loads process settings for the storefront binaries from
// the environment, with an optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App        AppConfig
	Storefront StorefrontConfig
	Cache      CacheConfig
	UI         UIConfig
	Mock       MockConfig
}

type AppConfig struct {
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	LogBackend  string `envconfig:"LOG_BACKEND" default:"zap"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:""`
}

type StorefrontConfig struct {
	BaseURL string        `envconfig:"STOREFRONT_BASE_URL" default:"http://localhost:5000/api"`
	Timeout time.Duration `envconfig:"STOREFRONT_TIMEOUT" default:"10s"`
}

type CacheConfig struct {
	Namespace     string        `envconfig:"CACHE_NAMESPACE" default:"qc"`
	StaleTime     time.Duration `envconfig:"CACHE_STALE_TIME" default:"5m"`
	GCTime        time.Duration `envconfig:"CACHE_GC_TIME" default:"10m"`
	SweepInterval time.Duration `envconfig:"CACHE_SWEEP_INTERVAL" default:"1m"`
	Provider      string        `envconfig:"CACHE_PROVIDER" default:"local"`
	Codec         string        `envconfig:"CACHE_CODEC" default:"json"`
	MaxBytes      int64         `envconfig:"CACHE_MAX_BYTES" default:"67108864"`
	MaxDecode     int           `envconfig:"CACHE_MAX_DECODE" default:"1048576"`
}

type UIConfig struct {
	PrefetchDelay time.Duration `envconfig:"PREFETCH_DELAY" default:"500ms"`
	DebounceQuiet time.Duration `envconfig:"DEBOUNCE_QUIET" default:"300ms"`
}

type MockConfig struct {
	Addr     string  `envconfig:"MOCK_ADDR" default:":5000"`
	FailRate float64 `envconfig:"MOCK_FAIL_RATE" default:"0.2"`
	Books    int     `envconfig:"MOCK_BOOKS" default:"100"`
	Seed     uint64  `envconfig:"MOCK_SEED" default:"42"`
}

// Load reads .env when present, then the environment. Real environment
// variables win over .env entries.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Cache.Provider) {
	case "local", "ristretto", "bigcache":
	default:
		return fmt.Errorf("config: CACHE_PROVIDER %q: want local, ristretto or bigcache", c.Cache.Provider)
	}
	if c.Cache.MaxDecode < 0 {
		return fmt.Errorf("config: CACHE_MAX_DECODE %d is negative", c.Cache.MaxDecode)
	}
	switch strings.ToLower(c.App.LogBackend) {
	case "zap", "logrus", "slog":
	default:
		return fmt.Errorf("config: LOG_BACKEND %q: want zap, logrus or slog", c.App.LogBackend)
	}
	if c.Mock.FailRate < 0 || c.Mock.FailRate > 1 {
		return fmt.Errorf("config: MOCK_FAIL_RATE %v out of [0,1]", c.Mock.FailRate)
	}
	return nil
}
