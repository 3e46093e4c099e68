// Package config loads service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full engine configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Clickhouse ClickhouseConfig `mapstructure:"clickhouse"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Lock       LockConfig       `mapstructure:"lock"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ClickhouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// FeedConfig points at the upstream market data WebSocket.
type FeedConfig struct {
	Endpoint   string   `mapstructure:"endpoint"`
	Tickers    []string `mapstructure:"tickers"`
	Timeframes []string `mapstructure:"timeframes"`
}

// PipelineConfig lists the indicator keys the incremental pipeline
// keeps warm.
type PipelineConfig struct {
	IndicatorKeys []string `mapstructure:"indicator_keys"`
}

type JobsConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
}

type LockConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads configuration from path. Every key can be overridden via
// a TRADELAB_ prefixed environment variable, e.g. TRADELAB_POSTGRES_DSN.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Every key needs a default so environment overrides bind even
	// without a config file.
	v.SetDefault("log_level", "info")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("clickhouse.dsn", "")
	v.SetDefault("feed.endpoint", "")
	v.SetDefault("feed.tickers", []string{})
	v.SetDefault("feed.timeframes", []string{})
	v.SetDefault("pipeline.indicator_keys", []string{})
	v.SetDefault("jobs.timeout", "30m")
	v.SetDefault("jobs.max_concurrent", 4)
	v.SetDefault("lock.ttl", "5m")
	v.SetDefault("metrics.addr", ":9090")

	v.SetEnvPrefix("TRADELAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Jobs.Timeout <= 0 {
		return fmt.Errorf("jobs.timeout must be positive, got %v", cfg.Jobs.Timeout)
	}
	if cfg.Jobs.MaxConcurrent <= 0 {
		return fmt.Errorf("jobs.max_concurrent must be positive, got %d", cfg.Jobs.MaxConcurrent)
	}
	if cfg.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be positive, got %v", cfg.Lock.TTL)
	}
	return nil
}
