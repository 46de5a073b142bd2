// Package config loads batchfetch configuration from defaults, an optional
// YAML file and BATCHFETCH_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/batchfetch/pkg/backoff"
	"github.com/Sternrassler/batchfetch/pkg/ratelimit"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// BATCHFETCH_FETCH_MAX_WORKERS=20.
const EnvPrefix = "BATCHFETCH"

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Checkpoint backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Config is the complete run configuration.
type Config struct {
	Input      InputConfig      `mapstructure:"input"`
	Output     OutputConfig     `mapstructure:"output"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Log        LogConfig        `mapstructure:"log"`

	// MetricsAddr serves /metrics and /health while running. Empty disables.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// InputConfig locates the identifier source.
type InputConfig struct {
	Path string `mapstructure:"path"`
}

// OutputConfig locates batch files and the failed-identifier export.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// CheckpointConfig selects and configures the checkpoint store.
type CheckpointConfig struct {
	Backend string      `mapstructure:"backend"`
	Path    string      `mapstructure:"path"`
	Name    string      `mapstructure:"name"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// FetchConfig configures the fetch unit and worker pool.
type FetchConfig struct {
	URLTemplate  string            `mapstructure:"url_template"`
	Headers      map[string]string `mapstructure:"headers"`
	MaxWorkers   int               `mapstructure:"max_workers"`
	RetryLimit   int               `mapstructure:"retry_limit"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	MaxBodyBytes int64             `mapstructure:"max_body_bytes"`
	RetryBackoff backoff.Config    `mapstructure:"retry_backoff"`
	RateLimit    ratelimit.Config  `mapstructure:"rate_limit"`
}

// BatchConfig configures partitioning and pacing.
type BatchConfig struct {
	Size          int            `mapstructure:"size"`
	Delay         backoff.Config `mapstructure:"delay"`
	ProgressEvery int            `mapstructure:"progress_every"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input.path", "products_id.csv")
	v.SetDefault("output.dir", "tiki_data")

	v.SetDefault("checkpoint.backend", BackendFile)
	v.SetDefault("checkpoint.path", "checkpoints/tiki_crawler_checkpoint.json")
	v.SetDefault("checkpoint.name", "tiki_crawler")
	v.SetDefault("checkpoint.redis.addr", "localhost:6379")
	v.SetDefault("checkpoint.redis.password", "")
	v.SetDefault("checkpoint.redis.db", 0)

	v.SetDefault("fetch.url_template", "https://api.tiki.vn/product-detail/api/v1/products/%d")
	v.SetDefault("fetch.max_workers", 50)
	v.SetDefault("fetch.retry_limit", 3)
	v.SetDefault("fetch.timeout", 10*time.Second)
	v.SetDefault("fetch.max_body_bytes", 8<<20)
	v.SetDefault("fetch.retry_backoff.kind", string(backoff.KindConstant))
	v.SetDefault("fetch.retry_backoff.interval", time.Second)
	v.SetDefault("fetch.retry_backoff.max", 30*time.Second)
	v.SetDefault("fetch.retry_backoff.multiplier", 2.0)
	v.SetDefault("fetch.retry_backoff.jitter", 0.5)
	v.SetDefault("fetch.rate_limit.rps", 0.0)
	v.SetDefault("fetch.rate_limit.burst", 0)
	v.SetDefault("fetch.rate_limit.max_pause", ratelimit.DefaultMaxPause)

	v.SetDefault("batch.size", 1000)
	v.SetDefault("batch.delay.kind", string(backoff.KindConstant))
	v.SetDefault("batch.delay.interval", 3*time.Second)
	v.SetDefault("batch.delay.max", time.Minute)
	v.SetDefault("batch.delay.multiplier", 2.0)
	v.SetDefault("batch.delay.jitter", 0.5)
	v.SetDefault("batch.progress_every", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics_addr", "")
}

// Load reads configuration. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field a run depends on.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Fetch.MaxWorkers <= 0 {
		invalid("fetch.max_workers must be positive (got %d)", c.Fetch.MaxWorkers)
	}
	if c.Fetch.RetryLimit <= 0 {
		invalid("fetch.retry_limit must be positive (got %d)", c.Fetch.RetryLimit)
	}
	if c.Fetch.Timeout <= 0 {
		invalid("fetch.timeout must be positive (got %s)", c.Fetch.Timeout)
	}
	if strings.Count(c.Fetch.URLTemplate, "%d") != 1 {
		invalid("fetch.url_template must contain exactly one %%d (got %q)", c.Fetch.URLTemplate)
	}
	if c.Batch.Size <= 0 {
		invalid("batch.size must be positive (got %d)", c.Batch.Size)
	}
	if _, err := backoff.New(c.Fetch.RetryBackoff); err != nil {
		invalid("fetch.retry_backoff: %v", err)
	}
	if _, err := backoff.New(c.Batch.Delay); err != nil {
		invalid("batch.delay: %v", err)
	}
	if c.Output.Dir == "" {
		invalid("output.dir must be set")
	}

	switch c.Checkpoint.Backend {
	case BackendFile:
		if c.Checkpoint.Path == "" {
			invalid("checkpoint.path must be set for the file backend")
		}
	case BackendRedis:
		if c.Checkpoint.Redis.Addr == "" {
			invalid("checkpoint.redis.addr must be set for the redis backend")
		}
	default:
		invalid("checkpoint.backend must be %q or %q (got %q)", BackendFile, BackendRedis, c.Checkpoint.Backend)
	}

	return errors.Join(errs...)
}
