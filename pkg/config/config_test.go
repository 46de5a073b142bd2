package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/batchfetch/pkg/backoff"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"max workers", cfg.Fetch.MaxWorkers, 50},
		{"retry limit", cfg.Fetch.RetryLimit, 3},
		{"timeout", cfg.Fetch.Timeout, 10 * time.Second},
		{"batch size", cfg.Batch.Size, 1000},
		{"retry backoff kind", cfg.Fetch.RetryBackoff.Kind, backoff.KindConstant},
		{"retry backoff interval", cfg.Fetch.RetryBackoff.Interval, time.Second},
		{"batch delay", cfg.Batch.Delay.Interval, 3 * time.Second},
		{"input", cfg.Input.Path, "products_id.csv"},
		{"checkpoint", cfg.Checkpoint.Path, "checkpoints/tiki_crawler_checkpoint.json"},
		{"backend", cfg.Checkpoint.Backend, BackendFile},
		{"output", cfg.Output.Dir, "tiki_data"},
		{"url", cfg.Fetch.URLTemplate, "https://api.tiki.vn/product-detail/api/v1/products/%d"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batchfetch.yaml")
	content := `
fetch:
  max_workers: 8
  timeout: 2s
  retry_backoff:
    kind: exponential
    interval: 200ms
batch:
  size: 250
checkpoint:
  backend: redis
  redis:
    addr: redis:6379
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Fetch.MaxWorkers != 8 {
		t.Errorf("MaxWorkers = %d, want 8", cfg.Fetch.MaxWorkers)
	}
	if cfg.Fetch.Timeout != 2*time.Second {
		t.Errorf("Timeout = %s, want 2s", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.RetryBackoff.Kind != backoff.KindExponential || cfg.Fetch.RetryBackoff.Interval != 200*time.Millisecond {
		t.Errorf("RetryBackoff = %+v, want exponential 200ms", cfg.Fetch.RetryBackoff)
	}
	if cfg.Batch.Size != 250 {
		t.Errorf("Batch.Size = %d, want 250", cfg.Batch.Size)
	}
	if cfg.Checkpoint.Backend != BackendRedis || cfg.Checkpoint.Redis.Addr != "redis:6379" {
		t.Errorf("Checkpoint = %+v, want redis at redis:6379", cfg.Checkpoint)
	}
	// Untouched keys keep their defaults.
	if cfg.Fetch.RetryLimit != 3 {
		t.Errorf("RetryLimit = %d, want 3", cfg.Fetch.RetryLimit)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("BATCHFETCH_FETCH_MAX_WORKERS", "12")
	t.Setenv("BATCHFETCH_BATCH_SIZE", "500")
	t.Setenv("BATCHFETCH_OUTPUT_DIR", "/tmp/out")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Fetch.MaxWorkers != 12 {
		t.Errorf("MaxWorkers = %d, want 12", cfg.Fetch.MaxWorkers)
	}
	if cfg.Batch.Size != 500 {
		t.Errorf("Batch.Size = %d, want 500", cfg.Batch.Size)
	}
	if cfg.Output.Dir != "/tmp/out" {
		t.Errorf("Output.Dir = %q, want /tmp/out", cfg.Output.Dir)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() error = nil, want error for missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Fetch.MaxWorkers = 0 }},
		{"zero retries", func(c *Config) { c.Fetch.RetryLimit = 0 }},
		{"zero timeout", func(c *Config) { c.Fetch.Timeout = 0 }},
		{"zero batch size", func(c *Config) { c.Batch.Size = 0 }},
		{"template without verb", func(c *Config) { c.Fetch.URLTemplate = "http://x/products" }},
		{"unknown backoff", func(c *Config) { c.Batch.Delay.Kind = "fibonacci" }},
		{"unknown backend", func(c *Config) { c.Checkpoint.Backend = "s3" }},
		{"redis without addr", func(c *Config) {
			c.Checkpoint.Backend = BackendRedis
			c.Checkpoint.Redis.Addr = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want ErrInvalid", err)
			}
		})
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}
