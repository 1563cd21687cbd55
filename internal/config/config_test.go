package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9090\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.RateLimit.Interval() != time.Minute {
		t.Fatalf("interval = %v, want 1m", cfg.RateLimit.Interval())
	}
	if cfg.RateLimit.MaxRequests != 100 {
		t.Fatalf("max_requests = %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Fatalf("failure_threshold = %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.Breaker.ResetTimeout() != 30*time.Second {
		t.Fatalf("reset_timeout = %v", cfg.Breaker.ResetTimeout())
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.BackoffFactor != 2 {
		t.Fatalf("retry defaults: %+v", cfg.Retry)
	}
	if len(cfg.Retry.RetryableStatusCodes) != 6 {
		t.Fatalf("retryable codes: %v", cfg.Retry.RetryableStatusCodes)
	}
}

func TestLoadRejectsRedisWithoutAddr(t *testing.T) {
	path := writeConfig(t, `
rate_limit:
  use_redis: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for redis without addr")
	}
}

func TestLoadRejectsBadBackoffFactor(t *testing.T) {
	path := writeConfig(t, `
retry:
  backoff_factor: 0.5
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for backoff_factor < 1")
	}
}

func TestEnvOverridesRedisOptIn(t *testing.T) {
	t.Setenv("EDGE_USE_REDIS", "true")
	t.Setenv("EDGE_REDIS_ADDR", "redis.internal:6379")

	path := writeConfig(t, "server:\n  addr: \":8080\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.RateLimit.UseRedis {
		t.Fatal("EDGE_USE_REDIS override ignored")
	}
	if cfg.RateLimit.Redis.Addr != "redis.internal:6379" {
		t.Fatalf("redis addr = %q", cfg.RateLimit.Redis.Addr)
	}
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":8443"
  trusted_proxies: ["10.0.0.0/8"]
  max_in_flight: 64
rate_limit:
  interval_ms: 1000
  max_requests: 10
  prefix: "edge:"
  enable_logging: true
circuit_breaker:
  failure_threshold: 2
  reset_timeout_ms: 1000
retry:
  max_retries: 2
  initial_backoff_ms: 100
  backoff_factor: 2
  timeout_ms: 500
  retryable_status_codes: [500]
embedder:
  url: "http://127.0.0.1:9400"
  max_rps: 50
  dimensions: 128
  fallback_zero_vector: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RateLimit.Prefix != "edge:" {
		t.Fatalf("prefix = %q", cfg.RateLimit.Prefix)
	}
	if cfg.Retry.Timeout() != 500*time.Millisecond {
		t.Fatalf("timeout = %v", cfg.Retry.Timeout())
	}
	if !cfg.Embedder.FallbackZeroVector || cfg.Embedder.Dimensions != 128 {
		t.Fatalf("embedder: %+v", cfg.Embedder)
	}
}
