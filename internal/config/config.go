package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Breaker   BreakerConfig   `yaml:"circuit_breaker"`
	Retry     RetryConfig     `yaml:"retry"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
}

type ServerConfig struct {
	Addr                     string   `yaml:"addr"`
	TrustedProxies           []string `yaml:"trusted_proxies"`
	MaxBodyBytes             int64    `yaml:"max_body_bytes"`
	MaxInFlight              int      `yaml:"max_in_flight"`
	ReadTimeoutSeconds       int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds      int      `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds       int      `yaml:"idle_timeout_seconds"`
	ReadHeaderTimeoutSeconds int      `yaml:"read_header_timeout_seconds"`
}

type RateLimitConfig struct {
	IntervalMS    int    `yaml:"interval_ms"`
	MaxRequests   int    `yaml:"max_requests"`
	Prefix        string `yaml:"prefix"`
	EnableLogging bool   `yaml:"enable_logging"`

	// UseRedis opts into the shared Redis counter store. Overridable
	// with EDGE_USE_REDIS for per-deployment opt-in.
	UseRedis bool        `yaml:"use_redis"`
	Redis    RedisConfig `yaml:"redis"`

	MemoryCleanupSeconds int `yaml:"memory_cleanup_seconds"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	ResetTimeoutMS   int `yaml:"reset_timeout_ms"`
}

type RetryConfig struct {
	MaxRetries           int     `yaml:"max_retries"`
	InitialBackoffMS     int     `yaml:"initial_backoff_ms"`
	BackoffFactor        float64 `yaml:"backoff_factor"`
	TimeoutMS            int     `yaml:"timeout_ms"`
	RetryableStatusCodes []int   `yaml:"retryable_status_codes"`
}

type EmbedderConfig struct {
	URL string `yaml:"url"`
	// MaxRPS paces outbound calls to the sidecar; zero disables pacing.
	MaxRPS float64 `yaml:"max_rps"`
	Burst  int     `yaml:"burst"`
	// Dimensions is the embedding vector width, needed to shape the
	// zero-vector fallback.
	Dimensions int `yaml:"dimensions"`
	// FallbackZeroVector serves zero vectors instead of an error while
	// the sidecar's breaker is open.
	FallbackZeroVector bool `yaml:"fallback_zero_vector"`
}

func (c RateLimitConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

func (c BreakerConfig) ResetTimeout() time.Duration {
	return time.Duration(c.ResetTimeoutMS) * time.Millisecond
}

func (c RetryConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMS) * time.Millisecond
}

func (c RetryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20 // 1 MiB
	}
	if cfg.Server.ReadHeaderTimeoutSeconds == 0 {
		cfg.Server.ReadHeaderTimeoutSeconds = 5
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 60
	}
	if cfg.Server.IdleTimeoutSeconds == 0 {
		cfg.Server.IdleTimeoutSeconds = 60
	}

	if cfg.RateLimit.IntervalMS == 0 {
		cfg.RateLimit.IntervalMS = 60000
	}
	if cfg.RateLimit.MaxRequests == 0 {
		cfg.RateLimit.MaxRequests = 100
	}
	if cfg.RateLimit.MemoryCleanupSeconds == 0 {
		cfg.RateLimit.MemoryCleanupSeconds = 60
	}

	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.ResetTimeoutMS == 0 {
		cfg.Breaker.ResetTimeoutMS = 30000
	}

	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.InitialBackoffMS == 0 {
		cfg.Retry.InitialBackoffMS = 250
	}
	if cfg.Retry.BackoffFactor == 0 {
		cfg.Retry.BackoffFactor = 2
	}
	if cfg.Retry.TimeoutMS == 0 {
		cfg.Retry.TimeoutMS = 10000
	}
	if len(cfg.Retry.RetryableStatusCodes) == 0 {
		cfg.Retry.RetryableStatusCodes = []int{408, 429, 500, 502, 503, 504}
	}

	if cfg.Embedder.Dimensions == 0 {
		cfg.Embedder.Dimensions = 384
	}
	if cfg.Embedder.Burst == 0 {
		cfg.Embedder.Burst = 4
	}
}

func applyEnv(cfg *Config) {
	cfg.RateLimit.UseRedis = Bool("EDGE_USE_REDIS", cfg.RateLimit.UseRedis)
	cfg.RateLimit.Redis.Addr = String("EDGE_REDIS_ADDR", cfg.RateLimit.Redis.Addr)
	cfg.RateLimit.Redis.Password = String("EDGE_REDIS_PASSWORD", cfg.RateLimit.Redis.Password)
}

func Validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if cfg.RateLimit.IntervalMS <= 0 {
		return fmt.Errorf("rate_limit.interval_ms must be > 0")
	}
	if cfg.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate_limit.max_requests must be > 0")
	}
	if cfg.RateLimit.UseRedis && strings.TrimSpace(cfg.RateLimit.Redis.Addr) == "" {
		return fmt.Errorf("rate_limit.redis.addr is required when use_redis is set")
	}

	if cfg.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be > 0")
	}
	if cfg.Breaker.ResetTimeoutMS <= 0 {
		return fmt.Errorf("circuit_breaker.reset_timeout_ms must be > 0")
	}

	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries cannot be negative")
	}
	if cfg.Retry.BackoffFactor < 1 {
		return fmt.Errorf("retry.backoff_factor must be >= 1")
	}
	if cfg.Retry.TimeoutMS <= 0 {
		return fmt.Errorf("retry.timeout_ms must be > 0")
	}

	if cfg.Embedder.URL != "" {
		if _, err := url.Parse(cfg.Embedder.URL); err != nil {
			return fmt.Errorf("embedder.url invalid: %v", err)
		}
	}
	if cfg.Embedder.MaxRPS < 0 {
		return fmt.Errorf("embedder.max_rps cannot be negative")
	}
	return nil
}
