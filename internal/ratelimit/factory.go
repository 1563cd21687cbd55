package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/casaline/edge/internal/clock"
	"github.com/casaline/edge/internal/store"
)

// BackendConfig selects the counter store behind a limiter.
type BackendConfig struct {
	// UseRedis opts into the shared Redis store so multiple instances
	// enforce one limit. When false, counters live in process memory.
	UseRedis      bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// MemoryCleanupEvery controls how often expired in-process counters
	// are collected.
	MemoryCleanupEvery time.Duration
}

// NewStore builds the counter store for cfg. When Redis is requested but
// unreachable it falls back to the in-process store with a warning, so a
// Redis outage at startup cannot take the service down with it.
func NewStore(cfg BackendConfig, clk clock.Clock, log *slog.Logger) store.Counter {
	if !cfg.UseRedis {
		return store.NewMemory(clk, cfg.MemoryCleanupEvery)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable; falling back to in-process rate limit store",
			slog.String("addr", cfg.RedisAddr),
			slog.String("error", err.Error()),
		)
		_ = rdb.Close()
		return store.NewMemory(clk, cfg.MemoryCleanupEvery)
	}
	return store.NewRedis(rdb)
}
