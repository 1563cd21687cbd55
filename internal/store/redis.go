package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The INCR, PTTL read and expiry renewal must happen in one atomic unit;
// running them as separate commands lets concurrent checks under-count.
// PTTL is read before EXPIRE so the caller sees the window that was in
// effect when the request arrived. Expiry is whole seconds, rounded up.
var incrRenewScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
redis.call("EXPIRE", KEYS[1], ARGV[1])
return {count, ttl}
`)

// Redis is a Counter shared across application instances.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (s *Redis) Incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	ttlSec := int64((ttl + time.Second - 1) / time.Second)
	if ttlSec < 1 {
		ttlSec = 1
	}

	res, err := incrRenewScript.Run(ctx, s.rdb, []string{key}, ttlSec).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis incr %q: %w", key, err)
	}
	arr, ok := res.([]any)
	if !ok || len(arr) != 2 {
		return 0, 0, fmt.Errorf("redis incr %q: unexpected reply %v", key, res)
	}

	count := toInt64(arr[0])
	prevMs := toInt64(arr[1])
	if prevMs < 0 {
		return count, -1, nil
	}
	return count, time.Duration(prevMs) * time.Millisecond, nil
}

func (s *Redis) Reset(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

func (s *Redis) Close() error { return s.rdb.Close() }

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
