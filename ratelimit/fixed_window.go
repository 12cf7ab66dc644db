package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// FixedWindow counts requests per key in Redis, so every instance of the
// gallery shares the same quota
type FixedWindow struct {
	limit  int
	window time.Duration
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewFixedWindow(client *redis.Client, prefix string, limit int, window time.Duration, logger *slog.Logger) (*FixedWindow, error) {
	if client == nil {
		return nil, errors.New("rate limiter requires a redis client")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "gallery:ratelimit"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FixedWindow{
		limit:  limit,
		window: window,
		client: client,
		prefix: prefix,
		logger: logger.With("component", "ratelimit"),
	}, nil
}

// NewRedisFixedWindow connects to addr and builds the limiter
func NewRedisFixedWindow(addr, password, prefix string, limit int, window time.Duration, logger *slog.Logger) (*FixedWindow, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	return NewFixedWindow(redis.NewClient(&redis.Options{Addr: addr, Password: password}), prefix, limit, window, logger)
}

// Allow reports whether key is still within its quota.
// Redis failures deny the request.
func (l *FixedWindow) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	slot := time.Now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64()
	if err != nil {
		l.logger.WarnContext(ctx, "rate limit check failed", "key", key, "error", err)
		return false
	}
	return count <= int64(l.limit)
}

func (l *FixedWindow) Close() error {
	return l.client.Close()
}
