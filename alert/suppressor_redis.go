package alert

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSuppressor shares the debounce window across processes through a
// Redis SET NX with TTL. Deploying it closes the one-alert-per-process gap
// of the in-memory suppressor.
type RedisSuppressor struct {
	client *redis.Client
	window time.Duration
	prefix string
	logger *zap.SugaredLogger
}

// NewRedisSuppressor creates a Redis-backed suppressor.
func NewRedisSuppressor(client *redis.Client, window time.Duration, logger *zap.SugaredLogger) *RedisSuppressor {
	return &RedisSuppressor{
		client: client,
		window: window,
		prefix: "logwarden:suppress:",
		logger: logger,
	}
}

// Allow performs an atomic check-and-set: the first caller within the window
// wins. A Redis failure fails open (alerting availability over dedup
// precision) and reports the error so the caller can log it.
func (s *RedisSuppressor) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, time.Now().UnixMilli(), s.window).Result()
	if err != nil {
		s.logger.Warnw("Suppression check against Redis failed, allowing alert", "key", key, "error", err)
		return true, err
	}
	return ok, nil
}

// Ping verifies connectivity at startup.
func (s *RedisSuppressor) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
