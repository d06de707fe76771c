package infra

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to the shared Redis instance used for cross-process
// counters (rate limiting). Returns nil when REDIS_URL is unset so callers can
// fall back to single-process behavior.
func NewRedisClient(cfg *Config) (*redis.Client, error) {
	if cfg == nil || cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
