package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore counts requests per key inside a rolling window. The Redis
// implementation shares the count across API replicas; the in-memory one is a
// single-process fallback for environments without Redis.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type redisCounter struct {
	client *redis.Client
}

// NewRedisCounter returns a CounterStore backed by Redis INCR with a
// window-scoped TTL.
func NewRedisCounter(client *redis.Client) CounterStore {
	return &redisCounter{client: client}
}

func (c *redisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

type memoryCounter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	count   int64
	resetAt time.Time
}

// NewMemoryCounter returns a process-local CounterStore.
func NewMemoryCounter() CounterStore {
	return &memoryCounter{buckets: make(map[string]*bucket)}
}

func (c *memoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buckets[key]
	if !ok || now.After(b.resetAt) {
		b = &bucket{resetAt: now.Add(window)}
		c.buckets[key] = b
	}
	b.count++
	return b.count, nil
}

// RateLimit caps requests per window. Authenticated requests are keyed by
// user id so one tenant cannot starve others behind a shared proxy;
// unauthenticated ones fall back to the client IP. Counter errors fail open:
// a Redis outage must not take the API down with it.
func RateLimit(limit int, window time.Duration, store CounterStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ratelimit:"
			if uid := UserIDFromContext(r.Context()); uid != "" {
				key += "user:" + uid
			} else {
				key += "ip:" + ClientIP(r)
			}
			n, err := store.Incr(r.Context(), key, window)
			if err == nil && n > int64(limit) {
				w.Header().Set("Retry-After", window.String())
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
