package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rate limit defaults.
const (
	DefaultRateLimitMax    = 20
	DefaultRateLimitWindow = time.Minute
)

// RateDecision is the outcome of one rate limit check.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (RateDecision, error)
}

func decide(count int64, limit int, ttl time.Duration) RateDecision {
	d := RateDecision{Allowed: count <= int64(limit), Limit: limit}
	if remaining := int64(limit) - count; remaining > 0 {
		d.Remaining = int(remaining)
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d
}

// MemoryRateLimiter is a fixed-window limiter local to one process.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string]*fixedWindow
	sweepAt time.Time
}

type fixedWindow struct {
	count   int64
	resetAt time.Time
}

// NewMemoryRateLimiter creates a limiter allowing limit requests per window.
func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimitMax
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	return &MemoryRateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: make(map[string]*fixedWindow),
	}
}

func (l *MemoryRateLimiter) Allow(_ context.Context, key string) (RateDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.After(l.sweepAt) {
		for k, w := range l.windows {
			if !now.Before(w.resetAt) {
				delete(l.windows, k)
			}
		}
		l.sweepAt = now.Add(l.window)
	}

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &fixedWindow{resetAt: now.Add(l.window)}
		l.windows[key] = w
	}
	w.count++
	return decide(w.count, l.limit, w.resetAt.Sub(now)), nil
}

// RedisRateLimiter is a fixed-window limiter shared by every replica using one Redis.
type RedisRateLimiter struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	prefix string
}

// NewRedisRateLimiter creates a limiter storing counters under prefix.
func NewRedisRateLimiter(client redis.Cmdable, limit int, window time.Duration) *RedisRateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimitMax
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	return &RedisRateLimiter{client: client, limit: limit, window: window, prefix: "sleepjournal:ratelimit:"}
}

// Allow increments the key's counter and starts its window on first use.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (RateDecision, error) {
	k := l.prefix + key
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return RateDecision{}, fmt.Errorf("rate limit counter failed: %w", err)
	}

	count := incr.Val()
	remaining := ttl.Val()
	// A negative TTL means the key has no expiry yet.
	if remaining < 0 {
		if err := l.client.PExpire(ctx, k, l.window).Err(); err != nil {
			return RateDecision{}, fmt.Errorf("rate limit expiry failed: %w", err)
		}
		remaining = l.window
	}
	if count == 1 {
		slog.Debug("RedisRateLimiter.Allow: window started", "window", l.window)
	}
	return decide(count, l.limit, remaining), nil
}
