package handlers

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/urishop/api/internal/platform/httpx"
	"github.com/urishop/api/internal/platform/observability"
)

// RateLimiter decides whether the request identified by key fits its budget.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

type simpleRateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]rateEntry
}

type rateEntry struct {
	count int
	reset time.Time
}

// NewMemoryRateLimiter counts requests per key inside a fixed window on this instance only.
func NewMemoryRateLimiter(limit int, window time.Duration, clock func() time.Time) RateLimiter {
	return newSimpleRateLimiter(limit, window, clock)
}

func newSimpleRateLimiter(limit int, window time.Duration, clock func() time.Time) RateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &simpleRateLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]rateEntry),
	}
}

func (l *simpleRateLimiter) Allow(_ context.Context, key string) bool {
	if l == nil {
		return true
	}
	key = normaliseRateKey(key)
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || now.After(entry.reset) {
		l.store[key] = rateEntry{count: 1, reset: now.Add(l.window)}
		l.pruneExpiredLocked(now)
		return true
	}

	if entry.count >= l.limit {
		return false
	}
	entry.count++
	l.store[key] = entry
	return true
}

func (l *simpleRateLimiter) pruneExpiredLocked(now time.Time) {
	if len(l.store) == 0 {
		return
	}
	for key, entry := range l.store {
		if now.After(entry.reset) {
			delete(l.store, key)
		}
	}
}

const redisRateKeyPrefix = "ratelimit:"

// incrementWindowScript bumps the counter and arms the expiry on the first hit of a window.
var incrementWindowScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return current
`)

type redisRateLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	clock  func() time.Time
	logger observability.EventLogger
}

// NewRedisRateLimiter shares fixed-window counters across instances. Redis failures fail open.
func NewRedisRateLimiter(client redis.UniversalClient, limit int, window time.Duration, clock func() time.Time, logger observability.EventLogger) RateLimiter {
	if client == nil || limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &redisRateLimiter{client: client, limit: limit, window: window, clock: clock, logger: logger}
}

func (l *redisRateLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return true
	}
	bucket := l.clock().UTC().UnixMilli() / l.window.Milliseconds()
	redisKey := fmt.Sprintf("%s%s:%d", redisRateKeyPrefix, normaliseRateKey(key), bucket)
	count, err := incrementWindowScript.Run(ctx, l.client, []string{redisKey}, strconv.FormatInt(l.window.Milliseconds(), 10)).Int64()
	if err != nil {
		if l.logger != nil {
			l.logger(ctx, "rate_limit.redis_failed", map[string]any{"key": redisKey, "error": err.Error()})
		}
		return true
	}
	return count <= int64(l.limit)
}

func normaliseRateKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "anonymous"
	}
	return key
}

// rateLimitMiddleware rejects requests over the limiter's budget keyed by scope and client IP.
func rateLimitMiddleware(limiter RateLimiter, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + clientIP(r)
			if !limiter.Allow(r.Context(), key) {
				w.Header().Set("Retry-After", "60")
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests, retry later", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP relies on middleware.RealIP having rewritten RemoteAddr from proxy headers.
func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
