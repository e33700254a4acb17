package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/iliyamo/recipe-box/internal/config"
	"github.com/iliyamo/recipe-box/internal/logging"
)

// tokenBucketScript refills the bucket at KEYS[1] in whole intervals and
// takes one token. ARGV: now_ms, capacity, refill tokens, interval_ms,
// ttl_s. Returns {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local now, cap, step, every, ttl =
	tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local b = redis.call('HMGET', KEYS[1], 't', 'ts')
local left, since = tonumber(b[1]) or cap, tonumber(b[2]) or now

if every > 0 and step > 0 and now > since then
	local n = math.floor((now - since) / every)
	left = math.min(cap, left + n * step)
	since = since + n * every
end

local ok, wait = 0, 0
if left >= 1 then
	ok, left = 1, left - 1
else
	wait = math.max(0, since + every - now)
end

redis.call('HSET', KEYS[1], 't', left, 'ts', since)
redis.call('EXPIRE', KEYS[1], ttl)
return {ok, left, wait}
`)

// decision is the outcome of taking one token.
type decision struct {
	allowed   bool
	remaining int64
	retry     time.Duration
}

// NewTokenBucket limits requests per key (see buildRateKey). With a Redis
// client the bucket is shared by every replica; with rdb nil each process
// keeps its own buckets. A Redis error lets the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb redis.Scripter) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	var local *localLimiter
	if rdb == nil {
		local = newLocalLimiter(cfg)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			now := time.Now()
			log := logging.FromContext(c.Request().Context())

			var d decision
			if local != nil {
				d = local.take(key, now)
			} else {
				var err error
				d, err = takeRedis(c, rdb, cfg, key, now)
				if err != nil {
					log.Warn("rate limit check failed, allowing request", "key", key, "error", err)
					return next(c)
				}
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))

			if !d.allowed {
				secs := max(int(math.Ceil(d.retry.Seconds())), 1)
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				log.Warn("rate limit exceeded", "key", key, "retry_after", secs)
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}

			if cfg.Debug {
				c.Response().Header().Set("X-RateLimit-Key", key)
			}
			return next(c)
		}
	}
}

func takeRedis(c echo.Context, rdb redis.Scripter, cfg config.RateLimitConfig, key string, now time.Time) (decision, error) {
	args := []any{
		now.UnixMilli(),
		cfg.Capacity,
		cfg.RefillTokens,
		cfg.RefillInterval.Milliseconds(),
		int64(cfg.TTL / time.Second),
	}
	vals, err := tokenBucketScript.Run(c.Request().Context(), rdb, []string{key}, args...).Result()
	if err != nil {
		return decision{}, err
	}
	arr, ok := vals.([]any)
	if !ok || len(arr) != 3 {
		return decision{}, fmt.Errorf("unexpected script result %#v", vals)
	}
	return decision{
		allowed:   asInt64(arr[0]) == 1,
		remaining: asInt64(arr[1]),
		retry:     time.Duration(asInt64(arr[2])) * time.Millisecond,
	}, nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// localLimiter is the in-process fallback: one rate.Limiter per key,
// idle limiters dropped every few minutes.
type localLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	limit       rate.Limit
	burst       int
	idle        time.Duration
	lastCleanup time.Time
}

func newLocalLimiter(cfg config.RateLimitConfig) *localLimiter {
	return &localLimiter{
		limiters:    make(map[string]*rate.Limiter),
		limit:       rate.Limit(cfg.PerSecond()),
		burst:       cfg.Capacity,
		idle:        cfg.TTL,
		lastCleanup: time.Now(),
	}
}

func (l *localLimiter) take(key string, now time.Time) decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeCleanup(now)
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}

	if lim.AllowN(now, 1) {
		return decision{allowed: true, remaining: int64(lim.TokensAt(now))}
	}
	r := lim.ReserveN(now, 1)
	retry := r.DelayFrom(now)
	r.CancelAt(now)
	return decision{retry: retry}
}

// maybeCleanup drops limiters whose bucket is full again, i.e. keys that
// have been idle. Callers hold l.mu.
func (l *localLimiter) maybeCleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < l.idle {
		return
	}
	l.lastCleanup = now
	for k, lim := range l.limiters {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, k)
		}
	}
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts := []string{cfg.Prefix}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.Request().Method + " " + c.Path()

	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", currentUserID(c), "route", route)
	}
	return strings.Join(parts, ":")
}
