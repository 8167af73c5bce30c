package middleware

import (
    "fmt"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/facility-reservation/internal/config"
)

// NewTokenBucket returns a Redis-backed token-bucket rate limiter.
// The bucket is keyed by client IP, authenticated user and route so
// one noisy caller cannot starve the booking endpoints for everyone.
// When limiting is disabled or Redis is unavailable the middleware is
// a no-op.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc {
            return func(c echo.Context) error { return next(c) }
        }
    }

    limiterScript := redis.NewScript(`
        local key = KEYS[1]
        local now_ms = tonumber(ARGV[1])
        local capacity = tonumber(ARGV[2])
        local refill_tokens = tonumber(ARGV[3])
        local interval_ms = tonumber(ARGV[4])
        local ttl_seconds = tonumber(ARGV[5])

        local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
        local tokens = tonumber(state[1])
        local last_refill = tonumber(state[2])

        if tokens == nil or last_refill == nil then
            tokens = capacity
            last_refill = now_ms
        end

        if interval_ms > 0 and refill_tokens > 0 then
            local elapsed = math.max(0, now_ms - last_refill)
            local intervals = math.floor(elapsed / interval_ms)
            if intervals > 0 then
                tokens = math.min(capacity, tokens + (intervals * refill_tokens))
                last_refill = last_refill + (intervals * interval_ms)
            end
        end

        local allowed = 0
        local retry_after_ms = 0
        if tokens > 0 then
            allowed = 1
            tokens = tokens - 1
        else
            local deficit_intervals = math.ceil(1 / refill_tokens)
            retry_after_ms = (last_refill + (deficit_intervals * interval_ms)) - now_ms
            if retry_after_ms < 0 then retry_after_ms = interval_ms end
        end

        redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
        redis.call('EXPIRE', key, ttl_seconds)
        return {allowed, tokens, retry_after_ms}
    `)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            user := "anon"
            if v, ok := c.Get("user_id").(string); ok && v != "" {
                user = v
            } else if v, ok := c.Get("user_id").(float64); ok {
                user = strconv.FormatUint(uint64(v), 10)
            }
            key := fmt.Sprintf("%s:%s:%s:%s", cfg.Prefix, c.RealIP(), user, c.Path())

            now := time.Now().UnixMilli()
            res, err := limiterScript.Run(c.Request().Context(), rdb, []string{key},
                now, cfg.Capacity, cfg.RefillTokens, cfg.RefillInterval.Milliseconds(),
                int(cfg.TTL.Seconds()),
            ).Slice()
            if err != nil {
                // Redis trouble should not block traffic.
                return next(c)
            }
            allowed, _ := res[0].(int64)
            remaining, _ := res[1].(int64)
            retryMs, _ := res[2].(int64)

            c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
            if allowed != 1 {
                retryAfter := time.Duration(retryMs) * time.Millisecond
                c.Response().Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds()+1)))
                return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "rate limit exceeded"})
            }
            return next(c)
        }
    }
}
