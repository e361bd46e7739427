package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/logger"
	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig config for the per-user fixed-window limiter.
type RateLimitConfig struct {
	Redis          *redis.Client // nil: in-process counters only
	Limit          int           // requests per window; <= 0 disables the limiter
	KeyPrefix      string        // e.g. "rl:user:"
	Window         time.Duration // usually 1m
	RetryAfterHint bool          // set Retry-After header when limited

	now func() time.Time
}

// RateLimitMiddleware applies a fixed-window per-user limit. Counters live in
// Redis (INCR + EXPIRE); when Redis is absent or failing, an in-process map takes
// over, which only bounds a single instance.
// It expects user_id in echo.Context (set by Auth).
func RateLimitMiddleware(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rl:user:"
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	local := newMemoryWindow()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := UserIDFromCtx(c)
			if !ok || cfg.Limit <= 0 {
				return next(c)
			}

			// fixed-window key: rl:user:{id}:{window_start_unix}
			now := cfg.now()
			window := now.Truncate(cfg.Window)
			key := cfg.KeyPrefix + userID + ":" + strconv.FormatInt(window.Unix(), 10)

			cnt, err := incrRedis(c.Request().Context(), cfg.Redis, key, cfg.Window)
			if err != nil {
				if cfg.Redis != nil {
					logger.Log.Warn("rate limit redis failed, using local counters", zap.Error(err))
				}
				cnt = local.incr(key, window)
			}

			if cnt > int64(cfg.Limit) {
				if cfg.RetryAfterHint {
					remain := window.Add(cfg.Window).Sub(now)
					secs := int((remain + time.Second - 1) / time.Second)
					if secs < 1 {
						secs = 1
					}
					c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				}
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
			}
			return next(c)
		}
	}
}

func incrRedis(ctx context.Context, rds *redis.Client, key string, window time.Duration) (int64, error) {
	if rds == nil {
		return 0, redis.Nil
	}
	// INCR and set expiry 2*window (safety)
	pipe := rds.Pipeline()
	cnt := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return cnt.Val(), nil
}

// memoryWindow keeps counters of the current window only; older keys are dropped
// when the window rolls over.
type memoryWindow struct {
	mu      sync.Mutex
	current time.Time
	counts  map[string]int64
}

func newMemoryWindow() *memoryWindow {
	return &memoryWindow{counts: map[string]int64{}}
}

func (m *memoryWindow) incr(key string, window time.Time) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if window.After(m.current) {
		m.current = window
		clear(m.counts)
	}
	m.counts[key]++
	return m.counts[key]
}
