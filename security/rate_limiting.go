package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/redis/go-redis/v9"
)

const (
	rateLimitWindow  = time.Minute
	rateLimitTimeout = 500 * time.Millisecond
)

// RateLimiter counts requests per client IP in fixed one-minute windows
// kept in Redis, so every instance shares the same budget.
type RateLimiter struct {
	redis     redis.Cmdable
	perMinute int
	prefix    string
}

func NewRateLimiter(redisClient redis.Cmdable, perMinute int) *RateLimiter {
	return &RateLimiter{redis: redisClient, perMinute: perMinute, prefix: "ratelimit:gate"}
}

// GateRateLimit rejects a client over its per-minute budget with 429. A
// limiter that cannot reach Redis lets the request through; admission is
// still decided by the verification checks.
func (r *RateLimiter) GateRateLimit() echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return r.perMinute <= 0
		},
		Store: &redisStore{redis: r.redis, limit: r.perMinute, prefix: r.prefix},
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, map[string]any{
				"ok":      false,
				"reason":  "rate_limited",
				"message": "Unable to identify client",
			})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]any{
				"ok":      false,
				"reason":  "rate_limited",
				"message": "Too many requests",
			})
		},
	})
}

// redisStore implements middleware.RateLimiterStore with a fixed window
// counter. The window TTL is set with EXPIRE NX on every hit, so a counter
// whose first EXPIRE was lost still gets one on the next request.
type redisStore struct {
	redis  redis.Cmdable
	limit  int
	prefix string
}

func (s *redisStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rateLimitTimeout)
	defer cancel()

	key := fmt.Sprintf("%s:%s", s.prefix, identifier)

	var incr *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, rateLimitWindow)
		return nil
	})
	if err != nil {
		slog.Warn("Rate limiter unavailable", "ip", identifier, "error", err)
		return true, nil
	}
	return incr.Val() <= int64(s.limit), nil
}
