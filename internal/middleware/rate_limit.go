package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	rateLimitPrefix = "rl:v1:"
	rateLimitWindow = time.Minute
)

// rateLimitIncr increments the window counter and sets its expiry in one
// step. A counter left without a TTL is given one on the next hit.
var rateLimitIncr = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("TTL", KEYS[1]) < 0 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RateLimit caps requests per device (or client IP when the body carries no
// device_id) within a fixed one minute window using Redis counters.
// It is a no-op without Redis and fails open on cache errors.
func RateLimit(cache *redis.Client, scope string, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			DeviceID string `json:"device_id"`
		}
		_ = c.BodyParser(&req)
		subject := strings.TrimSpace(req.DeviceID)
		if subject == "" {
			subject = c.IP()
		}

		key := rateLimitPrefix + scope + ":" + subject
		cnt, err := rateLimitIncr.Run(c.UserContext(), cache, []string{key}, int(rateLimitWindow/time.Second)).Int64()
		if err != nil {
			if logger != nil {
				logger.Warn("rate limit check failed", slog.String("scope", scope), slog.Any("error", err))
			}
			return c.Next()
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
