package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-session/internal/config"
)

// gcraScript implements the generic cell rate algorithm.  KEYS[1] holds
// the theoretical arrival time (TAT) of the next request in ms.  It
// returns {allowed, remaining, retry_after_ms}.
var gcraScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])

local tat = tonumber(redis.call('GET', KEYS[1]) or now)
if tat < now then
	tat = now
end
local next_tat = tat + interval
local over = next_tat - now - interval * burst
if over > 0 then
	return {0, 0, over}
end
redis.call('SET', KEYS[1], next_tat, 'PX', next_tat - now)
return {1, math.floor((interval * burst - (next_tat - now)) / interval), 0}
`)

// NewTokenBucket limits each diner to cfg.Burst requests per route,
// refilled at one per cfg.Refill.  State lives in Redis so the limit
// holds across instances.  Without Redis, or when Redis fails, requests
// pass.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	interval := cfg.Refill.Milliseconds()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg.Prefix, c)
			res, err := gcraScript.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(), interval, cfg.Burst).Int64Slice()
			if err != nil || len(res) != 3 {
				logrus.WithError(err).WithField("key", key).Warn("ratelimit: check failed, letting request through")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
			if res[0] == 1 {
				return next(c)
			}
			secs := (res[2] + 999) / 1000
			h.Set("Retry-After", strconv.FormatInt(secs, 10))
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "rate_limited",
				"message":     "too many requests, slow down",
				"retry_after": secs,
			})
		}
	}
}

// rateKey identifies the bucket: authenticated diners by user ID so a
// change of network does not reset them, guests by client IP.  The
// route pattern keeps joining and leaving in separate buckets.
func rateKey(prefix string, c echo.Context) string {
	who := "ip:" + c.RealIP()
	if id, ok := UserID(c); ok {
		who = "user:" + strconv.FormatUint(id, 10)
	}
	return prefix + ":" + who + ":" + c.Request().Method + " " + c.Path()
}
