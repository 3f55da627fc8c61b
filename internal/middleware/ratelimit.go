package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/drosic/taskman/internal/httpx"
)

// RateLimit enforces a fixed-window per-IP request budget with counters in
// Redis, so the limit holds across restarts. Redis trouble fails open; a
// degraded limiter must not take the API down with it.
func RateLimit(rdb *redis.Client, log *zap.Logger, max int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			key := "ratelimit:" + ip
			n, err := rdb.Incr(r.Context(), key).Result()
			if err != nil {
				log.Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if n == 1 {
				rdb.Expire(r.Context(), key, window)
			}
			if n > int64(max) {
				httpx.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
