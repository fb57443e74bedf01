package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/gren-lang/package-registry/internal/telemetry"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, float64, error)
}

// Middleware rejects requests with 429 once the client's bucket is empty.
// Buckets are keyed by client IP; run chi's RealIP middleware first when the
// service sits behind a proxy. A nil limiter lets everything through.
func Middleware(limiter Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, _, err := limiter.Allow(r.Context(), "rl:ip:"+clientIP(r))
			if err != nil {
				log.Error("rate limit check failed", "err", err)
				http.Error(w, "rate limit error", http.StatusInternalServerError)
				return
			}
			if !allowed {
				telemetry.RateLimitRejects.Inc()
				http.Error(w, "rate limited", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
