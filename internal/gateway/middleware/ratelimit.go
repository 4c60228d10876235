package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/httpx"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/metrics"
)

// RateLimit returns middleware that enforces per-tenant rate limits.
// It reads the KeyInfo from context (set by Auth middleware) and charges the
// key's tenant using the key's rate_limit, or defaultLimit when the key has
// none. Requests without a key are passed through (let Auth middleware
// reject them instead).
func RateLimit(limiter *ratelimit.Limiter, window time.Duration, defaultLimit int, m *metrics.Metrics) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(max(1, int(window.Seconds())))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			info := GetKeyInfo(r.Context())
			if info == nil {
				next.ServeHTTP(w, r)
				return
			}

			limit := info.RateLimit
			if limit <= 0 {
				limit = defaultLimit
			}
			if !limiter.Allow(info.TenantID, limit) {
				m.RateLimited()
				w.Header().Set("Retry-After", retryAfter)
				httpx.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
