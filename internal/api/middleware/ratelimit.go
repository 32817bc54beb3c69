package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/hyroxreport/internal/api/response"
	"github.com/kiranshivaraju/hyroxreport/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	window                   = time.Minute
)

// RateLimit counts requests per API key in fixed one-minute windows aligned
// to the wall clock. Each window has its own counter key, so a busy key
// cannot keep extending a window's expiry.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
	now            func() time.Time
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin, now: time.Now}
}

// WindowKey is the counter key of the window containing t.
func WindowKey(keyPrefix string, t time.Time) string {
	return fmt.Sprintf("%s:%d", cache.RateLimitKey(keyPrefix), t.Truncate(window).Unix())
}

// Limit applies rate limiting based on the key_prefix set by auth middleware.
// Cache failures let the request through.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix, ok := getKeyPrefix(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now()
		end := now.Truncate(window).Add(window)
		count, err := rl.cache.IncrWithExpiry(r.Context(), WindowKey(prefix, now), end.Sub(now)+time.Second)
		if err != nil {
			slog.Warn("rate limit check failed", "key_prefix", prefix, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(rl.requestsPerMin-int(count), 0)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(end.Unix(), 10))

		if count > int64(rl.requestsPerMin) {
			retry := int(end.Sub(now).Round(time.Second) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
