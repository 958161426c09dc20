package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit limits requests per tenant, or per client IP before
// authentication.
func RateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return limiter(requestLimit, windowLength, func(r *http.Request) string {
		if tenantID := GetTenantID(r.Context()); tenantID != "" {
			return "tenant:" + tenantID
		}
		return ""
	})
}

// UserRateLimit limits requests per authenticated user. It guards routes
// that call out to an LLM provider.
func UserRateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return limiter(requestLimit, windowLength, func(r *http.Request) string {
		if userID := GetUserID(r.Context()); userID != "" {
			return "user:" + userID
		}
		return ""
	})
}

// limiter keys requests by identity, falling back to the client IP when
// identity returns "".
func limiter(requestLimit int, windowLength time.Duration, identity func(*http.Request) string) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(max(1, int(windowLength.Seconds())))
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if key := identity(r); key != "" {
				return key, nil
			}
			ip, err := httprate.KeyByIP(r)
			return "ip:" + ip, err
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		}),
	)
}
