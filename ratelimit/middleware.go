package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/Mister-Storm/slipnotify/observability"
)

// ClientKey identifies the caller for rate limiting purposes. Precedence:
// X-API-Key, then X-Client-Id, then the client IP.
func ClientKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return "api:" + key
	}
	if key := r.Header.Get("X-Client-Id"); key != "" {
		return "client:" + key
	}
	return "ip:" + clientIP(r)
}

// clientIP resolves the caller's address, preferring proxy headers so
// clients behind the ingress are not collapsed into one bucket.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// The first hop is the original client.
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware enforces the per-client limit on inbound requests. Rejected
// requests get 429 with Retry-After; allowed requests carry the remaining
// quota in X-RateLimit-Remaining.
func Middleware(limiter *Limiter, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := limiter.Allow(ClientKey(r))

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				if metrics != nil {
					metrics.RateLimitRejected.Inc()
				}
				retryAfter := int(d.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
