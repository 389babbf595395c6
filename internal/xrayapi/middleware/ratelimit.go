package middleware

import (
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
)

const burstCapacityMultiplier = 2

type (
	// RateLimiter decides whether an incoming request should be allowed.
	RateLimiter interface {
		// Allow returns true if the request should be allowed, false if it
		// should be rejected with 429 Too Many Requests.
		Allow() bool
	}

	// InMemoryRateLimiter implements RateLimiter with a single global token
	// bucket: X-Ray's ingest endpoint has no per-plugin identity to key on,
	// only a single shared bearer token, so global throughput is the only
	// dimension worth limiting.
	InMemoryRateLimiter struct {
		limiter *rate.Limiter
	}
)

// NewInMemoryRateLimiter creates a rate limiter allowing up to rps requests
// per second, with burst capacity of 2×rps.
func NewInMemoryRateLimiter(rps int) *InMemoryRateLimiter {
	return &InMemoryRateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), rps*burstCapacityMultiplier),
	}
}

// Allow implements RateLimiter.
func (rl *InMemoryRateLimiter) Allow() bool {
	return rl.limiter.Allow()
}

// RateLimit returns a middleware that enforces limiter on incoming requests,
// responding 429 with an RFC 7807 body when the limit is exceeded.
func RateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				correlationID := GetCorrelationID(r.Context())
				detail := "Rate limit exceeded. Please retry after some time."

				if err := writeRFC7807Error(w, r, http.StatusTooManyRequests, detail, correlationID); err != nil {
					logger.Error("failed to write rate limit response",
						slog.String("correlation_id", correlationID),
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)

					http.Error(w, detail, http.StatusTooManyRequests)
				}

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
