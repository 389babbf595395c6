package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryRateLimiterEnforcesGlobalLimit(t *testing.T) {
	rl := NewInMemoryRateLimiter(1)

	allowed := 0

	for range 5 {
		if rl.Allow() {
			allowed++
		}
	}

	assert.Less(t, allowed, 5, "burst of 5 requests against a 1 rps limiter must not all succeed")
	assert.GreaterOrEqual(t, allowed, 1)
}

func TestRateLimitMiddlewareReturns429WhenExhausted(t *testing.T) {
	rl := NewInMemoryRateLimiter(1)
	handler := RateLimit(rl, testLogger())(okHandler())

	var lastCode int

	for range 4 {
		req := httptest.NewRequest(http.MethodPost, "/ingest", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		lastCode = rr.Code
	}

	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}
