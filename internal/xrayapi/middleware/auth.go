package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Authentication errors.
var (
	// ErrMissingToken is returned when no bearer token is present on the request.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken is returned when the supplied token does not match the
	// configured secret. Generic on purpose, avoids leaking which half of
	// the check failed.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// extractBearerToken reads the Authorization: Bearer header and returns the
// trimmed token, or ("", false) if absent or malformed.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" || strings.ContainsAny(token, "\r\n") {
		return "", false
	}

	return token, true
}

// Authenticate creates a middleware that checks requests against a single
// configured bearer token via constant-time comparison. This is intentionally
// simpler than a full multi-tenant API-key store: X-Ray clients ship one
// shared secret per deployment rather than per-plugin credentials.
func Authenticate(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, found := extractBearerToken(r)
			if !found {
				writeAuthError(w, r, logger, ErrMissingToken, http.StatusUnauthorized)

				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				writeAuthError(w, r, logger, ErrInvalidToken, http.StatusUnauthorized)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeAuthError writes an RFC 7807 compliant error response for authentication failures.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, status int) {
	correlationID := GetCorrelationID(r.Context())

	logger.Warn("Authentication failed",
		slog.String("reason", err.Error()),
		slog.String("correlation_id", correlationID),
		slog.String("endpoint", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
	)

	if encodeErr := writeRFC7807Error(w, r, status, err.Error(), correlationID); encodeErr != nil {
		logger.Error("Failed to encode authentication error response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.Any("encode_error", encodeErr),
		)
	}
}

// writeRFC7807Error writes an RFC 7807 compliant error response without
// importing the xrayapi package (would create an import cycle).
func writeRFC7807Error(w http.ResponseWriter, r *http.Request, statusCode int, detail, correlationID string) error {
	var title string

	switch statusCode {
	case http.StatusUnauthorized:
		title = "Unauthorized"
	case http.StatusForbidden:
		title = "Forbidden"
	case http.StatusTooManyRequests:
		title = "Too Many Requests"
	default:
		title = "Request Failed"
	}

	problem := map[string]any{
		"type":          fmt.Sprintf("https://xray.dev/problems/%d", statusCode),
		"title":         title,
		"status":        statusCode,
		"detail":        detail,
		"instance":      r.URL.Path,
		"correlationId": correlationID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(statusCode)

	return json.NewEncoder(w).Encode(problem)
}
