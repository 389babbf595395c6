// Package xrayapi provides the HTTP ingest API server for X-Ray, grounded on
// the teacher's internal/api package: functional middleware chain, RFC 7807
// error responses, and environment-driven configuration.
package xrayapi

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xray-observability/xray/internal/config"
)

const (
	// DefaultPort is the default HTTP server port.
	DefaultPort = 8080
	// MaxPort is the maximum valid port number.
	MaxPort = 65535
	// DefaultHost is the default server host.
	DefaultHost = "0.0.0.0"
	// DefaultTimeout is the default timeout for HTTP operations.
	DefaultTimeout = 30 * time.Second
	// DefaultCORSMaxAge is the default CORS max age (24 hours).
	DefaultCORSMaxAge = 86400
	// DefaultMaxRequestSize is the default maximum ingest request body size (4 MiB).
	DefaultMaxRequestSize = 4 << 20
	// DefaultRateLimitRPS is the default global ingest rate limit. Zero disables rate limiting.
	DefaultRateLimitRPS = 0
)

// Static validation errors.
var (
	ErrInvalidPort            = errors.New("invalid port")
	ErrEmptyHost              = errors.New("host cannot be empty")
	ErrInvalidReadTimeout     = errors.New("read timeout must be positive")
	ErrInvalidWriteTimeout    = errors.New("write timeout must be positive")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
)

// ServerConfig holds HTTP server configuration for the ingest API.
type ServerConfig struct {
	Port               int
	Host               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	LogLevel           slog.Level
	MaxRequestSize     int64
	AuthToken          string
	RateLimitRPS       int
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	CORSMaxAge         int
}

// LoadServerConfig loads server configuration from environment variables with sensible defaults.
func LoadServerConfig() ServerConfig {
	return ServerConfig{
		Port:               config.GetEnvInt("XRAY_SERVER_PORT", DefaultPort),
		Host:               config.GetEnvStr("XRAY_SERVER_HOST", DefaultHost),
		ReadTimeout:        config.GetEnvDuration("XRAY_SERVER_READ_TIMEOUT", DefaultTimeout),
		WriteTimeout:       config.GetEnvDuration("XRAY_SERVER_WRITE_TIMEOUT", DefaultTimeout),
		ShutdownTimeout:    config.GetEnvDuration("XRAY_SERVER_SHUTDOWN_TIMEOUT", DefaultTimeout),
		LogLevel:           config.GetEnvLogLevel("XRAY_LOG_LEVEL", slog.LevelInfo),
		MaxRequestSize:     int64(config.GetEnvInt("XRAY_SERVER_MAX_REQUEST_SIZE", DefaultMaxRequestSize)),
		AuthToken:          config.GetEnvStr("XRAY_AUTH_TOKEN", ""),
		RateLimitRPS:       config.GetEnvInt("XRAY_RATE_LIMIT_RPS", DefaultRateLimitRPS),
		CORSAllowedOrigins: config.ParseCommaSeparatedList(config.GetEnvStr("XRAY_CORS_ALLOWED_ORIGINS", "*")),
		CORSAllowedMethods: config.ParseCommaSeparatedList(
			config.GetEnvStr("XRAY_CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
		),
		CORSAllowedHeaders: config.ParseCommaSeparatedList(
			config.GetEnvStr("XRAY_CORS_ALLOWED_HEADERS", "Content-Type,Authorization,X-Correlation-ID"),
		),
		CORSMaxAge: config.GetEnvInt("XRAY_CORS_MAX_AGE", DefaultCORSMaxAge),
	}
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ToCORSConfig converts ServerConfig CORS fields to a middleware.CORSConfig.
func (c ServerConfig) ToCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: c.CORSAllowedMethods,
		AllowedHeaders: c.CORSAllowedHeaders,
		MaxAge:         c.CORSMaxAge,
	}
}

// CORSConfig holds CORS configuration options.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// GetAllowedOrigins returns the allowed origins for CORS.
func (c CORSConfig) GetAllowedOrigins() []string { return c.AllowedOrigins }

// GetAllowedMethods returns the allowed methods for CORS.
func (c CORSConfig) GetAllowedMethods() []string { return c.AllowedMethods }

// GetAllowedHeaders returns the allowed headers for CORS.
func (c CORSConfig) GetAllowedHeaders() []string { return c.AllowedHeaders }

// GetMaxAge returns the max age for CORS preflight cache.
func (c CORSConfig) GetMaxAge() int { return c.MaxAge }

// Validate validates the server configuration.
func (c ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > MaxPort {
		return fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.Port, MaxPort)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidReadTimeout, c.ReadTimeout)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidWriteTimeout, c.WriteTimeout)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidShutdownTimeout, c.ShutdownTimeout)
	}

	return nil
}
