package xraystore

import (
	"errors"
	"strings"
	"time"

	"github.com/xray-observability/xray/internal/config"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
)

// ErrDatabaseURLEmpty is returned when no database URL is configured.
var ErrDatabaseURLEmpty = errors.New("xraystore: DATABASE_URL cannot be empty")

// Config holds PostgreSQL connection configuration, grounded on the
// teacher's internal/storage.Config: production-ready pool defaults loaded
// from the environment rather than a config file.
type Config struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfig reads store configuration from the environment.
func LoadConfig() *Config {
	return &Config{
		DatabaseURL:     config.GetEnvStr("XRAY_DATABASE_URL", ""),
		MaxOpenConns:    config.GetEnvInt("XRAY_DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("XRAY_DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("XRAY_DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("XRAY_DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
	}
}

// Validate checks that c is complete enough to open a connection from.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	return nil
}

// MaskDatabaseURL returns c.DatabaseURL with any password redacted, safe
// for logging.
func (c *Config) MaskDatabaseURL() string {
	return maskDatabaseURL(c.DatabaseURL)
}

func maskDatabaseURL(raw string) string {
	schemeEnd := strings.Index(raw, "://")
	if schemeEnd == -1 {
		return raw
	}

	afterScheme := raw[schemeEnd+3:]

	atIndex := strings.LastIndex(afterScheme, "@")
	if atIndex == -1 {
		return raw
	}

	userInfo := afterScheme[:atIndex]

	colonIndex := strings.Index(userInfo, ":")
	if colonIndex == -1 {
		return raw
	}

	user := userInfo[:colonIndex]

	return raw[:schemeEnd+3] + user + ":***@" + afterScheme[atIndex+1:]
}
