package xraystore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver, registered via side effect
)

const (
	postgresDriver = "postgres"
	pingTimeout    = 5 * time.Second
)

// Connection wraps a pooled *sql.DB.
type Connection struct {
	*sql.DB
}

// NewConnection opens and pings a PostgreSQL connection pool per cfg.
func NewConnection(cfg *Config) (*Connection, error) {
	db, err := sql.Open(postgresDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("xraystore: open connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("xraystore: ping database: %w", err)
	}

	return &Connection{db}, nil
}

// HealthCheck pings the database with a bounded timeout.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if ctx == nil {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
	}

	return c.PingContext(ctx)
}

// Close closes the underlying connection pool. Safe to call more than once.
func (c *Connection) Close() error {
	return c.DB.Close()
}
