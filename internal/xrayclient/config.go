package xrayclient

import (
	"errors"
	"time"

	"github.com/xray-observability/xray/internal/config"
	"github.com/xray-observability/xray/internal/xraytypes"
)

const (
	defaultBufferSize    = 1000
	defaultFlushInterval = 5 * time.Second
	defaultBatchSize     = 100
	defaultHTTPTimeout   = 30 * time.Second
)

// ErrBufferSizeNotPositive is returned when BufferSize is zero or negative.
var ErrBufferSizeNotPositive = errors.New("xrayclient: buffer size must be positive")

// ErrBatchSizeNotPositive is returned when BatchSize is zero or negative.
var ErrBatchSizeNotPositive = errors.New("xrayclient: batch size must be positive")

// Config holds client-side transport configuration. It is loaded from
// environment variables rather than a file, matching the rest of the
// server-side Load*Config conventions, since config-file loading and
// precedence are an external collaborator, not part of this system.
type Config struct {
	// BaseURL is the ingest server's address, e.g. "https://xray.internal".
	// Empty disables the HTTP shipper (useful when KafkaShipper is used instead).
	BaseURL string

	// APIKey is sent as a bearer token on every request, when non-empty.
	APIKey string

	// BufferSize bounds the in-memory event queue. Once full, Send drops
	// the event rather than blocking the caller.
	BufferSize int

	// FlushInterval is the longest a batch is held before being shipped,
	// even if BatchSize hasn't been reached.
	FlushInterval time.Duration

	// BatchSize is the most events shipped in a single request.
	BatchSize int

	// HTTPTimeout bounds a single batch POST.
	HTTPTimeout time.Duration

	// DefaultDetail controls how much of a payload is retained when a
	// caller doesn't specify a detail level explicitly.
	DefaultDetail xraytypes.DetailLevel
}

// LoadConfig reads client configuration from the environment, applying the
// same defaults as the reference SDK.
func LoadConfig() *Config {
	cfg := &Config{
		BaseURL:       config.GetEnvStr("XRAY_BASE_URL", ""),
		APIKey:        config.GetEnvStr("XRAY_API_KEY", ""),
		BufferSize:    config.GetEnvInt("XRAY_BUFFER_SIZE", defaultBufferSize),
		FlushInterval: config.GetEnvDuration("XRAY_FLUSH_INTERVAL", defaultFlushInterval),
		BatchSize:     config.GetEnvInt("XRAY_BATCH_SIZE", defaultBatchSize),
		HTTPTimeout:   config.GetEnvDuration("XRAY_HTTP_TIMEOUT", defaultHTTPTimeout),
		DefaultDetail: xraytypes.DetailLevel(config.GetEnvStr("XRAY_DEFAULT_DETAIL", string(xraytypes.DetailSummary))),
	}

	// Clamp batch size to buffer size: a batch can never need to hold more
	// events than the queue is able to hold at once.
	if cfg.BatchSize > cfg.BufferSize {
		cfg.BatchSize = cfg.BufferSize
	}

	return cfg
}

// Validate checks that cfg is safe to construct a Transport from.
func (c *Config) Validate() error {
	if c.BufferSize <= 0 {
		return ErrBufferSizeNotPositive
	}

	if c.BatchSize <= 0 {
		return ErrBatchSizeNotPositive
	}

	if !c.DefaultDetail.IsValid() {
		return xraytypes.ErrInvalidDetailLevel
	}

	return nil
}
