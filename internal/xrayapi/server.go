package xrayapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xray-observability/xray/internal/ingest"
	"github.com/xray-observability/xray/internal/xrayapi/middleware"
)

// Server represents the X-Ray ingest HTTP API server.
type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	config      *ServerConfig
	startTime   time.Time
	store       ingest.Store
	rateLimiter middleware.RateLimiter
	validator   *ingest.Validator
}

// NewServer creates a new HTTP server instance with structured logging and
// middleware stack, grounded on the teacher's NewServer dependency-injection
// shape: configuration (what) is separated from dependencies (how).
//
//   - cfg: pure server configuration (ports, timeouts, CORS, auth token)
//   - store: ingest.Store implementation (REQUIRED, panics if nil)
//   - rateLimiter: optional rate limiter (nil disables rate limiting)
func NewServer(cfg *ServerConfig, store ingest.Store, rateLimiter middleware.RateLimiter) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if store == nil {
		logger.Error("ingest.Store is required - cannot start server without it")
		panic("xrayapi: store cannot be nil - this indicates a configuration error")
	}

	mux := http.NewServeMux()

	server := &Server{
		logger:      logger,
		config:      cfg,
		store:       store,
		rateLimiter: rateLimiter,
		validator:   ingest.NewValidator(),
	}

	server.setupRoutes(mux)

	if cfg.AuthToken != "" {
		logger.Info("Bearer-token authentication enabled")
	} else {
		logger.Warn("XRAY_AUTH_TOKEN not configured - ingest endpoint authentication disabled")
	}

	if rateLimiter != nil {
		logger.Info("Rate limiting middleware enabled")
	} else {
		logger.Warn("Rate limiting disabled")
	}

	// Auth and rate limiting apply only to /ingest (wired in setupRoutes) so
	// that /healthz and /readyz stay reachable for unauthenticated probes.
	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// Start starts the HTTP server and blocks until shutdown, handling graceful
// shutdown on SIGINT and SIGTERM.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting X-Ray ingest API server",
			slog.String("address", s.config.Address()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed to start",
				slog.String("address", s.config.Address()), slog.String("error", err.Error()))

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown", slog.Duration("shutdown_timeout", s.config.ShutdownTimeout))

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed", slog.String("error", err.Error()))

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.closeDependency("ingest store", s.store)

	s.logger.Info("Server shutdown completed successfully")

	return nil
}

func (s *Server) closeDependency(name string, dep any) {
	if dep == nil {
		return
	}

	closer, ok := dep.(io.Closer)
	if !ok {
		return
	}

	s.logger.Info("Closing " + name)

	if err := closer.Close(); err != nil {
		s.logger.Error("Failed to close "+name, slog.String("error", err.Error()))

		return
	}

	s.logger.Info(name + " closed successfully")
}
