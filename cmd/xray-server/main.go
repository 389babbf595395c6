// Package main provides the X-Ray decision-reasoning ingest service.
//
// This service exposes the HTTP ingest endpoint that plugin clients ship
// run and step lifecycle events to, and persists them for later retrieval
// through the X-Ray query surface.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/xray-observability/xray/internal/xrayapi"
	"github.com/xray-observability/xray/internal/xrayapi/middleware"
	"github.com/xray-observability/xray/internal/xraystore"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "xray-server"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := xrayapi.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting X-Ray ingest service",
		slog.String("service", name),
		slog.String("version", version),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	storeConfig := xraystore.LoadConfig()
	if err := storeConfig.Validate(); err != nil {
		logger.Error("Invalid store configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Connecting to database", slog.String("database_url", storeConfig.MaskDatabaseURL()))

	conn, err := xraystore.NewConnection(storeConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store := xraystore.NewPostgresStore(conn, logger)

	var rateLimiter middleware.RateLimiter
	if serverConfig.RateLimitRPS > 0 {
		rateLimiter = middleware.NewInMemoryRateLimiter(serverConfig.RateLimitRPS)
	}

	server := xrayapi.NewServer(&serverConfig, store, rateLimiter)

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("X-Ray ingest service stopped")
}
