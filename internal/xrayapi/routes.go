package xrayapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/xray-observability/xray/internal/xrayapi/middleware"
)

const healthCheckTimeout = 2 * time.Second

// setupRoutes registers all HTTP routes for the ingest API server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	ingestHandler := middleware.Apply(http.HandlerFunc(s.handleIngest),
		middleware.WithAuth(s.config.AuthToken, s.logger),
		middleware.WithRateLimit(s.rateLimiter, s.logger),
	)
	mux.Handle("POST /ingest", ingestHandler)

	mux.HandleFunc("/", s.handleNotFound)
}

// handleHealthz responds to liveness probes. It never touches the store -
// a process that can answer HTTP at all is alive.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz responds to readiness probes by checking the store is
// reachable, grounded on the teacher's handleReady / APIKeyStore.HealthCheck
// pattern.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		s.logger.Error("Store health check failed",
			slog.String("correlation_id", correlationID), slog.String("error", err.Error()))

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))

		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleNotFound returns an RFC 7807 compliant 404 for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}
