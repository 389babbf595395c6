package xrayapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xray-observability/xray/internal/ingest"
	"github.com/xray-observability/xray/internal/xrayapi/middleware"
)

// IngestResponse is the body returned by POST /ingest. Per spec.md's ingest
// contract this is always HTTP 200 once every event in the batch has passed
// schema validation; individual storage-level failures are reported
// per-result, never as a non-2xx status for the whole batch.
type IngestResponse struct {
	CorrelationID string         `json:"correlation_id"` //nolint: tagliatelle
	Processed     int            `json:"processed"`
	Succeeded     int            `json:"succeeded"`
	Failed        int            `json:"failed"`
	Results       []EventOutcome `json:"results"`
}

// EventOutcome reports the fate of a single event within a batch, per
// spec.md's {id, event_type, success, error?} result shape.
type EventOutcome struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"` //nolint: tagliatelle
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// handleIngest handles POST /ingest: a JSON array of run/step lifecycle
// events, processed sequentially with per-event error isolation.
//
// Response codes:
//   - 415 Unsupported Media Type: Content-Type must be application/json
//   - 413 Payload Too Large: body exceeds MaxRequestSize
//   - 422 Unprocessable Entity: body is not a well-formed JSON array, or any
//     event in it fails schema validation (unrecognized event_type, missing
//     required fields, malformed UUIDs, illegal enum values) — a schema
//     error fails the whole request, not just the offending event.
//   - 200 OK: otherwise, always, per-event storage failures (not-found,
//     already-exists) are reported in the body, never as a 4xx/5xx.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	correlationID := middleware.GetCorrelationID(r.Context())

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	if r.ContentLength > 0 && r.ContentLength > s.config.MaxRequestSize {
		WriteErrorResponse(w, r, s.logger, PayloadTooLarge("Request body exceeds maximum size"))

		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxRequestSize+1))
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("Failed to read request body"))

		return
	}

	raw, err := ingest.SplitBatch(body)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, UnprocessableEntity("Invalid event batch: "+err.Error()))

		return
	}

	events, schemaErr := s.decodeAndValidate(raw)
	if schemaErr != nil {
		WriteErrorResponse(w, r, s.logger, UnprocessableEntity(schemaErr.Error()))

		return
	}

	results := make([]EventOutcome, len(events))
	succeeded, failed := 0, 0

	for i, event := range events {
		outcome := s.dispatchEvent(r, event)
		results[i] = outcome

		if outcome.Success {
			succeeded++
		} else {
			failed++
		}
	}

	response := IngestResponse{
		CorrelationID: correlationID,
		Processed:     len(raw),
		Succeeded:     succeeded,
		Failed:        failed,
		Results:       results,
	}

	data, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("Failed to marshal ingest response",
			slog.String("correlation_id", correlationID), slog.String("error", err.Error()))
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write ingest response",
			slog.String("correlation_id", correlationID), slog.String("error", err.Error()))
	}

	s.logger.Info("Ingest batch processed",
		slog.String("correlation_id", correlationID),
		slog.Int("processed", len(raw)),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)),
	)
}

// decodeAndValidate decodes and schema-validates every event in the batch
// before any of them is dispatched to the store. A schema violation anywhere
// in the batch (unrecognized event_type, missing required field, malformed
// UUID, illegal enum value) fails the whole request with a single error,
// mirroring the discriminated-union validation a Pydantic model would have
// applied to the full list before a single handler ran.
func (s *Server) decodeAndValidate(raw []json.RawMessage) ([]any, error) {
	events := make([]any, len(raw))

	for i, rawEvent := range raw {
		event, err := ingest.Decode(rawEvent)
		if err != nil {
			return nil, fmt.Errorf("event at index %d: %w", i, err)
		}

		if err := s.validator.Validate(event); err != nil {
			return nil, fmt.Errorf("event at index %d (%s): %w", i, ingest.IDOf(event), err)
		}

		events[i] = event
	}

	return events, nil
}

// dispatchEvent stores a single already-validated event, reducing storage
// failures (not-found, already-exists) to an EventOutcome rather than
// propagating an error that would abort the rest of the batch.
func (s *Server) dispatchEvent(r *http.Request, event any) EventOutcome {
	id, eventType := ingest.IDOf(event), ingest.TypeOf(event)

	if err := dispatch(r.Context(), s.store, s.logger, event); err != nil {
		s.logger.Error("Failed to store event",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("event_id", id),
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)

		return EventOutcome{ID: id, EventType: eventType, Success: false, Error: err.Error()}
	}

	return EventOutcome{ID: id, EventType: eventType, Success: true}
}

// hasJSONContentType checks if Content-Type header starts with "application/json".
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "application/json")
}
