// Package ingest defines the wire schema for events shipped by
// internal/xrayclient and parses an inbound batch into one of four
// concrete event types via a two-pass JSON decode keyed on the event's
// event_type discriminator, the Go equivalent of the reference server's
// `match event.event_type` dispatch.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event type discriminator values.
const (
	EventRunStart  = "run_start"
	EventRunEnd    = "run_end"
	EventStepStart = "step_start"
	EventStepEnd   = "step_end"
)

// ErrUnknownEventType is returned when event_type doesn't name one of the
// four known event kinds.
var ErrUnknownEventType = errors.New("ingest: unknown event_type")

// Payloads is the wire representation of externalized payloads: a map from
// a client-assigned ref_id to an arbitrary JSON body. The wire field name
// carries a leading underscore (_payloads) to signal "out-of-band data";
// internally it's just called Payloads on each event struct.
type Payloads map[string]any

// RunStartEvent begins a Run.
type RunStartEvent struct {
	EventType    string         `json:"event_type"`
	ID           string         `json:"id"`
	PipelineName string         `json:"pipeline_name"`
	StartedAt    string         `json:"started_at"`
	InputSummary map[string]any `json:"input_summary"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	UserID       string         `json:"user_id,omitempty"`
	Environment  string         `json:"environment,omitempty"`
	Payloads     Payloads       `json:"_payloads,omitempty"`
}

// RunEndEvent terminates a previously started Run.
type RunEndEvent struct {
	EventType     string         `json:"event_type"`
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	EndedAt       string         `json:"ended_at"`
	OutputSummary map[string]any `json:"output_summary"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Payloads      Payloads       `json:"_payloads,omitempty"`
}

// StepStartEvent begins a Step within a Run.
type StepStartEvent struct {
	EventType    string         `json:"event_type"`
	ID           string         `json:"id"`
	RunID        string         `json:"run_id"`
	StepName     string         `json:"step_name"`
	StepType     string         `json:"step_type"`
	Index        int            `json:"index"`
	StartedAt    string         `json:"started_at"`
	InputSummary map[string]any `json:"input_summary"`
	InputCount   *int           `json:"input_count,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Payloads     Payloads       `json:"_payloads,omitempty"`
}

// StepEndEvent terminates a previously started Step.
type StepEndEvent struct {
	EventType     string         `json:"event_type"`
	ID            string         `json:"id"`
	RunID         string         `json:"run_id"`
	Status        string         `json:"status"`
	EndedAt       string         `json:"ended_at"`
	DurationMS    *int64         `json:"duration_ms,omitempty"`
	OutputSummary map[string]any `json:"output_summary"`
	OutputCount   *int           `json:"output_count,omitempty"`
	Reasoning     map[string]any `json:"reasoning,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Payloads      Payloads       `json:"_payloads,omitempty"`
}

// discriminator is the first-pass decode target: just enough to route the
// second pass to the right concrete type.
type discriminator struct {
	EventType string `json:"event_type"`
}

// SplitBatch decodes the top-level JSON array of an ingest request into its
// individual raw event objects. A failure here is a whole-request schema
// violation (the body isn't even a JSON array of objects) and should
// surface as HTTP 422, as does a failure to decode any one event inside
// the array.
func SplitBatch(body []byte) ([]json.RawMessage, error) {
	var raw []json.RawMessage

	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("ingest: decode batch: %w", err)
	}

	return raw, nil
}

// Decode parses one raw event object into its concrete typed event using
// event_type as the discriminator. An error here (including an unknown
// event_type) makes the ingest handler reject the whole batch with HTTP 422
// before any event is dispatched.
func Decode(raw json.RawMessage) (any, error) {
	var disc discriminator

	if err := json.Unmarshal(raw, &disc); err != nil {
		return nil, fmt.Errorf("ingest: decode event_type: %w", err)
	}

	switch disc.EventType {
	case EventRunStart:
		var event RunStartEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("ingest: decode run_start: %w", err)
		}

		return event, nil
	case EventRunEnd:
		var event RunEndEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("ingest: decode run_end: %w", err)
		}

		return event, nil
	case EventStepStart:
		var event StepStartEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("ingest: decode step_start: %w", err)
		}

		return event, nil
	case EventStepEnd:
		var event StepEndEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("ingest: decode step_end: %w", err)
		}

		return event, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, disc.EventType)
	}
}

// IDOf returns the event's own identifier, regardless of concrete type, for
// building per-event outcomes.
func IDOf(event any) string {
	switch e := event.(type) {
	case RunStartEvent:
		return e.ID
	case RunEndEvent:
		return e.ID
	case StepStartEvent:
		return e.ID
	case StepEndEvent:
		return e.ID
	default:
		return ""
	}
}

// TypeOf returns the event's event_type discriminator, regardless of
// concrete type.
func TypeOf(event any) string {
	switch e := event.(type) {
	case RunStartEvent:
		return e.EventType
	case RunEndEvent:
		return e.EventType
	case StepStartEvent:
		return e.EventType
	case StepEndEvent:
		return e.EventType
	default:
		return ""
	}
}
