package ingest

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/xray-observability/xray/internal/xraytypes"
)

// Sentinel validation errors, checked with errors.Is by callers that need
// to distinguish failure reasons (e.g. for metrics), and wrapped with
// event-specific detail for the outcome returned to the client.
var (
	ErrMissingID        = errors.New("ingest: missing id")
	ErrInvalidID        = errors.New("ingest: id is not a valid UUID")
	ErrMissingRunID     = errors.New("ingest: missing run_id")
	ErrInvalidRunID     = errors.New("ingest: run_id is not a valid UUID")
	ErrMissingName      = errors.New("ingest: missing pipeline_name or step_name")
	ErrMissingStartedAt = errors.New("ingest: missing started_at")
	ErrMissingEndedAt   = errors.New("ingest: missing ended_at")
	ErrNegativeDuration = errors.New("ingest: duration_ms is negative")
	ErrInvalidStatus    = errors.New("ingest: invalid status")
	ErrMissingStepType  = errors.New("ingest: missing step_type")
	ErrInvalidStepType  = errors.New("ingest: invalid step_type")
)

// Validator checks a decoded event for the required-field and enum
// invariants the store relies on before it ever opens a transaction.
// It is stateless and safe for concurrent use, matching
// internal/ingestion's Validator.
type Validator struct{}

// NewValidator constructs a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate dispatches to the type-specific validation method for event.
func (v *Validator) Validate(event any) error {
	switch e := event.(type) {
	case RunStartEvent:
		return v.validateRunStart(e)
	case RunEndEvent:
		return v.validateRunEnd(e)
	case StepStartEvent:
		return v.validateStepStart(e)
	case StepEndEvent:
		return v.validateStepEnd(e)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEventType, event)
	}
}

func (v *Validator) validateRunStart(e RunStartEvent) error {
	if e.ID == "" {
		return ErrMissingID
	}

	if _, err := uuid.Parse(e.ID); err != nil {
		return ErrInvalidID
	}

	if e.PipelineName == "" {
		return ErrMissingName
	}

	if e.StartedAt == "" {
		return ErrMissingStartedAt
	}

	return nil
}

func (v *Validator) validateRunEnd(e RunEndEvent) error {
	if e.ID == "" {
		return ErrMissingID
	}

	if _, err := uuid.Parse(e.ID); err != nil {
		return ErrInvalidID
	}

	if e.EndedAt == "" {
		return ErrMissingEndedAt
	}

	if _, err := xraytypes.ParseRunStatus(e.Status); err != nil {
		return ErrInvalidStatus
	}

	return nil
}

func (v *Validator) validateStepStart(e StepStartEvent) error {
	if e.ID == "" {
		return ErrMissingID
	}

	if _, err := uuid.Parse(e.ID); err != nil {
		return ErrInvalidID
	}

	if e.RunID == "" {
		return ErrMissingRunID
	}

	if _, err := uuid.Parse(e.RunID); err != nil {
		return ErrInvalidRunID
	}

	if e.StepName == "" {
		return ErrMissingName
	}

	if e.StepType == "" {
		return ErrMissingStepType
	}

	if _, err := xraytypes.ParseStepType(e.StepType); err != nil {
		return ErrInvalidStepType
	}

	if e.StartedAt == "" {
		return ErrMissingStartedAt
	}

	return nil
}

func (v *Validator) validateStepEnd(e StepEndEvent) error {
	if e.ID == "" {
		return ErrMissingID
	}

	if _, err := uuid.Parse(e.ID); err != nil {
		return ErrInvalidID
	}

	if e.RunID == "" {
		return ErrMissingRunID
	}

	if _, err := uuid.Parse(e.RunID); err != nil {
		return ErrInvalidRunID
	}

	if e.EndedAt == "" {
		return ErrMissingEndedAt
	}

	if e.DurationMS != nil && *e.DurationMS < 0 {
		return ErrNegativeDuration
	}

	if _, err := xraytypes.ParseStepStatus(e.Status); err != nil {
		return ErrInvalidStatus
	}

	return nil
}
