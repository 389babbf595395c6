package xrayapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xray-observability/xray/internal/ingest"
)

// dispatch routes a single decoded event to the store and reports the
// outcome. A non-nil error here always means "this event failed", not "the
// whole request failed", the ingest endpoint is always HTTP 200 once every
// event in the batch has decoded and passed schema validation.
func dispatch(ctx context.Context, store ingest.Store, logger *slog.Logger, event any) error {
	switch e := event.(type) {
	case ingest.RunStartEvent:
		return dispatchRunStart(ctx, store, logger, e)
	case ingest.RunEndEvent:
		return dispatchRunEnd(ctx, store, logger, e)
	case ingest.StepStartEvent:
		return dispatchStepStart(ctx, store, logger, e)
	case ingest.StepEndEvent:
		return dispatchStepEnd(ctx, store, logger, e)
	default:
		return fmt.Errorf("%w: %T", ingest.ErrUnknownEventType, event)
	}
}

func dispatchRunStart(ctx context.Context, store ingest.Store, logger *slog.Logger, e ingest.RunStartEvent) error {
	startedAt, err := parseTime(e.StartedAt)
	if err != nil {
		return fmt.Errorf("started_at: %w", err)
	}

	fields := ingest.CreateRunFields{
		ID:           e.ID,
		PipelineName: e.PipelineName,
		StartedAt:    startedAt,
		InputSummary: e.InputSummary,
		Metadata:     e.Metadata,
		RequestID:    e.RequestID,
		UserID:       e.UserID,
		Environment:  e.Environment,
	}

	if err := store.CreateRun(ctx, fields); err != nil {
		if errors.Is(err, ingest.ErrRunAlreadyExists) {
			return err
		}

		return fmt.Errorf("create run: %w", err)
	}

	attachPayloads(ctx, store, logger, e.ID, nil, "input", e.Payloads)

	return nil
}

func dispatchRunEnd(ctx context.Context, store ingest.Store, logger *slog.Logger, e ingest.RunEndEvent) error {
	endedAt, err := parseTime(e.EndedAt)
	if err != nil {
		return fmt.Errorf("ended_at: %w", err)
	}

	record, err := store.EndRun(ctx, e.ID, e.Status, endedAt, e.OutputSummary, e.ErrorMessage)
	if err != nil {
		if errors.Is(err, ingest.ErrRunNotFound) {
			return err
		}

		return fmt.Errorf("end run: %w", err)
	}

	attachPayloads(ctx, store, logger, record.ID, nil, "output", e.Payloads)

	return nil
}

func dispatchStepStart(ctx context.Context, store ingest.Store, logger *slog.Logger, e ingest.StepStartEvent) error {
	startedAt, err := parseTime(e.StartedAt)
	if err != nil {
		return fmt.Errorf("started_at: %w", err)
	}

	err = store.CreateStep(
		ctx, e.ID, e.RunID, e.StepName, e.StepType, e.Index, startedAt, e.InputSummary, e.InputCount, e.Metadata,
	)
	if err != nil {
		if errors.Is(err, ingest.ErrStepAlreadyExists) {
			return err
		}

		return fmt.Errorf("create step: %w", err)
	}

	attachPayloads(ctx, store, logger, e.RunID, &e.ID, "input", e.Payloads)

	return nil
}

func dispatchStepEnd(ctx context.Context, store ingest.Store, logger *slog.Logger, e ingest.StepEndEvent) error {
	endedAt, err := parseTime(e.EndedAt)
	if err != nil {
		return fmt.Errorf("ended_at: %w", err)
	}

	record, err := store.EndStep(
		ctx, e.ID, e.Status, endedAt, e.DurationMS, e.OutputSummary, e.OutputCount, e.Reasoning, e.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, ingest.ErrStepNotFound) {
			return err
		}

		return fmt.Errorf("end step: %w", err)
	}

	// record.RunID is the DB-verified run id, not the client-supplied e.RunID.
	attachPayloads(ctx, store, logger, record.RunID, &record.ID, "output", e.Payloads)

	return nil
}

// attachPayloads stores externalized payloads, if any. Storage failures here
// are logged and discarded, not propagated, payload capture is best-effort
// and must never fail the run/step event it belongs to.
func attachPayloads(
	ctx context.Context,
	store ingest.Store,
	logger *slog.Logger,
	runID string,
	stepID *string,
	phase string,
	payloads ingest.Payloads,
) {
	if len(payloads) == 0 {
		return
	}

	if err := store.CreatePayloads(ctx, runID, stepID, phase, payloads); err != nil {
		logger.Error("Failed to store payloads",
			slog.String("run_id", runID),
			slog.String("phase", phase),
			slog.String("error", err.Error()),
		)
	}
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}
