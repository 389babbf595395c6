package xrayapi

import (
	"context"
	"time"

	"github.com/xray-observability/xray/internal/ingest"
)

// mockStore is a mock implementation of ingest.Store for testing: a
// function-field-per-method stub that defaults to a harmless zero value
// when unset.
type mockStore struct {
	CreateRunFunc      func(ctx context.Context, fields ingest.CreateRunFields) error
	EndRunFunc         func(ctx context.Context, id, status string, endedAt time.Time, outputSummary map[string]any, errMsg string) (*ingest.RunRecord, error)
	CreateStepFunc     func(ctx context.Context, id, runID, stepName, stepType string, index int, startedAt time.Time, inputSummary map[string]any, inputCount *int, metadata map[string]any) error
	EndStepFunc        func(ctx context.Context, id, status string, endedAt time.Time, durationMS *int64, outputSummary map[string]any, outputCount *int, reasoning map[string]any, errMsg string) (*ingest.StepRecord, error)
	CreatePayloadsFunc func(ctx context.Context, runID string, stepID *string, phase string, payloads ingest.Payloads) error
	HealthCheckFunc    func(ctx context.Context) error
}

var _ ingest.Store = (*mockStore)(nil)

func (m *mockStore) CreateRun(ctx context.Context, fields ingest.CreateRunFields) error {
	if m.CreateRunFunc != nil {
		return m.CreateRunFunc(ctx, fields)
	}

	return nil
}

func (m *mockStore) EndRun(
	ctx context.Context, id, status string, endedAt time.Time,
	outputSummary map[string]any, errMsg string,
) (*ingest.RunRecord, error) {
	if m.EndRunFunc != nil {
		return m.EndRunFunc(ctx, id, status, endedAt, outputSummary, errMsg)
	}

	return &ingest.RunRecord{ID: id, Status: status}, nil
}

func (m *mockStore) CreateStep(
	ctx context.Context, id, runID, stepName, stepType string, index int, startedAt time.Time,
	inputSummary map[string]any, inputCount *int, metadata map[string]any,
) error {
	if m.CreateStepFunc != nil {
		return m.CreateStepFunc(ctx, id, runID, stepName, stepType, index, startedAt, inputSummary, inputCount, metadata)
	}

	return nil
}

func (m *mockStore) EndStep(
	ctx context.Context, id, status string, endedAt time.Time, durationMS *int64,
	outputSummary map[string]any, outputCount *int, reasoning map[string]any, errMsg string,
) (*ingest.StepRecord, error) {
	if m.EndStepFunc != nil {
		return m.EndStepFunc(ctx, id, status, endedAt, durationMS, outputSummary, outputCount, reasoning, errMsg)
	}

	return &ingest.StepRecord{ID: id, Status: status}, nil
}

func (m *mockStore) CreatePayloads(
	ctx context.Context, runID string, stepID *string, phase string, payloads ingest.Payloads,
) error {
	if m.CreatePayloadsFunc != nil {
		return m.CreatePayloadsFunc(ctx, runID, stepID, phase, payloads)
	}

	return nil
}

func (m *mockStore) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc != nil {
		return m.HealthCheckFunc(ctx)
	}

	return nil
}
