package ingest

import (
	"context"
	"errors"
	"time"
)

// Store persists runs, steps, and the payloads attached to them. The
// ingest HTTP handler depends only on this interface, internal/xraystore
// provides the Postgres-backed implementation, so the handler's tests
// never need a database, matching the dependency-inversion split the
// teacher's internal/ingestion.Store / internal/storage pairing uses.
type Store interface {
	// CreateRun records a new run. Returns ErrRunAlreadyExists if id is
	// already in use.
	CreateRun(ctx context.Context, fields CreateRunFields) error

	// EndRun marks an existing run finished and returns its record.
	// Returns ErrRunNotFound if id doesn't name a known run.
	EndRun(ctx context.Context, id, status string, endedAt time.Time, outputSummary map[string]any, errMsg string) (*RunRecord, error)

	// CreateStep records a new step under runID. Returns ErrStepAlreadyExists
	// if id is already in use.
	CreateStep(ctx context.Context, id, runID, stepName, stepType string, index int, startedAt time.Time, inputSummary map[string]any, inputCount *int, metadata map[string]any) error

	// EndStep marks an existing step finished and returns its record, whose
	// RunID is read back from storage rather than trusted from the
	// request, callers must use the returned RunID, not the client-supplied
	// one, when recording output payloads.
	EndStep(ctx context.Context, id, status string, endedAt time.Time, durationMS *int64, outputSummary map[string]any, outputCount *int, reasoning map[string]any, errMsg string) (*StepRecord, error)

	// CreatePayloads attaches externalized input/output payloads to a run
	// (stepID == nil) or a step (stepID != nil). payloads maps each
	// client-assigned ref_id to its JSON body. Failures here are logged
	// by the caller but never fail the owning event; payload storage is
	// best-effort.
	CreatePayloads(ctx context.Context, runID string, stepID *string, phase string, payloads Payloads) error

	// HealthCheck verifies the store is reachable and ready to serve requests.
	HealthCheck(ctx context.Context) error
}

// CreateRunFields bundles run_start's optional tags so CreateRun doesn't
// need an ever-growing positional parameter list.
type CreateRunFields struct {
	ID           string
	PipelineName string
	StartedAt    time.Time
	InputSummary map[string]any
	Metadata     map[string]any
	RequestID    string
	UserID       string
	Environment  string
}

// RunRecord is the durable view of a run returned after it ends.
type RunRecord struct {
	ID     string
	Status string
}

// StepRecord is the durable view of a step returned after it ends. RunID is
// read back from the steps table, not copied from the request, this is
// the value that must be used when attaching output payloads, since a
// malformed or stale client-supplied run_id on the step_end event must
// never be trusted for a write.
type StepRecord struct {
	ID     string
	RunID  string
	Status string
}

// Domain-level store errors, independent of whichever database backs a
// Store implementation.
var (
	ErrRunAlreadyExists  = errors.New("ingest: run already exists")
	ErrRunNotFound       = errors.New("ingest: run not found")
	ErrStepAlreadyExists = errors.New("ingest: step already exists")
	ErrStepNotFound      = errors.New("ingest: step not found")
)
