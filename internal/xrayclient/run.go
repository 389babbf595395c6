package xrayclient

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xray-observability/xray/internal/summarize"
	"github.com/xray-observability/xray/internal/xraytypes"
)

// Run tracks one top-level unit of work (e.g. one request through a
// pipeline) and the Steps executed within it. A Run is created already
// started: the constructor sends the run_start event itself, matching the
// reference SDK's Step/Run constructors.
type Run struct {
	ID           string
	PipelineName string
	Status       xraytypes.RunStatus

	transport   *Transport
	detail      xraytypes.DetailLevel
	startedAt   time.Time
	startMono   time.Time
	metadata    map[string]any
	requestID   string
	userID      string
	environment string

	mu      sync.Mutex
	ended   bool
	nextIdx int
}

// RunOptions carries run_start's optional tags (metadata, request/user
// correlation, environment name) without an ever-growing NewRun signature.
type RunOptions struct {
	Metadata    map[string]any
	RequestID   string
	UserID      string
	Environment string
}

// NewRun creates and starts a Run, sending its run_start event immediately.
func NewRun(transport *Transport, pipelineName string, inputData any, detail xraytypes.DetailLevel, opts RunOptions) *Run {
	now := time.Now()

	r := &Run{
		ID:           uuid.NewString(),
		PipelineName: pipelineName,
		Status:       xraytypes.RunRunning,
		transport:    transport,
		detail:       detail,
		startedAt:    now,
		startMono:    now,
		metadata:     opts.Metadata,
		requestID:    opts.RequestID,
		userID:       opts.UserID,
		environment:  opts.Environment,
	}

	r.send(r.startEvent(inputData))

	return r
}

// StartStep begins a new Step owned by this Run, sending its step_start
// event immediately. index identifies the step's position for callers that
// run steps in a known sequence; pass 0 if position isn't meaningful.
func (r *Run) StartStep(name string, stepType xraytypes.StepType, inputData any, index int, metadata map[string]any) *Step {
	return newStep(r, name, stepType, inputData, index, metadata)
}

// End marks the Run as finished with the given status and output, sending
// its run_end event. End is idempotent: calling it again after the first
// successful call does nothing, matching the reference SDK's guard against
// double-ending a run.
func (r *Run) End(outputData any, status xraytypes.RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ended {
		return
	}

	r.ended = true
	r.Status = status

	r.send(r.endEvent(outputData, status, ""))
}

// EndWithError marks the Run as failed, recording err's message as the
// run's output. Idempotent, same as End.
func (r *Run) EndWithError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ended {
		return
	}

	r.ended = true
	r.Status = xraytypes.RunError

	r.send(r.endEvent(nil, xraytypes.RunError, formatError(err)))
}

func (r *Run) send(event map[string]any) {
	if r.transport != nil {
		r.transport.Send(event)
	}
}

func (r *Run) startEvent(inputData any) map[string]any {
	event := map[string]any{
		"event_type":    "run_start",
		"id":            r.ID,
		"pipeline_name": r.PipelineName,
		"started_at":    formatTime(r.startedAt),
		"input_summary": summarize.Summarize(inputData, 0),
	}

	if len(r.metadata) > 0 {
		event["metadata"] = r.metadata
	}

	if r.requestID != "" {
		event["request_id"] = r.requestID
	}

	if r.userID != "" {
		event["user_id"] = r.userID
	}

	if r.environment != "" {
		event["environment"] = r.environment
	}

	attachPayloads(event, r.detail, xraytypes.PhaseInput, inputData)

	return event
}

func (r *Run) endEvent(outputData any, status xraytypes.RunStatus, errMsg string) map[string]any {
	event := map[string]any{
		"event_type":     "run_end",
		"id":             r.ID,
		"status":         string(status),
		"ended_at":       formatTime(time.Now()),
		"output_summary": summarize.Summarize(outputData, 0),
	}

	if errMsg != "" {
		event["error_message"] = errMsg
	}

	attachPayloads(event, r.detail, xraytypes.PhaseOutput, outputData)

	return event
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatError(err error) string {
	if err == nil {
		return ""
	}

	return fmt.Sprintf("%T: %s", err, err.Error())
}

func intPtrOrNil(p *int) any {
	if p == nil {
		return nil
	}

	return *p
}

// attachPayloads adds the raw, un-summarized value under "_payloads" when
// the run/step was configured for full detail. At DetailSummary (the
// default), only the compact summary built above ever leaves the process;
// the full payload never travels over the wire, keeping transport cost
// bounded regardless of what the caller passes in. The ref_id is derived
// from the phase since the auto-attached payload is the one value the
// caller handed to start/end.
func attachPayloads(event map[string]any, detail xraytypes.DetailLevel, phase xraytypes.Phase, value any) {
	if detail != xraytypes.DetailFull || value == nil {
		return
	}

	event["_payloads"] = map[string]any{string(phase): value}
}
