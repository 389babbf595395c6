package xrayclient

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xray-observability/xray/internal/summarize"
	"github.com/xray-observability/xray/internal/xraytypes"
)

// Step tracks one unit of work within a Run, a filter, a rank, an LLM
// call, a retrieval, or anything else worth recording reasoning about.
// Like Run, a Step is created already started: the constructor sends the
// step_start event itself.
type Step struct {
	ID       string
	RunID    string
	StepName string
	Type     xraytypes.StepType
	Index    int
	Status   xraytypes.StepStatus

	run       *Run
	detail    xraytypes.DetailLevel
	startedAt time.Time
	startMono time.Time

	mu        sync.Mutex
	ended     bool
	reasoning map[string]any
}

func newStep(run *Run, stepName string, stepType xraytypes.StepType, inputData any, index int, metadata map[string]any) *Step {
	now := time.Now()

	s := &Step{
		ID:        uuid.NewString(),
		RunID:     run.ID,
		StepName:  stepName,
		Type:      stepType,
		Index:     index,
		Status:    xraytypes.StepRunning,
		run:       run,
		detail:    run.detail,
		startedAt: now,
		startMono: now,
	}

	s.send(s.startEvent(inputData, metadata))

	return s
}

// AttachReasoning records structured (or free-form string) reasoning about
// this step, merged into the step_end event's reasoning field. A string is
// stored under the "explanation" key; a map is merged key by key. Call this
// any time before End, reasoning attached after End has no effect, since
// the step_end event has already been sent.
func (s *Step) AttachReasoning(reasoning any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}

	if s.reasoning == nil {
		s.reasoning = map[string]any{}
	}

	switch r := reasoning.(type) {
	case string:
		s.reasoning["explanation"] = r
	case map[string]any:
		for k, v := range r {
			s.reasoning[k] = v
		}
	}
}

// End marks the Step finished with the given status and output, sending
// its step_end event. Idempotent: a second call is a no-op.
func (s *Step) End(outputData any, status xraytypes.StepStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}

	s.ended = true
	s.Status = status

	s.send(s.endEvent(outputData, status, ""))
}

// EndWithError marks the Step as failed, recording err's message. Idempotent.
func (s *Step) EndWithError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}

	s.ended = true
	s.Status = xraytypes.StepError

	s.send(s.endEvent(nil, xraytypes.StepError, formatError(err)))
}

func (s *Step) send(event map[string]any) {
	if s.run != nil {
		s.run.send(event)
	}
}

func (s *Step) startEvent(inputData any, metadata map[string]any) map[string]any {
	event := map[string]any{
		"event_type":    "step_start",
		"id":            s.ID,
		"run_id":        s.RunID,
		"step_name":     s.StepName,
		"step_type":     string(s.Type),
		"index":         s.Index,
		"started_at":    formatTime(s.startedAt),
		"input_summary": summarize.Summarize(inputData, 0),
		"input_count":   intPtrOrNil(summarize.InferCount(inputData)),
	}

	if len(metadata) > 0 {
		event["metadata"] = metadata
	}

	attachPayloads(event, s.detail, xraytypes.PhaseInput, inputData)

	return event
}

func (s *Step) endEvent(outputData any, status xraytypes.StepStatus, errMsg string) map[string]any {
	durationMS := time.Since(s.startMono).Milliseconds()

	event := map[string]any{
		"event_type":     "step_end",
		"id":             s.ID,
		"run_id":         s.RunID,
		"status":         string(status),
		"ended_at":       formatTime(time.Now()),
		"duration_ms":    durationMS,
		"output_summary": summarize.Summarize(outputData, 0),
		"output_count":   intPtrOrNil(summarize.InferCount(outputData)),
	}

	if errMsg != "" {
		event["error_message"] = errMsg
	}

	if len(s.reasoning) > 0 {
		event["reasoning"] = s.reasoning
	}

	attachPayloads(event, s.detail, xraytypes.PhaseOutput, outputData)

	return event
}
