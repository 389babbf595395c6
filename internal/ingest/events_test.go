package ingest_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xray-observability/xray/internal/ingest"
)

func TestSplitBatch(t *testing.T) {
	body := []byte(`[{"event_type":"run_start"},{"event_type":"run_end"}]`)

	raw, err := ingest.SplitBatch(body)
	require.NoError(t, err)
	assert.Len(t, raw, 2)
}

func TestSplitBatchMalformed(t *testing.T) {
	_, err := ingest.SplitBatch([]byte(`not json`))
	require.Error(t, err)
}

func TestDecodeEachEventType(t *testing.T) {
	runID := uuid.NewString()
	stepID := uuid.NewString()

	cases := map[string]string{
		ingest.EventRunStart:  `{"event_type":"run_start","id":"` + runID + `","pipeline_name":"n","started_at":"t"}`,
		ingest.EventRunEnd:    `{"event_type":"run_end","id":"` + runID + `","status":"success","ended_at":"t"}`,
		ingest.EventStepStart: `{"event_type":"step_start","id":"` + stepID + `","run_id":"` + runID + `","step_name":"n","step_type":"rank","started_at":"t"}`,
		ingest.EventStepEnd:   `{"event_type":"step_end","id":"` + stepID + `","run_id":"` + runID + `","status":"success","ended_at":"t","duration_ms":5}`,
	}

	for eventType, body := range cases {
		t.Run(eventType, func(t *testing.T) {
			event, err := ingest.Decode(json.RawMessage(body))
			require.NoError(t, err)
			assert.Equal(t, eventType, ingest.TypeOf(event))
		})
	}
}

func TestDecodeUnknownEventType(t *testing.T) {
	_, err := ingest.Decode(json.RawMessage(`{"event_type":"mystery"}`))
	require.ErrorIs(t, err, ingest.ErrUnknownEventType)
}

func TestValidatorRunStart(t *testing.T) {
	v := ingest.NewValidator()

	valid := ingest.RunStartEvent{ID: uuid.NewString(), PipelineName: "n", StartedAt: "t"}
	require.NoError(t, v.Validate(valid))

	missingName := ingest.RunStartEvent{ID: uuid.NewString(), StartedAt: "t"}
	require.ErrorIs(t, v.Validate(missingName), ingest.ErrMissingName)

	badID := ingest.RunStartEvent{ID: "not-a-uuid", PipelineName: "n", StartedAt: "t"}
	require.ErrorIs(t, v.Validate(badID), ingest.ErrInvalidID)
}

func TestValidatorStepStart(t *testing.T) {
	v := ingest.NewValidator()
	runID := uuid.NewString()

	valid := ingest.StepStartEvent{
		ID: uuid.NewString(), RunID: runID, StepName: "rank", StepType: "rank", StartedAt: "t",
	}
	require.NoError(t, v.Validate(valid))

	badType := valid
	badType.StepType = "nonsense"
	require.ErrorIs(t, v.Validate(badType), ingest.ErrInvalidStepType)

	noRunID := valid
	noRunID.RunID = ""
	require.ErrorIs(t, v.Validate(noRunID), ingest.ErrMissingRunID)
}

func TestValidatorStepEndNegativeDuration(t *testing.T) {
	v := ingest.NewValidator()

	negative := int64(-1)
	event := ingest.StepEndEvent{
		ID: uuid.NewString(), RunID: uuid.NewString(), Status: "success", EndedAt: "t", DurationMS: &negative,
	}
	require.ErrorIs(t, v.Validate(event), ingest.ErrNegativeDuration)
}
