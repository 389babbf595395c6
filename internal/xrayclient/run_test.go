package xrayclient_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xray-observability/xray/internal/xrayclient"
	"github.com/xray-observability/xray/internal/xraytypes"
)

func newStartedTransport(t *testing.T, shipper *fakeShipper) *xrayclient.Transport {
	t.Helper()

	cfg := newTestConfig()
	cfg.FlushInterval = 10 * time.Millisecond
	cfg.BatchSize = 1

	transport := xrayclient.NewTransport(cfg, shipper, nil)
	transport.Start()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		_ = transport.Shutdown(ctx)
	})

	return transport
}

func TestRunStartSendsEvent(t *testing.T) {
	shipper := &fakeShipper{}
	transport := newStartedTransport(t, shipper)

	run := xrayclient.NewRun(transport, "search-pipeline", map[string]any{"query": "shoes"}, xraytypes.DetailSummary, xrayclient.RunOptions{})
	require.NotEmpty(t, run.ID)

	require.Eventually(t, func() bool {
		return shipper.totalEvents() >= 1
	}, time.Second, 5*time.Millisecond)

	event := shipper.ships[0][0]
	assert.Equal(t, "run_start", event["event_type"])
	assert.Equal(t, run.ID, event["id"])
	assert.Equal(t, "search-pipeline", event["pipeline_name"])
	assert.NotNil(t, event["input_summary"])
}

func TestRunEndIsIdempotent(t *testing.T) {
	shipper := &fakeShipper{}
	transport := newStartedTransport(t, shipper)

	run := xrayclient.NewRun(transport, "pipeline", nil, xraytypes.DetailSummary, xrayclient.RunOptions{})
	run.End(map[string]any{"ok": true}, xraytypes.RunSuccess)
	run.End(map[string]any{"ok": false}, xraytypes.RunError)

	require.Eventually(t, func() bool {
		return shipper.totalEvents() >= 2
	}, time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, shipper.totalEvents(), "second End call must be a no-op")
	assert.Equal(t, xraytypes.RunSuccess, run.Status)
}

func TestStepLifecycleAndReasoning(t *testing.T) {
	shipper := &fakeShipper{}
	transport := newStartedTransport(t, shipper)

	run := xrayclient.NewRun(transport, "pipeline", nil, xraytypes.DetailSummary, xrayclient.RunOptions{})
	step := run.StartStep("rank results", xraytypes.StepRank, []any{1, 2, 3}, 0, nil)
	step.AttachReasoning("dropped low-relevance items")
	step.AttachReasoning(map[string]any{"threshold": 0.5})
	step.End([]any{1, 2}, xraytypes.StepSuccess)

	require.Eventually(t, func() bool {
		return shipper.totalEvents() >= 3
	}, time.Second, 5*time.Millisecond)

	var endEvent map[string]any

	for _, batch := range shipper.ships {
		for _, e := range batch {
			if e["event_type"] == "step_end" {
				endEvent = e
			}
		}
	}

	require.NotNil(t, endEvent)
	assert.Equal(t, step.ID, endEvent["id"])
	assert.Equal(t, run.ID, endEvent["run_id"])

	reasoning, ok := endEvent["reasoning"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "dropped low-relevance items", reasoning["explanation"])
	assert.Equal(t, 0.5, reasoning["threshold"])
}

func TestRunEndWithError(t *testing.T) {
	shipper := &fakeShipper{}
	transport := newStartedTransport(t, shipper)

	run := xrayclient.NewRun(transport, "pipeline", nil, xraytypes.DetailSummary, xrayclient.RunOptions{})
	run.EndWithError(assert.AnError)

	require.Eventually(t, func() bool {
		return shipper.totalEvents() >= 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, xraytypes.RunError, run.Status)
}
