package xraytypes_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xray-observability/xray/internal/xraytypes"
)

func TestRunStatus(t *testing.T) {
	t.Run("valid statuses parse", func(t *testing.T) {
		for _, s := range []string{"running", "success", "error"} {
			status, err := xraytypes.ParseRunStatus(s)
			require.NoError(t, err)
			assert.True(t, status.IsValid())
		}
	})

	t.Run("terminal states", func(t *testing.T) {
		assert.False(t, xraytypes.RunRunning.IsTerminal())
		assert.True(t, xraytypes.RunSuccess.IsTerminal())
		assert.True(t, xraytypes.RunError.IsTerminal())
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		_, err := xraytypes.ParseRunStatus("paused")
		require.ErrorIs(t, err, xraytypes.ErrInvalidRunStatus)
	})
}

func TestStepStatus(t *testing.T) {
	_, err := xraytypes.ParseStepStatus("unknown")
	require.ErrorIs(t, err, xraytypes.ErrInvalidStepStatus)

	status, err := xraytypes.ParseStepStatus("success")
	require.NoError(t, err)
	assert.True(t, status.IsTerminal())
}

func TestStepType(t *testing.T) {
	for _, tt := range xraytypes.ValidStepTypes() {
		assert.True(t, tt.IsValid())
	}

	_, err := xraytypes.ParseStepType("embedding")
	require.ErrorIs(t, err, xraytypes.ErrInvalidStepType)
}

func TestDetailLevel(t *testing.T) {
	level, err := xraytypes.ParseDetailLevel("full")
	require.NoError(t, err)
	assert.Equal(t, xraytypes.DetailFull, level)

	_, err = xraytypes.ParseDetailLevel("verbose")
	require.ErrorIs(t, err, xraytypes.ErrInvalidDetailLevel)
}

func TestPhase(t *testing.T) {
	phase, err := xraytypes.ParsePhase("output")
	require.NoError(t, err)
	assert.Equal(t, xraytypes.PhaseOutput, phase)

	_, err = xraytypes.ParsePhase("sideways")
	require.ErrorIs(t, err, xraytypes.ErrInvalidPhase)
}
