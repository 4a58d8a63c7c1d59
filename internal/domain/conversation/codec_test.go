package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeKeepsOptionalReportFields(t *testing.T) {
	no := false
	reason := "болел всю неделю"
	in := AwaitingProblems{Stage: "Изучение легенды", PlansCompleted: &no, FailureReason: &reason, Plans: "наверстать"}

	raw, err := Encode(in)
	require.NoError(t, err)
	out, err := Decode(raw)
	require.NoError(t, err)

	got, ok := out.(AwaitingProblems)
	require.True(t, ok, "decoded %T", out)
	require.NotNil(t, got.PlansCompleted)
	assert.False(t, *got.PlansCompleted)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, reason, *got.FailureReason)
	assert.Equal(t, in.Plans, got.Plans)
}

func TestDecodeFirstReportLeavesCompletionUnset(t *testing.T) {
	raw, err := Encode(AwaitingPlans{Stage: "s"})
	require.NoError(t, err)
	out, err := Decode(raw)
	require.NoError(t, err)
	assert.Nil(t, out.(AwaitingPlans).PlansCompleted)
}

func TestDecodeRejectsUnknownStep(t *testing.T) {
	_, err := Decode([]byte(`{"step":"report.awaiting_nothing"}`))
	assert.Error(t, err)

	_, err = Encode(nil)
	assert.Error(t, err)
}

func TestStepOf(t *testing.T) {
	assert.Equal(t, StepIdle, StepOf(nil))
	assert.Equal(t, StepAwaitingCuratorID, StepOf(AwaitingCuratorID{Action: CuratorActionActivate}))
}
