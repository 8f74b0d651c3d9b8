package delay_test

import (
	"context"
	"testing"
	"time"

	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes/delay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delayNode(config map[string]any) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:      "pause",
		Type:    models.NodeTypeLogic,
		Kind:    models.LogicKindDelay,
		Config:  config,
		Enabled: true,
	}
}

func TestDurationSuspendsWithResumeDeadline(t *testing.T) {
	executor := delay.NewExecutor()
	execCtx := execution.NewContext("exec-1", "wf-1")

	before := time.Now().UTC()
	result, err := executor.Execute(context.Background(), execCtx, delayNode(map[string]any{
		"duration": "5m",
	}))
	require.NoError(t, err)

	require.NotNil(t, result.Suspend)
	require.NotNil(t, result.Suspend.ResumeAt)
	assert.WithinDuration(t, before.Add(5*time.Minute), *result.Suspend.ResumeAt, 5*time.Second)
	assert.Equal(t, models.AggregationPolicyAll, result.Suspend.Policy)
	assert.Equal(t, models.TimeoutPolicyContinue, result.Suspend.OnTimeout)
	require.Len(t, result.Suspend.Expectations, 1)
	assert.Equal(t, models.EventKindDelay, result.Suspend.Expectations[0].Kind)
	assert.True(t, result.Suspend.Expectations[0].Required)
}

func TestNumericDurationSeconds(t *testing.T) {
	executor := delay.NewExecutor()
	execCtx := execution.NewContext("exec-1", "wf-1")

	before := time.Now().UTC()
	result, err := executor.Execute(context.Background(), execCtx, delayNode(map[string]any{
		"duration": float64(30),
	}))
	require.NoError(t, err)
	require.NotNil(t, result.Suspend)
	assert.WithinDuration(t, before.Add(30*time.Second), *result.Suspend.ResumeAt, 5*time.Second)
}

func TestUntilDeadline(t *testing.T) {
	executor := delay.NewExecutor()
	execCtx := execution.NewContext("exec-1", "wf-1")

	deadline := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	result, err := executor.Execute(context.Background(), execCtx, delayNode(map[string]any{
		"until": deadline.Format(time.RFC3339),
	}))
	require.NoError(t, err)
	require.NotNil(t, result.Suspend)
	assert.True(t, result.Suspend.ResumeAt.Equal(deadline))
}

func TestUntilTemplated(t *testing.T) {
	executor := delay.NewExecutor()
	execCtx := execution.NewContext("exec-1", "wf-1")

	deadline := time.Now().UTC().Add(time.Hour).Truncate(time.Second).Format(time.RFC3339)
	execCtx.SetVariable("resume_at", deadline)

	result, err := executor.Execute(context.Background(), execCtx, delayNode(map[string]any{
		"until": "{{.variables.resume_at}}",
	}))
	require.NoError(t, err)
	require.NotNil(t, result.Suspend)
	assert.Equal(t, deadline, result.Suspend.ResumeAt.Format(time.RFC3339))
}

func TestPastDeadlineSkipsSuspension(t *testing.T) {
	executor := delay.NewExecutor()
	execCtx := execution.NewContext("exec-1", "wf-1")

	result, err := executor.Execute(context.Background(), execCtx, delayNode(map[string]any{
		"until": time.Now().UTC().Add(-time.Minute).Format(time.RFC3339),
	}))
	require.NoError(t, err)
	assert.Nil(t, result.Suspend)
	assert.Equal(t, true, result.Output["skipped"])
	assert.Equal(t, models.PortMain, result.Branch)
}

func TestInvalidDelayConfig(t *testing.T) {
	executor := delay.NewExecutor()
	execCtx := execution.NewContext("exec-1", "wf-1")

	_, err := executor.Execute(context.Background(), execCtx, delayNode(map[string]any{}))
	assert.ErrorContains(t, err, "duration")

	_, err = executor.Execute(context.Background(), execCtx, delayNode(map[string]any{
		"duration": "soon",
	}))
	assert.ErrorContains(t, err, "invalid duration")

	_, err = executor.Execute(context.Background(), execCtx, delayNode(map[string]any{
		"duration": float64(-5),
	}))
	assert.ErrorContains(t, err, "positive")

	_, err = executor.Execute(context.Background(), execCtx, delayNode(map[string]any{
		"until": "tomorrow",
	}))
	assert.ErrorContains(t, err, "until")
}
