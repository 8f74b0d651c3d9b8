package switchnode_test

import (
	"context"
	"testing"

	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes/switchnode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func switchNode(config map[string]any) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:      "route",
		Type:    models.NodeTypeLogic,
		Kind:    models.LogicKindSwitch,
		Config:  config,
		Enabled: true,
	}
}

func TestSwitchRoutesFirstMatchingCase(t *testing.T) {
	executor := switchnode.NewExecutor()
	node := switchNode(map[string]any{
		"field": "trigger.tier",
		"cases": []any{
			map[string]any{"value": "gold", "branch": "priority"},
			map[string]any{"value": "silver", "branch": "standard"},
		},
		"default_branch": "bulk",
	})

	execCtx := execution.NewContext("exec-1", "wf-1")
	execCtx.SetTriggerInput("start", map[string]any{"tier": "silver"})

	result, err := executor.Execute(context.Background(), execCtx, node)
	require.NoError(t, err)
	assert.Equal(t, "standard", result.Branch)
	assert.Equal(t, "silver", result.Output["matched_value"])
}

func TestSwitchNumericCaseValues(t *testing.T) {
	executor := switchnode.NewExecutor()
	node := switchNode(map[string]any{
		"field": "code",
		"cases": []any{
			map[string]any{"value": float64(404), "branch": "missing"},
		},
		"default_branch": "other",
	})

	execCtx := execution.NewContext("exec-1", "wf-1")
	execCtx.SetVariable("code", float64(404))

	result, err := executor.Execute(context.Background(), execCtx, node)
	require.NoError(t, err)
	assert.Equal(t, "missing", result.Branch)
}

func TestSwitchFallsBackToDefault(t *testing.T) {
	executor := switchnode.NewExecutor()
	node := switchNode(map[string]any{
		"field": "tier",
		"cases": []any{
			map[string]any{"value": "gold", "branch": "priority"},
		},
		"default_branch": "bulk",
	})

	execCtx := execution.NewContext("exec-1", "wf-1")
	execCtx.SetVariable("tier", "bronze")

	result, err := executor.Execute(context.Background(), execCtx, node)
	require.NoError(t, err)
	assert.Equal(t, "bulk", result.Branch)
	assert.Equal(t, true, result.Output["no_match"])
}

func TestSwitchDefaultBranchDefaultsToMain(t *testing.T) {
	executor := switchnode.NewExecutor()
	node := switchNode(map[string]any{
		"field": "tier",
		"cases": []any{
			map[string]any{"value": "gold", "branch": "priority"},
		},
	})

	execCtx := execution.NewContext("exec-1", "wf-1")

	result, err := executor.Execute(context.Background(), execCtx, node)
	require.NoError(t, err)
	assert.Equal(t, models.PortMain, result.Branch)
}

func TestSwitchInvalidConfig(t *testing.T) {
	executor := switchnode.NewExecutor()
	execCtx := execution.NewContext("exec-1", "wf-1")

	_, err := executor.Execute(context.Background(), execCtx, switchNode(map[string]any{
		"cases": []any{map[string]any{"value": "a", "branch": "b"}},
	}))
	assert.ErrorContains(t, err, "field")

	_, err = executor.Execute(context.Background(), execCtx, switchNode(map[string]any{
		"field": "tier",
	}))
	assert.ErrorContains(t, err, "cases")

	_, err = executor.Execute(context.Background(), execCtx, switchNode(map[string]any{
		"field": "tier",
		"cases": []any{map[string]any{"value": "a"}},
	}))
	assert.ErrorContains(t, err, "branch")
}
