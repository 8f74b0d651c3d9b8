package loop_test

import (
	"context"
	"testing"

	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes/loop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopNode(config map[string]any) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:      "each",
		Type:    models.NodeTypeLogic,
		Kind:    models.LogicKindLoop,
		Config:  config,
		Enabled: true,
	}
}

func TestLoopCollectsItems(t *testing.T) {
	executor := loop.NewExecutor()
	node := loopNode(map[string]any{"items": "trigger.ids"})

	execCtx := execution.NewContext("exec-1", "wf-1")
	execCtx.SetTriggerInput("start", map[string]any{
		"ids": []any{"a", "b", "c"},
	})

	result, err := executor.Execute(context.Background(), execCtx, node)
	require.NoError(t, err)
	assert.Equal(t, models.PortMain, result.Branch)
	assert.Equal(t, 3, result.Output["count"])
	assert.Equal(t, []any{"a", "b", "c"}, result.Output["results"])
}

func TestLoopTransformSeesItemAndIndex(t *testing.T) {
	executor := loop.NewExecutor()
	node := loopNode(map[string]any{
		"items":     "orders",
		"transform": "{{.variables.index}}-{{.variables.item.sku}}",
	})

	execCtx := execution.NewContext("exec-1", "wf-1")
	execCtx.SetVariable("orders", []any{
		map[string]any{"sku": "X1"},
		map[string]any{"sku": "X2"},
	})

	result, err := executor.Execute(context.Background(), execCtx, node)
	require.NoError(t, err)
	assert.Equal(t, []any{"0-X1", "1-X2"}, result.Output["results"])
}

func TestLoopUnbindsVariablesAfterwards(t *testing.T) {
	executor := loop.NewExecutor()
	node := loopNode(map[string]any{"items": "orders"})

	execCtx := execution.NewContext("exec-1", "wf-1")
	execCtx.SetVariable("orders", []any{1, 2})

	_, err := executor.Execute(context.Background(), execCtx, node)
	require.NoError(t, err)

	_, ok := execCtx.Variable("item")
	assert.False(t, ok)
	_, ok = execCtx.Variable("index")
	assert.False(t, ok)
}

func TestLoopCustomVariableNames(t *testing.T) {
	executor := loop.NewExecutor()
	node := loopNode(map[string]any{
		"items":          "orders",
		"item_variable":  "order",
		"index_variable": "position",
		"transform":      "{{.variables.position}}:{{.variables.order}}",
	})

	execCtx := execution.NewContext("exec-1", "wf-1")
	execCtx.SetVariable("orders", []any{"first"})

	result, err := executor.Execute(context.Background(), execCtx, node)
	require.NoError(t, err)
	assert.Equal(t, []any{"0:first"}, result.Output["results"])
}

func TestLoopRejectsNonList(t *testing.T) {
	executor := loop.NewExecutor()
	node := loopNode(map[string]any{"items": "orders"})

	execCtx := execution.NewContext("exec-1", "wf-1")
	execCtx.SetVariable("orders", "not-a-list")

	_, err := executor.Execute(context.Background(), execCtx, node)
	assert.ErrorContains(t, err, "not a list")
}

func TestLoopMissingItemsField(t *testing.T) {
	executor := loop.NewExecutor()
	execCtx := execution.NewContext("exec-1", "wf-1")

	_, err := executor.Execute(context.Background(), execCtx, loopNode(map[string]any{}))
	assert.ErrorContains(t, err, "items")
}
