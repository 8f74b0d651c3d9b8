package merge_test

import (
	"context"
	"testing"

	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes/merge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mergeNode(config map[string]any) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:      "join",
		Type:    models.NodeTypeLogic,
		Kind:    models.LogicKindMerge,
		Config:  config,
		Enabled: true,
	}
}

func seededContext() *execution.Context {
	execCtx := execution.NewContext("exec-1", "wf-1")
	execCtx.SetNodeOutput("fetch_user", map[string]any{"name": "ada", "source": "users"})
	execCtx.SetNodeOutput("fetch_billing", map[string]any{"plan": "pro", "source": "billing"})

	return execCtx
}

func TestMergeAllOverlaysInSourceOrder(t *testing.T) {
	executor := merge.NewExecutor()
	node := mergeNode(map[string]any{
		"strategy": "all",
		"sources":  []any{"fetch_user", "fetch_billing"},
	})

	result, err := executor.Execute(context.Background(), seededContext(), node)
	require.NoError(t, err)

	merged, ok := result.Output["merged"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ada", merged["name"])
	assert.Equal(t, "pro", merged["plan"])
	assert.Equal(t, "billing", merged["source"])
}

func TestMergeFirstAndLast(t *testing.T) {
	executor := merge.NewExecutor()
	execCtx := seededContext()

	result, err := executor.Execute(context.Background(), execCtx, mergeNode(map[string]any{
		"strategy": "first",
		"sources":  []any{"fetch_user", "fetch_billing"},
	}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "ada", "source": "users"}, result.Output["merged"])

	result, err = executor.Execute(context.Background(), execCtx, mergeNode(map[string]any{
		"strategy": "last",
		"sources":  []any{"fetch_user", "fetch_billing"},
	}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"plan": "pro", "source": "billing"}, result.Output["merged"])
}

func TestMergeDefaultsToAllOutputsSorted(t *testing.T) {
	executor := merge.NewExecutor()
	execCtx := seededContext()

	result, err := executor.Execute(context.Background(), execCtx, mergeNode(map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, "all", result.Output["strategy"])
	assert.Equal(t, []string{"fetch_billing", "fetch_user"}, result.Output["sources"])

	merged := result.Output["merged"].(map[string]any)
	assert.Equal(t, "users", merged["source"]) // fetch_user sorts last
}

func TestMergeSkipsAbsentSources(t *testing.T) {
	executor := merge.NewExecutor()
	execCtx := seededContext()

	result, err := executor.Execute(context.Background(), execCtx, mergeNode(map[string]any{
		"sources": []any{"fetch_user", "never_ran"},
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch_user"}, result.Output["sources"])
}

func TestMergeUnknownStrategy(t *testing.T) {
	executor := merge.NewExecutor()

	_, err := executor.Execute(context.Background(), seededContext(), mergeNode(map[string]any{
		"strategy": "union",
	}))
	assert.ErrorContains(t, err, "strategy")
}
