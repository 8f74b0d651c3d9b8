// Package loop provides sequential iteration node execution for workflow graphs.
package loop

import (
	"context"
	"errors"
	"fmt"

	"github.com/cascadehq/cascade/pkg/dispatch"
	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/template"
)

// Executor iterates a resolved array field strictly sequentially, binding the
// item and index as variables for the duration of each iteration.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

type nodeConfig struct {
	items     string
	itemVar   string
	indexVar  string
	transform string
}

func parseConfig(config map[string]any) (*nodeConfig, error) {
	items, ok := config["items"].(string)
	if !ok || items == "" {
		return nil, errors.New("missing required field 'items'")
	}

	parsed := &nodeConfig{
		items:    items,
		itemVar:  "item",
		indexVar: "index",
	}

	if itemVar, ok := config["item_variable"].(string); ok && itemVar != "" {
		parsed.itemVar = itemVar
	}

	if indexVar, ok := config["index_variable"].(string); ok && indexVar != "" {
		parsed.indexVar = indexVar
	}

	if transform, ok := config["transform"].(string); ok {
		parsed.transform = transform
	}

	return parsed, nil
}

// Execute resolves the items field to a list and visits each element. With a
// transform template configured, each iteration's rendered value lands in the
// results list; otherwise the item itself does. The loop variables are
// removed again after the final iteration.
func (e *Executor) Execute(ctx context.Context, execCtx *execution.Context, node *models.WorkflowNode) (*dispatch.Result, error) {
	cfg, err := parseConfig(node.Config)
	if err != nil {
		return nil, fmt.Errorf("loop node %s: %w", node.ID, err)
	}

	resolved, err := execution.ResolveField(execCtx, cfg.items)
	if err != nil {
		return nil, fmt.Errorf("loop node %s: %w", node.ID, err)
	}

	items, ok := resolved.([]any)
	if !ok {
		return nil, fmt.Errorf("loop node %s: field %q is not a list", node.ID, cfg.items)
	}

	defer func() {
		execCtx.UnsetVariable(cfg.itemVar)
		execCtx.UnsetVariable(cfg.indexVar)
	}()

	results := make([]any, 0, len(items))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		execCtx.SetVariable(cfg.itemVar, item)
		execCtx.SetVariable(cfg.indexVar, i)

		if cfg.transform == "" {
			results = append(results, item)

			continue
		}

		rendered, err := template.RenderWithContext(cfg.transform, execCtx)
		if err != nil {
			return nil, fmt.Errorf("loop node %s: iteration %d: %w", node.ID, i, err)
		}

		results = append(results, rendered)
	}

	return &dispatch.Result{
		Output: map[string]any{"results": results, "count": len(results)},
		Branch: models.PortMain,
	}, nil
}
