// Package switchnode provides multi-way branching node execution for workflow graphs.
package switchnode

import (
	"context"
	"errors"
	"fmt"

	"github.com/cascadehq/cascade/pkg/dispatch"
	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/models"
)

// Executor resolves a field and routes to the branch of the first matching
// case, or to a declared default branch when no case matches.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

type nodeConfig struct {
	field         string
	cases         []models.SwitchCase
	defaultBranch string
}

func parseConfig(config map[string]any) (*nodeConfig, error) {
	field, ok := config["field"].(string)
	if !ok || field == "" {
		return nil, errors.New("missing required field 'field'")
	}

	parsed := &nodeConfig{field: field, defaultBranch: models.PortMain}

	if branch, ok := config["default_branch"].(string); ok && branch != "" {
		parsed.defaultBranch = branch
	}

	list, ok := config["cases"].([]any)
	if !ok || len(list) == 0 {
		return nil, errors.New("missing required field 'cases'")
	}

	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("case %d must be an object", i)
		}

		branch, ok := entry["branch"].(string)
		if !ok || branch == "" {
			return nil, fmt.Errorf("case %d missing 'branch'", i)
		}

		parsed.cases = append(parsed.cases, models.SwitchCase{
			Value:  entry["value"],
			Branch: branch,
		})
	}

	return parsed, nil
}

// Execute resolves the field and walks the cases in declared order.
func (e *Executor) Execute(ctx context.Context, execCtx *execution.Context, node *models.WorkflowNode) (*dispatch.Result, error) {
	cfg, err := parseConfig(node.Config)
	if err != nil {
		return nil, fmt.Errorf("switch node %s: %w", node.ID, err)
	}

	resolved, err := execution.ResolveField(execCtx, cfg.field)
	if err != nil {
		if !errors.Is(err, execution.ErrFieldNotResolved) {
			return nil, fmt.Errorf("switch node %s: %w", node.ID, err)
		}

		resolved = nil
	}

	value := fmt.Sprintf("%v", resolved)

	for _, c := range cfg.cases {
		if fmt.Sprintf("%v", c.Value) == value {
			return &dispatch.Result{
				Output: map[string]any{"matched_value": value, "branch": c.Branch},
				Branch: c.Branch,
			}, nil
		}
	}

	return &dispatch.Result{
		Output: map[string]any{"matched_value": value, "branch": cfg.defaultBranch, "no_match": true},
		Branch: cfg.defaultBranch,
	}, nil
}
