// Package merge provides node-output combination for converging workflow branches.
package merge

import (
	"context"
	"fmt"
	"sort"

	"github.com/cascadehq/cascade/pkg/dispatch"
	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/models"
)

const (
	StrategyAll   = "all"
	StrategyFirst = "first"
	StrategyLast  = "last"
)

// Executor combines upstream node outputs using a declared strategy.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

type nodeConfig struct {
	strategy string
	sources  []string
}

func parseConfig(config map[string]any) (*nodeConfig, error) {
	parsed := &nodeConfig{strategy: StrategyAll}

	if strategy, ok := config["strategy"].(string); ok && strategy != "" {
		switch strategy {
		case StrategyAll, StrategyFirst, StrategyLast:
			parsed.strategy = strategy
		default:
			return nil, fmt.Errorf("unknown strategy %q", strategy)
		}
	}

	if list, ok := config["sources"].([]any); ok {
		for i, item := range list {
			source, ok := item.(string)
			if !ok || source == "" {
				return nil, fmt.Errorf("source %d must be a node ID", i)
			}

			parsed.sources = append(parsed.sources, source)
		}
	}

	return parsed, nil
}

// Execute merges the outputs of the source nodes. Without an explicit source
// list, every recorded node output participates in sorted node-ID order.
// Strategy "all" overlays the output maps in source order so later sources
// win on key collisions; "first" and "last" pick a single source's output.
func (e *Executor) Execute(ctx context.Context, execCtx *execution.Context, node *models.WorkflowNode) (*dispatch.Result, error) {
	cfg, err := parseConfig(node.Config)
	if err != nil {
		return nil, fmt.Errorf("merge node %s: %w", node.ID, err)
	}

	sources := cfg.sources
	if len(sources) == 0 {
		for nodeID := range execCtx.NodeOutputs() {
			if nodeID == node.ID {
				continue
			}

			sources = append(sources, nodeID)
		}

		sort.Strings(sources)
	}

	var present []string

	outputs := make([]map[string]any, 0, len(sources))

	for _, source := range sources {
		output, ok := execCtx.NodeOutput(source)
		if !ok {
			continue
		}

		present = append(present, source)
		outputs = append(outputs, output)
	}

	merged := make(map[string]any)

	switch cfg.strategy {
	case StrategyFirst:
		if len(outputs) > 0 {
			merged = outputs[0]
		}
	case StrategyLast:
		if len(outputs) > 0 {
			merged = outputs[len(outputs)-1]
		}
	default:
		for _, output := range outputs {
			for k, v := range output {
				merged[k] = v
			}
		}
	}

	return &dispatch.Result{
		Output: map[string]any{
			"merged":   merged,
			"strategy": cfg.strategy,
			"sources":  present,
		},
		Branch: models.PortMain,
	}, nil
}
