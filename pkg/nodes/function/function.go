// Package function provides registered-function action execution for workflow graphs.
package function

import (
	"context"
	"errors"
	"fmt"

	"github.com/cascadehq/cascade/pkg/dispatch"
	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/template"
)

var ErrUnknownFunction = errors.New("unknown function")

// Func is one callable registered under a name. Arguments arrive already
// template-rendered against the execution context.
type Func func(ctx context.Context, execCtx *execution.Context, args map[string]any) (map[string]any, error)

// Executor routes function nodes to a fixed table of registered callables,
// built once at startup.
type Executor struct {
	funcs map[string]Func
}

func NewExecutor(funcs map[string]Func) *Executor {
	return &Executor{funcs: funcs}
}

type nodeConfig struct {
	name string
	args map[string]any
}

func parseConfig(config map[string]any) (*nodeConfig, error) {
	name, ok := config["name"].(string)
	if !ok || name == "" {
		return nil, errors.New("missing required field 'name'")
	}

	parsed := &nodeConfig{name: name, args: make(map[string]any)}

	if args, ok := config["args"].(map[string]any); ok {
		parsed.args = args
	}

	return parsed, nil
}

// Execute renders the argument map and invokes the named function.
func (e *Executor) Execute(ctx context.Context, execCtx *execution.Context, node *models.WorkflowNode) (*dispatch.Result, error) {
	cfg, err := parseConfig(node.Config)
	if err != nil {
		return nil, fmt.Errorf("function node %s: %w", node.ID, err)
	}

	fn, ok := e.funcs[cfg.name]
	if !ok {
		return nil, fmt.Errorf("function node %s: %w: %q", node.ID, ErrUnknownFunction, cfg.name)
	}

	args, err := template.RenderMap(cfg.args, execCtx)
	if err != nil {
		return nil, fmt.Errorf("function node %s: %w", node.ID, err)
	}

	output, err := fn(ctx, execCtx, args)
	if err != nil {
		return nil, fmt.Errorf("function node %s: %s: %w", node.ID, cfg.name, err)
	}

	return &dispatch.Result{Output: output, Branch: models.PortMain}, nil
}

// Names lists the registered function names.
func (e *Executor) Names() []string {
	names := make([]string, 0, len(e.funcs))
	for name := range e.funcs {
		names = append(names, name)
	}

	return names
}
