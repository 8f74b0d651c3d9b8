// Package dispatch routes workflow nodes to their executors. The routing
// tables are plain maps handed in at construction; nothing registers itself
// through package-level state.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/models"
)

var (
	ErrUnknownNodeType = errors.New("unknown node type")
	ErrUnknownNodeKind = errors.New("unknown node kind")
)

// Suspension asks the orchestrator to park the execution in a durable wait
// state instead of following an output branch.
type Suspension struct {
	CorrelationID string
	Expectations  []models.EventExpectation
	Policy        models.AggregationPolicy
	OnTimeout     models.TimeoutPolicy
	Timeout       time.Duration // 0 means no expiration deadline
	ResumeAt      *time.Time    // delay waits: wall-clock resume deadline
}

// Result is the outcome of executing a single node.
type Result struct {
	// Output is recorded in the execution context under the node's ID.
	Output map[string]any
	// Branch names the output port to follow; empty means "main".
	Branch string
	// Suspend, when non-nil, parks the execution instead of advancing.
	Suspend *Suspension
}

// NodeExecutor executes one node kind against the execution context.
type NodeExecutor interface {
	Execute(ctx context.Context, execCtx *execution.Context, node *models.WorkflowNode) (*Result, error)
}

// Dispatcher resolves nodes to executors in two steps: the closed node type
// first, then the kind within the type's table.
type Dispatcher struct {
	logger  *slog.Logger
	logic   map[string]NodeExecutor
	actions map[string]NodeExecutor
}

// NewDispatcher creates a dispatcher over the given routing tables.
func NewDispatcher(logger *slog.Logger, logic, actions map[string]NodeExecutor) *Dispatcher {
	return &Dispatcher{
		logger:  logger.With("module", "dispatch"),
		logic:   logic,
		actions: actions,
	}
}

// Dispatch executes the node with its registered executor. Trigger nodes do
// not execute: their input was recorded when the execution started, so they
// resolve to a pass-through result on the main branch.
func (d *Dispatcher) Dispatch(ctx context.Context, execCtx *execution.Context, node *models.WorkflowNode) (*Result, error) {
	switch node.Type {
	case models.NodeTypeTrigger:
		input, _ := execCtx.TriggerInput(node.ID)

		return &Result{Output: input, Branch: models.PortMain}, nil
	case models.NodeTypeLogic:
		return d.execute(ctx, execCtx, node, d.logic)
	case models.NodeTypeAction:
		return d.execute(ctx, execCtx, node, d.actions)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, node.Type)
	}
}

func (d *Dispatcher) execute(ctx context.Context, execCtx *execution.Context, node *models.WorkflowNode, table map[string]NodeExecutor) (*Result, error) {
	executor, ok := table[node.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrUnknownNodeKind, node.Type, node.Kind)
	}

	d.logger.DebugContext(ctx, "Dispatching node",
		"execution_id", execCtx.ExecutionID,
		"node_id", node.ID,
		"node_type", node.Type,
		"node_kind", node.Kind)

	result, err := executor.Execute(ctx, execCtx, node)
	if err != nil {
		return nil, err
	}

	if result == nil {
		result = &Result{}
	}

	if result.Branch == "" {
		result.Branch = models.PortMain
	}

	return result, nil
}

// Kinds lists the registered kinds of one node type, for diagnostics and
// registry validation.
func (d *Dispatcher) Kinds(nodeType models.NodeType) []string {
	var table map[string]NodeExecutor

	switch nodeType {
	case models.NodeTypeLogic:
		table = d.logic
	case models.NodeTypeAction:
		table = d.actions
	default:
		return nil
	}

	kinds := make([]string, 0, len(table))
	for kind := range table {
		kinds = append(kinds, kind)
	}

	return kinds
}
