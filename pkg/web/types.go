// Package web provides the HTTP surface of the execution engine: the
// execution query and control API plus the callback ingress.
package web

import "github.com/cascadehq/cascade/pkg/models"

// StartExecutionRequest starts a workflow from one of its trigger nodes.
type StartExecutionRequest struct {
	WorkflowID    string         `json:"workflow_id"     validate:"required"`
	TriggerNodeID string         `json:"trigger_node_id" validate:"required"`
	TriggerData   map[string]any `json:"trigger_data"`
}

// CancelExecutionRequest force-terminates a non-terminal execution.
type CancelExecutionRequest struct {
	CancelledBy string `json:"cancelled_by" validate:"required"`
	Reason      string `json:"reason"`
}

// RetryExecutionRequest re-enters a failed execution at a node.
type RetryExecutionRequest struct {
	NodeID string `json:"node_id" validate:"required"`
}

// CallbackResponse is the callback ingress reply shape. External callers
// integrate against it, so it stays stable and minimal.
type CallbackResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ReplayStep is one entry of the step-by-step replay derived from the audit
// trail. Context is the node-output state as of this step, re-derived by
// folding the succeeded outputs of the trail up to and including it.
type ReplayStep struct {
	Sequence   int                        `json:"sequence"`
	NodeID     string                     `json:"node_id"`
	NodeType   models.NodeType            `json:"node_type"`
	NodeKind   string                     `json:"node_kind"`
	Status     models.NodeExecutionStatus `json:"status"`
	Input      map[string]any             `json:"input,omitempty"`
	Output     map[string]any             `json:"output,omitempty"`
	Error      string                     `json:"error,omitempty"`
	DurationMs int64                      `json:"duration_ms"`
	Context    map[string]any             `json:"context"`
}

func replayStepFrom(ne *models.NodeExecution) ReplayStep {
	return ReplayStep{
		Sequence:   ne.Sequence,
		NodeID:     ne.NodeID,
		NodeType:   ne.NodeType,
		NodeKind:   ne.NodeKind,
		Status:     ne.Status,
		Input:      ne.Input,
		Output:     ne.Output,
		Error:      ne.Error,
		DurationMs: ne.DurationMs,
	}
}
