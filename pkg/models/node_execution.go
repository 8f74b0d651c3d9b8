package models

import "time"

// NodeExecutionStatus defines the states of one node run within an execution.
type NodeExecutionStatus string

const (
	NodeExecutionStatusPending   NodeExecutionStatus = "pending"
	NodeExecutionStatusRunning   NodeExecutionStatus = "running"
	NodeExecutionStatusSuspended NodeExecutionStatus = "suspended"
	NodeExecutionStatusSucceeded NodeExecutionStatus = "succeeded"
	NodeExecutionStatusFailed    NodeExecutionStatus = "failed"
)

// NodeExecution is the immutable-after-completion audit record of one node's
// run within one execution. It serves recovery bookkeeping and the replay
// surface, never control flow.
type NodeExecution struct {
	ID          string              `json:"id"`
	ExecutionID string              `json:"execution_id" validate:"required"`
	NodeID      string              `json:"node_id"      validate:"required"`
	NodeType    NodeType            `json:"node_type"`
	NodeKind    string              `json:"node_kind"`
	Sequence    int                 `json:"sequence"` // ordinal within the execution's total order
	Status      NodeExecutionStatus `json:"status"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	DurationMs  int64               `json:"duration_ms"`
	Input       map[string]any      `json:"input,omitempty"`
	Output      map[string]any      `json:"output,omitempty"`
	Error       string              `json:"error,omitempty"`
	RetryCount  int                 `json:"retry_count"`
}

// Finish stamps the audit row with a terminal status and timing.
func (n *NodeExecution) Finish(status NodeExecutionStatus, now time.Time) {
	n.Status = status
	n.CompletedAt = &now
	n.DurationMs = now.Sub(n.StartedAt).Milliseconds()
}
