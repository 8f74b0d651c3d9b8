package models

import "time"

// ExecutionStatus defines the lifecycle states of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusWaiting   ExecutionStatus = "waiting"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status allows no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// IsResumable reports whether the execution is suspended but alive.
func (s ExecutionStatus) IsResumable() bool {
	return s == ExecutionStatusPaused || s == ExecutionStatusWaiting
}

// Execution is one run of one workflow. The durable row is the shared,
// contended resource: mutation goes through the execution lock, never
// through in-process assumptions.
type Execution struct {
	ID                string          `json:"id"`
	WorkflowID        string          `json:"workflow_id" validate:"required"`
	TriggerNodeID     *string         `json:"trigger_node_id,omitempty"`
	Status            ExecutionStatus `json:"status"`
	StartedAt         time.Time       `json:"started_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	DurationMs        int64           `json:"duration_ms"`
	NodesExecuted     int             `json:"nodes_executed"`
	NotificationsSent int             `json:"notifications_sent"`
	ContextSnapshot   map[string]any  `json:"context_snapshot,omitempty"`
	TriggerData       map[string]any  `json:"trigger_data,omitempty"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	ErrorDetails      map[string]any  `json:"error_details,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// MarkCompleted moves the execution to a terminal completed state.
func (e *Execution) MarkCompleted(now time.Time) {
	e.Status = ExecutionStatusCompleted
	e.CompletedAt = &now
	e.DurationMs = now.Sub(e.StartedAt).Milliseconds()
	e.UpdatedAt = now
}

// MarkFailed moves the execution to a terminal failed state with an error.
func (e *Execution) MarkFailed(now time.Time, message string, details map[string]any) {
	e.Status = ExecutionStatusFailed
	e.CompletedAt = &now
	e.DurationMs = now.Sub(e.StartedAt).Milliseconds()
	e.ErrorMessage = message
	e.ErrorDetails = details
	e.UpdatedAt = now
}

// MarkCancelled records who cancelled the execution and why.
func (e *Execution) MarkCancelled(now time.Time, cancelledBy, reason string) {
	e.Status = ExecutionStatusCancelled
	e.CompletedAt = &now
	e.DurationMs = now.Sub(e.StartedAt).Milliseconds()
	e.ErrorMessage = "cancelled by " + cancelledBy
	if reason != "" {
		e.ErrorMessage += ": " + reason
	}
	e.UpdatedAt = now
}
