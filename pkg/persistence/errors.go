// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates an execution was not found.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrWaitStateNotFound indicates a wait state was not found.
	ErrWaitStateNotFound = errors.New("wait state not found")

	// ErrRetryScheduleNotFound indicates a retry schedule was not found.
	ErrRetryScheduleNotFound = errors.New("retry schedule not found")

	// ErrNodeExecutionNotFound indicates a node execution record was not found.
	ErrNodeExecutionNotFound = errors.New("node execution not found")

	// ErrVersionConflict indicates a compare-and-swap update lost against a
	// concurrent writer. The caller must re-read and retry.
	ErrVersionConflict = errors.New("optimistic version conflict")

	// ErrDuplicateWaitState indicates a second non-terminal wait state was
	// attempted for the same (execution, node) pair.
	ErrDuplicateWaitState = errors.New("active wait state already exists for node")
)

// ExecutionError wraps execution-related errors with additional context.
type ExecutionError struct {
	Op          string // Operation being performed (e.g., "Update", "ListStale")
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

// WaitStateError wraps wait-state errors with additional context.
type WaitStateError struct {
	Op          string
	WaitStateID string
	ExecutionID string
	Err         error
}

func (e *WaitStateError) Error() string {
	return fmt.Sprintf("%s operation failed for wait state %s (execution %s): %v",
		e.Op, e.WaitStateID, e.ExecutionID, e.Err)
}

func (e *WaitStateError) Unwrap() error {
	return e.Err
}

func (e *WaitStateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsWaitStateNotFound checks if an error indicates a wait state was not found.
func IsWaitStateNotFound(err error) bool {
	return errors.Is(err, ErrWaitStateNotFound)
}

// IsVersionConflict checks if an error indicates a lost compare-and-swap.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsDuplicateWaitState checks if an error indicates the one-active-wait-state
// invariant was violated.
func IsDuplicateWaitState(err error) bool {
	return errors.Is(err, ErrDuplicateWaitState)
}
