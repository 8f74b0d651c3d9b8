// Package persistence provides the data storage abstraction for workflows,
// executions, wait states, retry schedules and node execution audit rows.
package persistence

import (
	"context"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
)

// Persistence aggregates all repositories behind one backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	WaitStateRepository() WaitStateRepository
	RetryScheduleRepository() RetryScheduleRepository
	NodeExecutionRepository() NodeExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository resolves workflow definitions. Full workflow CRUD lives
// with an external collaborator; the engine only reads definitions.
type WorkflowRepository interface {
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
}

// ListExecutionsOptions filters the execution query surface.
type ListExecutionsOptions struct {
	WorkflowID string
	Status     *models.ExecutionStatus
	Limit      int
	Offset     int
}

// ExecutionRepository stores execution rows. Rows are shared, contended
// resources: callers mutate them only while holding the execution lock.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, exec *models.Execution) error
	UpdateExecution(ctx context.Context, exec *models.Execution) error
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	ListExecutions(ctx context.Context, opts ListExecutionsOptions) ([]*models.Execution, error)
	// ListStale returns non-terminal executions in the given statuses whose
	// last update predates the cutoff. Used by the stuck-execution sweep.
	ListStale(ctx context.Context, statuses []models.ExecutionStatus, updatedBefore time.Time) ([]*models.Execution, error)
}

// WaitStateRepository stores wait-state rows. All mutation goes through
// UpdateWaitState's compare-and-swap on the optimistic version counter.
type WaitStateRepository interface {
	CreateWaitState(ctx context.Context, ws *models.ExecutionWaitState) error
	WaitStateByID(ctx context.Context, id string) (*models.ExecutionWaitState, error)
	WaitStateByCorrelationID(ctx context.Context, correlationID string) (*models.ExecutionWaitState, error)
	// ActiveWaitState returns the single non-terminal wait state for an
	// (execution, node) pair, enforcing the at-most-one invariant on read.
	ActiveWaitState(ctx context.Context, executionID, nodeID string) (*models.ExecutionWaitState, error)
	ActiveWaitStatesByExecution(ctx context.Context, executionID string) ([]*models.ExecutionWaitState, error)
	// ListExpired returns waiting rows whose expiration deadline has passed.
	ListExpired(ctx context.Context, now time.Time) ([]*models.ExecutionWaitState, error)
	// ListDueDelays returns waiting delay rows whose resume deadline has passed.
	ListDueDelays(ctx context.Context, now time.Time) ([]*models.ExecutionWaitState, error)
	// UpdateWaitState persists the row only when the stored version equals
	// ws.Version, then increments it. Returns ErrVersionConflict otherwise.
	UpdateWaitState(ctx context.Context, ws *models.ExecutionWaitState) error
}

// RetryScheduleRepository stores retry-schedule rows with the same
// compare-and-swap discipline as wait states.
type RetryScheduleRepository interface {
	CreateRetrySchedule(ctx context.Context, schedule *models.RetrySchedule) error
	RetryScheduleByID(ctx context.Context, id string) (*models.RetrySchedule, error)
	// ListDue returns pending (or stale-claimed) schedules whose scheduled
	// time has passed.
	ListDue(ctx context.Context, now time.Time, staleClaim time.Duration) ([]*models.RetrySchedule, error)
	// ActiveRetrySchedulesByExecution returns the pending or in-progress
	// schedules owned by an execution.
	ActiveRetrySchedulesByExecution(ctx context.Context, executionID string) ([]*models.RetrySchedule, error)
	// UpdateRetrySchedule is version-guarded like UpdateWaitState.
	UpdateRetrySchedule(ctx context.Context, schedule *models.RetrySchedule) error
}

// NodeExecutionRepository stores the append-mostly audit trail.
type NodeExecutionRepository interface {
	CreateNodeExecution(ctx context.Context, ne *models.NodeExecution) error
	UpdateNodeExecution(ctx context.Context, ne *models.NodeExecution) error
	NodeExecutionsByExecution(ctx context.Context, executionID string) ([]*models.NodeExecution, error)
	// LatestSequence returns the highest sequence recorded for an execution,
	// 0 when none exist.
	LatestSequence(ctx context.Context, executionID string) (int, error)
}
