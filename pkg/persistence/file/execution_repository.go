package file

import (
	"context"
	"sort"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// ExecutionRepository stores execution rows as one JSON file per execution.
type ExecutionRepository struct {
	store *Persistence
}

func (r *ExecutionRepository) CreateExecution(_ context.Context, exec *models.Execution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write("executions", exec.ID, exec)
}

func (r *ExecutionRepository) UpdateExecution(_ context.Context, exec *models.Execution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var existing models.Execution

	found, err := r.store.read("executions", exec.ID, &existing)
	if err != nil {
		return err
	}

	if !found {
		return &persistence.ExecutionError{Op: "update", ExecutionID: exec.ID, Err: persistence.ErrExecutionNotFound}
	}

	return r.store.write("executions", exec.ID, exec)
}

func (r *ExecutionRepository) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var exec models.Execution

	found, err := r.store.read("executions", id, &exec)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrExecutionNotFound
	}

	return &exec, nil
}

func (r *ExecutionRepository) ListExecutions(_ context.Context, opts persistence.ListExecutionsOptions) ([]*models.Execution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var executions []*models.Execution

	err := readAll(r.store, "executions", func(exec *models.Execution) {
		if opts.WorkflowID != "" && exec.WorkflowID != opts.WorkflowID {
			return
		}

		if opts.Status != nil && exec.Status != *opts.Status {
			return
		}

		executions = append(executions, exec)
	})
	if err != nil {
		return nil, err
	}

	// Newest first, matching the SQL backend's ORDER BY started_at DESC.
	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(executions) {
			return nil, nil
		}

		executions = executions[opts.Offset:]
	}

	if opts.Limit > 0 && opts.Limit < len(executions) {
		executions = executions[:opts.Limit]
	}

	return executions, nil
}

func (r *ExecutionRepository) ListStale(_ context.Context, statuses []models.ExecutionStatus, updatedBefore time.Time) ([]*models.Execution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	wanted := make(map[models.ExecutionStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var stale []*models.Execution

	err := readAll(r.store, "executions", func(exec *models.Execution) {
		if wanted[exec.Status] && exec.UpdatedAt.Before(updatedBefore) {
			stale = append(stale, exec)
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(stale, func(i, j int) bool { return stale[i].UpdatedAt.Before(stale[j].UpdatedAt) })

	return stale, nil
}
