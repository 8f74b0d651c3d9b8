package file

import (
	"context"
	"sort"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// NodeExecutionRepository stores the per-node audit trail as one JSON file
// per row.
type NodeExecutionRepository struct {
	store *Persistence
}

func (r *NodeExecutionRepository) CreateNodeExecution(_ context.Context, ne *models.NodeExecution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write("node_executions", ne.ID, ne)
}

func (r *NodeExecutionRepository) UpdateNodeExecution(_ context.Context, ne *models.NodeExecution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var existing models.NodeExecution

	found, err := r.store.read("node_executions", ne.ID, &existing)
	if err != nil {
		return err
	}

	if !found {
		return persistence.ErrNodeExecutionNotFound
	}

	return r.store.write("node_executions", ne.ID, ne)
}

func (r *NodeExecutionRepository) NodeExecutionsByExecution(_ context.Context, executionID string) ([]*models.NodeExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var rows []*models.NodeExecution

	err := readAll(r.store, "node_executions", func(row *models.NodeExecution) {
		if row.ExecutionID == executionID {
			rows = append(rows, row)
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Sequence < rows[j].Sequence })

	return rows, nil
}

func (r *NodeExecutionRepository) LatestSequence(_ context.Context, executionID string) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	latest := 0

	err := readAll(r.store, "node_executions", func(row *models.NodeExecution) {
		if row.ExecutionID == executionID && row.Sequence > latest {
			latest = row.Sequence
		}
	})
	if err != nil {
		return 0, err
	}

	return latest, nil
}
