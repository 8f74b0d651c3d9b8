package file

import (
	"context"
	"sort"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// WaitStateRepository stores wait-state rows as one JSON file per row.
// Version-guarded updates run under the store mutex, which makes the
// read-compare-write sequence atomic within the process.
type WaitStateRepository struct {
	store *Persistence
}

func (r *WaitStateRepository) CreateWaitState(_ context.Context, ws *models.ExecutionWaitState) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var duplicate bool

	err := readAll(r.store, "wait_states", func(row *models.ExecutionWaitState) {
		if row.ExecutionID == ws.ExecutionID && row.NodeID == ws.NodeID && !row.Status.IsTerminal() {
			duplicate = true
		}
	})
	if err != nil {
		return err
	}

	if duplicate {
		return &persistence.WaitStateError{
			Op:          "create",
			WaitStateID: ws.ID,
			ExecutionID: ws.ExecutionID,
			Err:         persistence.ErrDuplicateWaitState,
		}
	}

	return r.store.write("wait_states", ws.ID, ws)
}

func (r *WaitStateRepository) WaitStateByID(_ context.Context, id string) (*models.ExecutionWaitState, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.waitStateByIDLocked(id)
}

func (r *WaitStateRepository) waitStateByIDLocked(id string) (*models.ExecutionWaitState, error) {
	var ws models.ExecutionWaitState

	found, err := r.store.read("wait_states", id, &ws)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrWaitStateNotFound
	}

	return &ws, nil
}

func (r *WaitStateRepository) WaitStateByCorrelationID(_ context.Context, correlationID string) (*models.ExecutionWaitState, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var match *models.ExecutionWaitState

	err := readAll(r.store, "wait_states", func(row *models.ExecutionWaitState) {
		if row.CorrelationID != correlationID {
			return
		}

		// Prefer the waiting row; correlation IDs of finished waits can
		// linger until their executions are purged.
		if match == nil || (match.Status.IsTerminal() && !row.Status.IsTerminal()) {
			match = row
		}
	})
	if err != nil {
		return nil, err
	}

	if match == nil {
		return nil, persistence.ErrWaitStateNotFound
	}

	return match, nil
}

func (r *WaitStateRepository) ActiveWaitState(_ context.Context, executionID, nodeID string) (*models.ExecutionWaitState, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var match *models.ExecutionWaitState

	err := readAll(r.store, "wait_states", func(row *models.ExecutionWaitState) {
		if row.ExecutionID == executionID && row.NodeID == nodeID && !row.Status.IsTerminal() {
			match = row
		}
	})
	if err != nil {
		return nil, err
	}

	if match == nil {
		return nil, persistence.ErrWaitStateNotFound
	}

	return match, nil
}

func (r *WaitStateRepository) ActiveWaitStatesByExecution(_ context.Context, executionID string) ([]*models.ExecutionWaitState, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var active []*models.ExecutionWaitState

	err := readAll(r.store, "wait_states", func(row *models.ExecutionWaitState) {
		if row.ExecutionID == executionID && !row.Status.IsTerminal() {
			active = append(active, row)
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.Before(active[j].CreatedAt) })

	return active, nil
}

func (r *WaitStateRepository) ListExpired(_ context.Context, now time.Time) ([]*models.ExecutionWaitState, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var expired []*models.ExecutionWaitState

	err := readAll(r.store, "wait_states", func(row *models.ExecutionWaitState) {
		if row.Status == models.WaitStatusWaiting && row.ExpiresAt != nil && now.After(*row.ExpiresAt) {
			expired = append(expired, row)
		}
	})
	if err != nil {
		return nil, err
	}

	return expired, nil
}

func (r *WaitStateRepository) ListDueDelays(_ context.Context, now time.Time) ([]*models.ExecutionWaitState, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var due []*models.ExecutionWaitState

	err := readAll(r.store, "wait_states", func(row *models.ExecutionWaitState) {
		if row.Status == models.WaitStatusWaiting && row.ResumeAt != nil && !now.Before(*row.ResumeAt) {
			due = append(due, row)
		}
	})
	if err != nil {
		return nil, err
	}

	return due, nil
}

func (r *WaitStateRepository) UpdateWaitState(_ context.Context, ws *models.ExecutionWaitState) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, err := r.waitStateByIDLocked(ws.ID)
	if err != nil {
		return &persistence.WaitStateError{Op: "update", WaitStateID: ws.ID, ExecutionID: ws.ExecutionID, Err: err}
	}

	if existing.Version != ws.Version {
		return &persistence.WaitStateError{
			Op:          "update",
			WaitStateID: ws.ID,
			ExecutionID: ws.ExecutionID,
			Err:         persistence.ErrVersionConflict,
		}
	}

	ws.Version++
	ws.UpdatedAt = time.Now().UTC()

	if err := r.store.write("wait_states", ws.ID, ws); err != nil {
		ws.Version--

		return err
	}

	return nil
}
