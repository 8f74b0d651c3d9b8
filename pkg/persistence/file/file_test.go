package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()

	fp, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	return fp
}

func TestExecutionRoundTrip(t *testing.T) {
	fp := newTestPersistence(t)
	ctx := context.Background()
	repo := fp.ExecutionRepository()

	exec := &models.Execution{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		Status:     models.ExecutionStatusRunning,
		StartedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	require.NoError(t, repo.CreateExecution(ctx, exec))

	loaded, err := repo.ExecutionByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", loaded.WorkflowID)
	assert.Equal(t, models.ExecutionStatusRunning, loaded.Status)

	_, err = repo.ExecutionByID(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}

func TestUpdateExecutionMissing(t *testing.T) {
	fp := newTestPersistence(t)

	err := fp.ExecutionRepository().UpdateExecution(context.Background(), &models.Execution{ID: "ghost"})
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}

func TestListExecutionsFiltering(t *testing.T) {
	fp := newTestPersistence(t)
	ctx := context.Background()
	repo := fp.ExecutionRepository()

	base := time.Now().UTC()
	rows := []*models.Execution{
		{ID: "a", WorkflowID: "wf-1", Status: models.ExecutionStatusCompleted, StartedAt: base.Add(-3 * time.Minute)},
		{ID: "b", WorkflowID: "wf-1", Status: models.ExecutionStatusRunning, StartedAt: base.Add(-2 * time.Minute)},
		{ID: "c", WorkflowID: "wf-2", Status: models.ExecutionStatusRunning, StartedAt: base.Add(-1 * time.Minute)},
	}
	for _, row := range rows {
		require.NoError(t, repo.CreateExecution(ctx, row))
	}

	byWorkflow, err := repo.ListExecutions(ctx, persistence.ListExecutionsOptions{WorkflowID: "wf-1"})
	require.NoError(t, err)
	require.Len(t, byWorkflow, 2)
	assert.Equal(t, "b", byWorkflow[0].ID)
	assert.Equal(t, "a", byWorkflow[1].ID)

	running := models.ExecutionStatusRunning
	byStatus, err := repo.ListExecutions(ctx, persistence.ListExecutionsOptions{Status: &running})
	require.NoError(t, err)
	assert.Len(t, byStatus, 2)

	limited, err := repo.ListExecutions(ctx, persistence.ListExecutionsOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b", limited[0].ID)
}

func TestListStale(t *testing.T) {
	fp := newTestPersistence(t)
	ctx := context.Background()
	repo := fp.ExecutionRepository()

	cutoff := time.Now().UTC()
	require.NoError(t, repo.CreateExecution(ctx, &models.Execution{
		ID: "old", Status: models.ExecutionStatusRunning, UpdatedAt: cutoff.Add(-time.Hour),
	}))
	require.NoError(t, repo.CreateExecution(ctx, &models.Execution{
		ID: "fresh", Status: models.ExecutionStatusRunning, UpdatedAt: cutoff.Add(time.Minute),
	}))
	require.NoError(t, repo.CreateExecution(ctx, &models.Execution{
		ID: "done", Status: models.ExecutionStatusCompleted, UpdatedAt: cutoff.Add(-time.Hour),
	}))

	stale, err := repo.ListStale(ctx, []models.ExecutionStatus{models.ExecutionStatusRunning}, cutoff)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].ID)
}

func TestWaitStateVersionConflict(t *testing.T) {
	fp := newTestPersistence(t)
	ctx := context.Background()
	repo := fp.WaitStateRepository()

	ws := &models.ExecutionWaitState{
		ID:            "ws-1",
		ExecutionID:   "exec-1",
		NodeID:        "node-1",
		CorrelationID: "corr-1",
		Status:        models.WaitStatusWaiting,
		Version:       1,
	}
	require.NoError(t, repo.CreateWaitState(ctx, ws))

	first, err := repo.WaitStateByID(ctx, "ws-1")
	require.NoError(t, err)

	second, err := repo.WaitStateByID(ctx, "ws-1")
	require.NoError(t, err)

	first.RecordEvent(models.EventKindAPIResponse, map[string]any{"ok": true})
	require.NoError(t, repo.UpdateWaitState(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Status = models.WaitStatusCompleted
	err = repo.UpdateWaitState(ctx, second)
	assert.ErrorIs(t, err, persistence.ErrVersionConflict)

	// The loser reloads and retries at the new version.
	reloaded, err := repo.WaitStateByID(ctx, "ws-1")
	require.NoError(t, err)
	reloaded.Status = models.WaitStatusCompleted
	require.NoError(t, repo.UpdateWaitState(ctx, reloaded))
}

func TestDuplicateActiveWaitState(t *testing.T) {
	fp := newTestPersistence(t)
	ctx := context.Background()
	repo := fp.WaitStateRepository()

	require.NoError(t, repo.CreateWaitState(ctx, &models.ExecutionWaitState{
		ID: "ws-1", ExecutionID: "exec-1", NodeID: "node-1", Status: models.WaitStatusWaiting,
	}))

	err := repo.CreateWaitState(ctx, &models.ExecutionWaitState{
		ID: "ws-2", ExecutionID: "exec-1", NodeID: "node-1", Status: models.WaitStatusWaiting,
	})
	assert.ErrorIs(t, err, persistence.ErrDuplicateWaitState)

	// A second wait on the same node is fine once the first finished.
	done, err := repo.WaitStateByID(ctx, "ws-1")
	require.NoError(t, err)
	done.Status = models.WaitStatusCompleted
	require.NoError(t, repo.UpdateWaitState(ctx, done))

	require.NoError(t, repo.CreateWaitState(ctx, &models.ExecutionWaitState{
		ID: "ws-2", ExecutionID: "exec-1", NodeID: "node-1", Status: models.WaitStatusWaiting,
	}))
}

func TestWaitStateByCorrelationIDPrefersWaiting(t *testing.T) {
	fp := newTestPersistence(t)
	ctx := context.Background()
	repo := fp.WaitStateRepository()

	require.NoError(t, repo.CreateWaitState(ctx, &models.ExecutionWaitState{
		ID: "ws-old", ExecutionID: "exec-1", NodeID: "node-1", CorrelationID: "corr-1",
		Status: models.WaitStatusCompleted,
	}))
	require.NoError(t, repo.CreateWaitState(ctx, &models.ExecutionWaitState{
		ID: "ws-new", ExecutionID: "exec-2", NodeID: "node-1", CorrelationID: "corr-1",
		Status: models.WaitStatusWaiting,
	}))

	found, err := repo.WaitStateByCorrelationID(ctx, "corr-1")
	require.NoError(t, err)
	assert.Equal(t, "ws-new", found.ID)

	_, err = repo.WaitStateByCorrelationID(ctx, "corr-unknown")
	assert.ErrorIs(t, err, persistence.ErrWaitStateNotFound)
}

func TestListExpiredAndDueDelays(t *testing.T) {
	fp := newTestPersistence(t)
	ctx := context.Background()
	repo := fp.WaitStateRepository()

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	require.NoError(t, repo.CreateWaitState(ctx, &models.ExecutionWaitState{
		ID: "expired", ExecutionID: "e1", NodeID: "n1", Status: models.WaitStatusWaiting, ExpiresAt: &past,
	}))
	require.NoError(t, repo.CreateWaitState(ctx, &models.ExecutionWaitState{
		ID: "alive", ExecutionID: "e2", NodeID: "n1", Status: models.WaitStatusWaiting, ExpiresAt: &future,
	}))
	require.NoError(t, repo.CreateWaitState(ctx, &models.ExecutionWaitState{
		ID: "due-delay", ExecutionID: "e3", NodeID: "n1", Status: models.WaitStatusWaiting, ResumeAt: &past,
	}))

	expired, err := repo.ListExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "expired", expired[0].ID)

	due, err := repo.ListDueDelays(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due-delay", due[0].ID)
}

func TestRetryScheduleListDue(t *testing.T) {
	fp := newTestPersistence(t)
	ctx := context.Background()
	repo := fp.RetryScheduleRepository()

	now := time.Now().UTC()
	staleAt := now.Add(-10 * time.Minute)

	require.NoError(t, repo.CreateRetrySchedule(ctx, &models.RetrySchedule{
		ID: "due", Status: models.RetryStatusPending, ScheduledAt: now.Add(-time.Second), Version: 1,
	}))
	require.NoError(t, repo.CreateRetrySchedule(ctx, &models.RetrySchedule{
		ID: "later", Status: models.RetryStatusPending, ScheduledAt: now.Add(time.Hour), Version: 1,
	}))
	require.NoError(t, repo.CreateRetrySchedule(ctx, &models.RetrySchedule{
		ID: "stale-claim", Status: models.RetryStatusInProgress, ScheduledAt: now.Add(-time.Minute),
		ClaimedBy: "worker-gone", ClaimedAt: &staleAt, Version: 1,
	}))

	due, err := repo.ListDue(ctx, now, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "stale-claim", due[0].ID)
	assert.Equal(t, "due", due[1].ID)
}

func TestRetryScheduleClaimConflict(t *testing.T) {
	fp := newTestPersistence(t)
	ctx := context.Background()
	repo := fp.RetryScheduleRepository()

	require.NoError(t, repo.CreateRetrySchedule(ctx, &models.RetrySchedule{
		ID: "rs-1", Status: models.RetryStatusPending, Version: 1,
	}))

	first, err := repo.RetryScheduleByID(ctx, "rs-1")
	require.NoError(t, err)

	second, err := repo.RetryScheduleByID(ctx, "rs-1")
	require.NoError(t, err)

	first.Status = models.RetryStatusInProgress
	first.ClaimedBy = "worker-a"
	require.NoError(t, repo.UpdateRetrySchedule(ctx, first))

	second.Status = models.RetryStatusInProgress
	second.ClaimedBy = "worker-b"
	err = repo.UpdateRetrySchedule(ctx, second)
	assert.ErrorIs(t, err, persistence.ErrVersionConflict)
}

func TestNodeExecutionAuditOrder(t *testing.T) {
	fp := newTestPersistence(t)
	ctx := context.Background()
	repo := fp.NodeExecutionRepository()

	for i, id := range []string{"ne-b", "ne-a", "ne-c"} {
		require.NoError(t, repo.CreateNodeExecution(ctx, &models.NodeExecution{
			ID: id, ExecutionID: "exec-1", NodeID: "node", Sequence: 3 - i,
		}))
	}

	rows, err := repo.NodeExecutionsByExecution(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 1, rows[0].Sequence)
	assert.Equal(t, 3, rows[2].Sequence)

	latest, err := repo.LatestSequence(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, 3, latest)

	latest, err = repo.LatestSequence(ctx, "exec-none")
	require.NoError(t, err)
	assert.Equal(t, 0, latest)
}

func TestWorkflowRepository(t *testing.T) {
	fp := newTestPersistence(t)
	ctx := context.Background()
	repo := fp.WorkflowRepository()

	require.NoError(t, repo.SaveWorkflow(ctx, &models.Workflow{
		ID: "wf-1", Name: "credit check", Status: models.WorkflowStatusPublished,
	}))

	wf, err := repo.WorkflowByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "credit check", wf.Name)

	_, err = repo.WorkflowByID(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}
