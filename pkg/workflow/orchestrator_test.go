package workflow_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/cascadehq/cascade/pkg/aggregation"
	"github.com/cascadehq/cascade/pkg/dispatch"
	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/lock"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/persistence/file"
	"github.com/cascadehq/cascade/pkg/retry"
	"github.com/cascadehq/cascade/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubExecutor struct {
	fn func(ctx context.Context, execCtx *execution.Context, node *models.WorkflowNode) (*dispatch.Result, error)
}

func (s *stubExecutor) Execute(ctx context.Context, execCtx *execution.Context, node *models.WorkflowNode) (*dispatch.Result, error) {
	return s.fn(ctx, execCtx, node)
}

type recordingPlanner struct {
	schedules []*models.RetrySchedule
}

func (p *recordingPlanner) Schedule(_ context.Context, schedule *models.RetrySchedule) error {
	p.schedules = append(p.schedules, schedule)

	return nil
}

type harness struct {
	orch  *workflow.Orchestrator
	store persistence.Persistence
	agg   *aggregation.Service
}

func newHarness(t *testing.T, actions map[string]dispatch.NodeExecutor) *harness {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	logger := testLogger()
	agg := aggregation.NewService(logger, store.WaitStateRepository())
	dispatcher := dispatch.NewDispatcher(logger, map[string]dispatch.NodeExecutor{}, actions)

	lockStore := lock.NewMemoryStore()
	orch := workflow.NewOrchestrator(logger, store, dispatcher, agg, lockStore.Locker("worker-test"), nil, "worker-test", 30*time.Second)
	t.Cleanup(orch.Close)

	agg.SetResumer(orch)

	return &harness{orch: orch, store: store, agg: agg}
}

func node(id string, nodeType models.NodeType, kind string) *models.WorkflowNode {
	return &models.WorkflowNode{ID: id, Type: nodeType, Kind: kind, Name: id, Enabled: true}
}

func connect(conns ...[2]string) []*models.Connection {
	out := make([]*models.Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, &models.Connection{
			ID:         c[0] + "-" + c[1],
			SourcePort: c[0],
			TargetPort: c[1],
		})
	}

	return out
}

func saveWorkflow(t *testing.T, h *harness, wf *models.Workflow) {
	t.Helper()
	require.NoError(t, h.store.WorkflowRepository().SaveWorkflow(context.Background(), wf))
}

func linearWorkflow(actionKind string) *models.Workflow {
	return &models.Workflow{
		ID:     "wf-linear",
		Name:   "linear",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			node("start", models.NodeTypeTrigger, models.TriggerKindWebhook),
			node("step-1", models.NodeTypeAction, actionKind),
			node("step-2", models.NodeTypeAction, actionKind),
		},
		Connections: connect(
			[2]string{"start:main", "step-1:main"},
			[2]string{"step-1:main", "step-2:main"},
		),
	}
}

func TestStartExecutionRunsToCompletion(t *testing.T) {
	ctx := context.Background()

	var visited []string

	h := newHarness(t, map[string]dispatch.NodeExecutor{
		"record": &stubExecutor{fn: func(_ context.Context, _ *execution.Context, n *models.WorkflowNode) (*dispatch.Result, error) {
			visited = append(visited, n.ID)

			return &dispatch.Result{Output: map[string]any{"done": n.ID}}, nil
		}},
	})

	saveWorkflow(t, h, linearWorkflow("record"))

	exec, err := h.orch.StartExecution(ctx, "wf-linear", "start", map[string]any{"order_id": "ord-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"step-1", "step-2"}, visited)

	stored, err := h.store.ExecutionRepository().ExecutionByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, 3, stored.NodesExecuted)
	require.NotNil(t, stored.CompletedAt)

	audits, err := h.store.NodeExecutionRepository().NodeExecutionsByExecution(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, audits, 3)

	for i, audit := range audits {
		assert.Equal(t, i+1, audit.Sequence)
		assert.Equal(t, models.NodeExecutionStatusSucceeded, audit.Status)
	}
}

func TestBranchSelectionFollowsResult(t *testing.T) {
	ctx := context.Background()

	var visited []string

	h := newHarness(t, map[string]dispatch.NodeExecutor{
		"choose": &stubExecutor{fn: func(_ context.Context, _ *execution.Context, _ *models.WorkflowNode) (*dispatch.Result, error) {
			return &dispatch.Result{Branch: models.PortTrue}, nil
		}},
		"record": &stubExecutor{fn: func(_ context.Context, _ *execution.Context, n *models.WorkflowNode) (*dispatch.Result, error) {
			visited = append(visited, n.ID)

			return &dispatch.Result{}, nil
		}},
	})

	wf := &models.Workflow{
		ID:     "wf-branch",
		Name:   "branch",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			node("start", models.NodeTypeTrigger, models.TriggerKindWebhook),
			node("gate", models.NodeTypeAction, "choose"),
			node("approve", models.NodeTypeAction, "record"),
			node("reject", models.NodeTypeAction, "record"),
		},
		Connections: connect(
			[2]string{"start:main", "gate:main"},
			[2]string{"gate:true", "approve:main"},
			[2]string{"gate:false", "reject:main"},
		),
	}
	saveWorkflow(t, h, wf)

	_, err := h.orch.StartExecution(ctx, "wf-branch", "start", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"approve"}, visited)
}

func TestDisabledNodeIsSkipped(t *testing.T) {
	ctx := context.Background()

	var visited []string

	h := newHarness(t, map[string]dispatch.NodeExecutor{
		"record": &stubExecutor{fn: func(_ context.Context, _ *execution.Context, n *models.WorkflowNode) (*dispatch.Result, error) {
			visited = append(visited, n.ID)

			return &dispatch.Result{}, nil
		}},
	})

	wf := linearWorkflow("record")
	wf.NodeByID("step-1").Enabled = false
	saveWorkflow(t, h, wf)

	_, err := h.orch.StartExecution(ctx, "wf-linear", "start", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"step-2"}, visited)
}

func TestSuspendAndResumeThroughAggregation(t *testing.T) {
	ctx := context.Background()

	var afterResume []map[string]any

	h := newHarness(t, map[string]dispatch.NodeExecutor{
		"park": &stubExecutor{fn: func(_ context.Context, _ *execution.Context, _ *models.WorkflowNode) (*dispatch.Result, error) {
			return &dispatch.Result{Suspend: &dispatch.Suspension{
				CorrelationID: "payment-ord-7",
				Expectations:  []models.EventExpectation{{Kind: models.EventKindAPIResponse, Required: true}},
				Policy:        models.AggregationPolicyAll,
				OnTimeout:     models.TimeoutPolicyFail,
			}}, nil
		}},
		"record": &stubExecutor{fn: func(_ context.Context, execCtx *execution.Context, _ *models.WorkflowNode) (*dispatch.Result, error) {
			output, _ := execCtx.NodeOutput("hold")
			afterResume = append(afterResume, output)

			return &dispatch.Result{}, nil
		}},
	})

	wf := &models.Workflow{
		ID:     "wf-wait",
		Name:   "wait",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			node("start", models.NodeTypeTrigger, models.TriggerKindWebhook),
			node("hold", models.NodeTypeAction, "park"),
			node("after", models.NodeTypeAction, "record"),
		},
		Connections: connect(
			[2]string{"start:main", "hold:main"},
			[2]string{"hold:main", "after:main"},
		),
	}
	saveWorkflow(t, h, wf)

	exec, err := h.orch.StartExecution(ctx, "wf-wait", "start", nil)
	require.NoError(t, err)

	paused, err := h.store.ExecutionRepository().ExecutionByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPaused, paused.Status)
	assert.Empty(t, afterResume)

	ws, err := h.store.WaitStateRepository().WaitStateByCorrelationID(ctx, "payment-ord-7")
	require.NoError(t, err)
	assert.Equal(t, models.WaitStatusWaiting, ws.Status)

	err = h.agg.HandleAPIResponse(ctx, "", "payment-ord-7", map[string]any{"status": "captured"})
	require.NoError(t, err)

	resumed, err := h.store.ExecutionRepository().ExecutionByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, resumed.Status)

	require.Len(t, afterResume, 1)
	assert.Equal(t, map[string]any{"status": "captured"}, afterResume[0]["api_response"])
}

func TestResumeIsExactlyOnce(t *testing.T) {
	ctx := context.Background()

	downstream := 0

	h := newHarness(t, map[string]dispatch.NodeExecutor{
		"park": &stubExecutor{fn: func(_ context.Context, _ *execution.Context, _ *models.WorkflowNode) (*dispatch.Result, error) {
			return &dispatch.Result{Suspend: &dispatch.Suspension{
				CorrelationID: "corr-once",
				Expectations:  []models.EventExpectation{{Kind: models.EventKindAPIResponse, Required: true}},
				Policy:        models.AggregationPolicyAll,
			}}, nil
		}},
		"record": &stubExecutor{fn: func(_ context.Context, _ *execution.Context, _ *models.WorkflowNode) (*dispatch.Result, error) {
			downstream++

			return &dispatch.Result{}, nil
		}},
	})

	wf := &models.Workflow{
		ID:     "wf-once",
		Name:   "once",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			node("start", models.NodeTypeTrigger, models.TriggerKindWebhook),
			node("hold", models.NodeTypeAction, "park"),
			node("after", models.NodeTypeAction, "record"),
		},
		Connections: connect(
			[2]string{"start:main", "hold:main"},
			[2]string{"hold:main", "after:main"},
		),
	}
	saveWorkflow(t, h, wf)

	_, err := h.orch.StartExecution(ctx, "wf-once", "start", nil)
	require.NoError(t, err)

	ws, err := h.store.WaitStateRepository().WaitStateByCorrelationID(ctx, "corr-once")
	require.NoError(t, err)

	require.NoError(t, h.agg.HandleAPIResponse(ctx, "", "corr-once", map[string]any{"n": float64(1)}))
	assert.Equal(t, 1, downstream)

	// The wait state is resolved and the suspension pointer cleared, so a
	// second resume must be a no-op rather than a replay.
	require.NoError(t, h.orch.Resume(ctx, ws.ID))
	assert.Equal(t, 1, downstream)
}

func TestCancelPausedExecutionFailsWaitStates(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, map[string]dispatch.NodeExecutor{
		"park": &stubExecutor{fn: func(_ context.Context, _ *execution.Context, _ *models.WorkflowNode) (*dispatch.Result, error) {
			return &dispatch.Result{Suspend: &dispatch.Suspension{
				CorrelationID: "corr-cancel",
				Expectations:  []models.EventExpectation{{Kind: models.EventKindAPIResponse, Required: true}},
				Policy:        models.AggregationPolicyAll,
			}}, nil
		}},
	})

	wf := &models.Workflow{
		ID:     "wf-cancel",
		Name:   "cancel",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			node("start", models.NodeTypeTrigger, models.TriggerKindWebhook),
			node("hold", models.NodeTypeAction, "park"),
		},
		Connections: connect([2]string{"start:main", "hold:main"}),
	}
	saveWorkflow(t, h, wf)

	exec, err := h.orch.StartExecution(ctx, "wf-cancel", "start", nil)
	require.NoError(t, err)

	require.NoError(t, h.orch.Cancel(ctx, exec.ID, "ops@example.com", "superseded"))

	cancelled, err := h.store.ExecutionRepository().ExecutionByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)

	ws, err := h.store.WaitStateRepository().WaitStateByCorrelationID(ctx, "corr-cancel")
	require.NoError(t, err)
	assert.Equal(t, models.WaitStatusFailed, ws.Status)

	err = h.orch.Cancel(ctx, exec.ID, "ops@example.com", "again")
	assert.ErrorIs(t, err, workflow.ErrTerminal)
}

func TestNodeFailureWithoutRetryFailsExecution(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, map[string]dispatch.NodeExecutor{
		"boom": &stubExecutor{fn: func(_ context.Context, _ *execution.Context, _ *models.WorkflowNode) (*dispatch.Result, error) {
			return nil, errors.New("upstream unavailable")
		}},
	})

	wf := &models.Workflow{
		ID:     "wf-fail",
		Name:   "fail",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			node("start", models.NodeTypeTrigger, models.TriggerKindWebhook),
			node("fetch", models.NodeTypeAction, "boom"),
		},
		Connections: connect([2]string{"start:main", "fetch:main"}),
	}
	saveWorkflow(t, h, wf)

	exec, err := h.orch.StartExecution(ctx, "wf-fail", "start", nil)
	require.NoError(t, err)

	failed, err := h.store.ExecutionRepository().ExecutionByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, failed.Status)
	assert.Equal(t, "upstream unavailable", failed.ErrorMessage)

	audits, err := h.store.NodeExecutionRepository().NodeExecutionsByExecution(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, models.NodeExecutionStatusFailed, audits[1].Status)
	assert.Equal(t, "upstream unavailable", audits[1].Error)
}

func TestNodeFailureWithRetryConfigSchedulesRetry(t *testing.T) {
	ctx := context.Background()

	attempts := 0

	h := newHarness(t, map[string]dispatch.NodeExecutor{
		"flaky": &stubExecutor{fn: func(_ context.Context, _ *execution.Context, _ *models.WorkflowNode) (*dispatch.Result, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("timeout")
			}

			return &dispatch.Result{Output: map[string]any{"ok": true}}, nil
		}},
	})

	planner := &recordingPlanner{}
	h.orch.SetRetryPlanner(planner)

	wf := &models.Workflow{
		ID:     "wf-retry",
		Name:   "retry",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			node("start", models.NodeTypeTrigger, models.TriggerKindWebhook),
			node("fetch", models.NodeTypeAction, "flaky"),
		},
		Connections: connect([2]string{"start:main", "fetch:main"}),
	}
	wf.NodeByID("fetch").Config = map[string]any{
		"retry": map[string]any{
			"max_attempts":  float64(3),
			"strategy":      "exponential",
			"initial_delay": "10s",
			"multiplier":    float64(2),
		},
	}
	saveWorkflow(t, h, wf)

	exec, err := h.orch.StartExecution(ctx, "wf-retry", "start", nil)
	require.NoError(t, err)

	waiting, err := h.store.ExecutionRepository().ExecutionByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaiting, waiting.Status)
	assert.Equal(t, "timeout", waiting.ErrorMessage)

	require.Len(t, planner.schedules, 1)
	schedule := planner.schedules[0]
	assert.Equal(t, models.RetryTargetNode, schedule.TargetType)
	assert.Equal(t, "fetch", schedule.TargetID)
	assert.Equal(t, exec.ID, schedule.ExecutionID)
	assert.Equal(t, 3, schedule.MaxAttempts)
	assert.Equal(t, 10*time.Second, schedule.InitialDelay)

	// Backoff elapsed: the scheduler hands the schedule back.
	require.NoError(t, h.orch.Redispatch(ctx, schedule))
	assert.Equal(t, 2, attempts)

	done, err := h.store.ExecutionRepository().ExecutionByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, done.Status)
	assert.Empty(t, done.ErrorMessage)
}

func TestRetryBudgetExhaustionFailsExecution(t *testing.T) {
	ctx := context.Background()

	attempts := 0

	h := newHarness(t, map[string]dispatch.NodeExecutor{
		"broken": &stubExecutor{fn: func(_ context.Context, _ *execution.Context, _ *models.WorkflowNode) (*dispatch.Result, error) {
			attempts++

			return nil, errors.New("still down")
		}},
	})

	scheduler := retry.NewScheduler(testLogger(), h.store.RetryScheduleRepository(), h.orch, "worker-test", 5*time.Minute, time.Second)
	h.orch.SetRetryPlanner(scheduler)

	wf := &models.Workflow{
		ID:     "wf-budget",
		Name:   "budget",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			node("start", models.NodeTypeTrigger, models.TriggerKindWebhook),
			node("fetch", models.NodeTypeAction, "broken"),
		},
		Connections: connect([2]string{"start:main", "fetch:main"}),
	}
	wf.NodeByID("fetch").Config = map[string]any{
		"retry": map[string]any{
			"max_attempts":  float64(2),
			"strategy":      "fixed",
			"initial_delay": "1ms",
		},
	}
	saveWorkflow(t, h, wf)

	exec, err := h.orch.StartExecution(ctx, "wf-budget", "start", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	// Every sweep charges one attempt against the same schedule; once the
	// budget is spent no further schedule must appear.
	for range 5 {
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, scheduler.Sweep(ctx))
	}

	assert.Equal(t, 3, attempts)

	failed, err := h.store.ExecutionRepository().ExecutionByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "retry budget exhausted")

	live, err := h.store.RetryScheduleRepository().ActiveRetrySchedulesByExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Empty(t, live)
}

type droppingLocker struct {
	renews int
}

func (l *droppingLocker) Acquire(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return true, nil
}

func (l *droppingLocker) Release(_ context.Context, _ string) error {
	return nil
}

func (l *droppingLocker) Renew(_ context.Context, _ string, _ time.Duration) error {
	l.renews++
	if l.renews > 2 {
		return lock.ErrNotHeld
	}

	return nil
}

func TestDriveAbortsWhenLeaseLost(t *testing.T) {
	ctx := context.Background()

	var visited []string

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	logger := testLogger()
	agg := aggregation.NewService(logger, store.WaitStateRepository())
	dispatcher := dispatch.NewDispatcher(logger, map[string]dispatch.NodeExecutor{}, map[string]dispatch.NodeExecutor{
		"record": &stubExecutor{fn: func(_ context.Context, _ *execution.Context, n *models.WorkflowNode) (*dispatch.Result, error) {
			visited = append(visited, n.ID)

			return &dispatch.Result{}, nil
		}},
	})

	orch := workflow.NewOrchestrator(logger, store, dispatcher, agg, &droppingLocker{}, nil, "worker-test", 30*time.Second)
	t.Cleanup(orch.Close)
	agg.SetResumer(orch)

	require.NoError(t, store.WorkflowRepository().SaveWorkflow(ctx, linearWorkflow("record")))

	// The lease survives the trigger and the first action, then the third
	// renewal fails: the drive must stop before dispatching step-2.
	_, err = orch.StartExecution(ctx, "wf-linear", "start", nil)
	require.ErrorIs(t, err, lock.ErrNotHeld)
	assert.Equal(t, []string{"step-1"}, visited)
}

func TestRetryFromNodeReruns(t *testing.T) {
	ctx := context.Background()

	attempts := 0

	h := newHarness(t, map[string]dispatch.NodeExecutor{
		"flaky": &stubExecutor{fn: func(_ context.Context, _ *execution.Context, _ *models.WorkflowNode) (*dispatch.Result, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("boom")
			}

			return &dispatch.Result{}, nil
		}},
	})

	wf := &models.Workflow{
		ID:     "wf-replay",
		Name:   "replay",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			node("start", models.NodeTypeTrigger, models.TriggerKindWebhook),
			node("fetch", models.NodeTypeAction, "flaky"),
		},
		Connections: connect([2]string{"start:main", "fetch:main"}),
	}
	saveWorkflow(t, h, wf)

	exec, err := h.orch.StartExecution(ctx, "wf-replay", "start", nil)
	require.NoError(t, err)

	failed, err := h.store.ExecutionRepository().ExecutionByID(ctx, exec.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusFailed, failed.Status)

	require.NoError(t, h.orch.RetryFromNode(ctx, exec.ID, "fetch"))
	assert.Equal(t, 2, attempts)

	done, err := h.store.ExecutionRepository().ExecutionByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, done.Status)
}

func TestForceFailStuckExecution(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, map[string]dispatch.NodeExecutor{
		"park": &stubExecutor{fn: func(_ context.Context, _ *execution.Context, _ *models.WorkflowNode) (*dispatch.Result, error) {
			return &dispatch.Result{Suspend: &dispatch.Suspension{
				Expectations: []models.EventExpectation{{Kind: models.EventKindAPIResponse, Required: true}},
				Policy:       models.AggregationPolicyAll,
			}}, nil
		}},
	})

	wf := &models.Workflow{
		ID:     "wf-stuck",
		Name:   "stuck",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			node("start", models.NodeTypeTrigger, models.TriggerKindWebhook),
			node("hold", models.NodeTypeAction, "park"),
		},
		Connections: connect([2]string{"start:main", "hold:main"}),
	}
	saveWorkflow(t, h, wf)

	exec, err := h.orch.StartExecution(ctx, "wf-stuck", "start", nil)
	require.NoError(t, err)

	require.NoError(t, h.orch.ForceFail(ctx, exec.ID, "stuck beyond recovery threshold"))

	failed, err := h.store.ExecutionRepository().ExecutionByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, failed.Status)
	assert.Equal(t, "stuck beyond recovery threshold", failed.ErrorMessage)

	waits, err := h.store.WaitStateRepository().ActiveWaitStatesByExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Empty(t, waits)
}

func TestStartExecutionRejectsUnknownTrigger(t *testing.T) {
	h := newHarness(t, map[string]dispatch.NodeExecutor{})

	wf := &models.Workflow{
		ID:     "wf-bad",
		Name:   "bad",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			node("step", models.NodeTypeAction, "record"),
		},
	}
	saveWorkflow(t, h, wf)

	_, err := h.orch.StartExecution(context.Background(), "wf-bad", "missing", nil)
	assert.Error(t, err)
}
