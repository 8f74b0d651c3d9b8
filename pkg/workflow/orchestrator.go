// Package workflow drives graph traversal for executions: dispatching nodes,
// applying branch decisions, and suspending/resuming around wait states.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cascadehq/cascade/pkg/dispatch"
	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/events"
	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/lock"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/google/uuid"
)

var (
	// ErrExecutionBusy means another instance currently drives the execution.
	ErrExecutionBusy = errors.New("execution is locked by another instance")
	ErrTerminal      = errors.New("execution is in a terminal state")
)

// WaitRegistrar creates durable wait states for suspensions and feeds the
// delay event back in. Satisfied by the aggregation service.
type WaitRegistrar interface {
	RegisterWaitState(ctx context.Context, executionID, nodeID string, susp *dispatch.Suspension) (*models.ExecutionWaitState, error)
	MarkDelayElapsed(ctx context.Context, waitStateID string) error
}

// RetryPlanner records durable retry intents. Satisfied by the retry
// scheduler; set after construction because the scheduler redispatches
// through the orchestrator.
type RetryPlanner interface {
	Schedule(ctx context.Context, schedule *models.RetrySchedule) error
}

// Orchestrator is the state machine over a workflow's nodes. All driving
// happens under the execution's distributed lock; suspension releases the
// lock with nothing blocked on the wall clock.
type Orchestrator struct {
	logger     *slog.Logger
	store      persistence.Persistence
	dispatcher *dispatch.Dispatcher
	waits      WaitRegistrar
	locker     lock.Locker
	cache      *execution.Cache
	bus        eventbus.EventPublisher
	workerID   string
	lockTTL    time.Duration

	retryMu sync.RWMutex
	retry   RetryPlanner

	// activeRetries tracks the schedule currently being redispatched per
	// execution, so a repeated failure of the retried target is charged
	// against that schedule's budget instead of opening a new one.
	activeMu      sync.Mutex
	activeRetries map[string]*models.RetrySchedule

	timerMu sync.Mutex
	timers  map[string]*time.Timer
}

func NewOrchestrator(
	logger *slog.Logger,
	store persistence.Persistence,
	dispatcher *dispatch.Dispatcher,
	waits WaitRegistrar,
	locker lock.Locker,
	bus eventbus.EventPublisher,
	workerID string,
	lockTTL time.Duration,
) *Orchestrator {
	return &Orchestrator{
		logger:     logger.With("module", "workflow"),
		store:      store,
		dispatcher: dispatcher,
		waits:      waits,
		locker:     locker,
		cache:      execution.NewCache(),
		bus:        bus,
		workerID:   workerID,
		lockTTL:    lockTTL,

		activeRetries: make(map[string]*models.RetrySchedule),
		timers:        make(map[string]*time.Timer),
	}
}

// SetRetryPlanner wires the retry scheduler. Without one, node failures fail
// the execution regardless of retry configuration.
func (o *Orchestrator) SetRetryPlanner(planner RetryPlanner) {
	o.retryMu.Lock()
	defer o.retryMu.Unlock()

	o.retry = planner
}

func (o *Orchestrator) retryPlanner() RetryPlanner {
	o.retryMu.RLock()
	defer o.retryMu.RUnlock()

	return o.retry
}

func (o *Orchestrator) setActiveRetry(executionID string, schedule *models.RetrySchedule) {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()

	o.activeRetries[executionID] = schedule
}

func (o *Orchestrator) clearActiveRetry(executionID string) {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()

	delete(o.activeRetries, executionID)
}

func (o *Orchestrator) activeRetry(executionID string) *models.RetrySchedule {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()

	return o.activeRetries[executionID]
}

// retryCoversNode reports whether a failure at the node belongs to the
// schedule: node-level schedules cover their target node, execution-level
// schedules cover every node of the re-run.
func retryCoversNode(schedule *models.RetrySchedule, nodeID string) bool {
	if schedule.TargetType == models.RetryTargetExecution {
		return true
	}

	return schedule.TargetID == nodeID
}

// StartExecution creates a running execution for the workflow and drives it
// from the firing trigger node.
func (o *Orchestrator) StartExecution(ctx context.Context, workflowID, triggerNodeID string, triggerData map[string]any) (*models.Execution, error) {
	wf, err := o.store.WorkflowRepository().WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	trigger := wf.NodeByID(triggerNodeID)
	if trigger == nil || !trigger.IsTriggerNode() {
		return nil, fmt.Errorf("workflow %s has no trigger node %q", workflowID, triggerNodeID)
	}

	now := time.Now().UTC()
	exec := &models.Execution{
		ID:            uuid.New().String(),
		WorkflowID:    workflowID,
		TriggerNodeID: &triggerNodeID,
		Status:        models.ExecutionStatusRunning,
		StartedAt:     now,
		TriggerData:   triggerData,
		UpdatedAt:     now,
	}

	if err := o.store.ExecutionRepository().CreateExecution(ctx, exec); err != nil {
		return nil, err
	}

	execCtx := execution.NewContext(exec.ID, workflowID)
	execCtx.SetVariables(wf.Variables)
	execCtx.SetTriggerInput(triggerNodeID, triggerData)

	o.publish(ctx, wf.ID, &events.ExecutionStarted{
		BaseEvent:   o.baseEvent(events.ExecutionStartedEvent, wf.ID),
		ExecutionID: exec.ID,
	})

	err = o.withLock(ctx, exec.ID, func() error {
		return o.drive(ctx, wf, exec, execCtx, triggerNodeID)
	})
	if err != nil {
		return exec, err
	}

	return exec, nil
}

// Resume continues a suspended execution once its wait state resolved. Safe
// to call from racing paths: the suspension pointer check under the lock
// makes the continuation exactly-once, so completed nodes never re-run.
func (o *Orchestrator) Resume(ctx context.Context, waitStateID string) error {
	o.cancelTimer(waitStateID)

	ws, err := o.store.WaitStateRepository().WaitStateByID(ctx, waitStateID)
	if err != nil {
		return err
	}

	if ws.Status == models.WaitStatusWaiting {
		return fmt.Errorf("wait state %s is not resolved yet", waitStateID)
	}

	return o.withLock(ctx, ws.ExecutionID, func() error {
		exec, err := o.store.ExecutionRepository().ExecutionByID(ctx, ws.ExecutionID)
		if err != nil {
			return err
		}

		if exec.Status.IsTerminal() {
			return nil
		}

		execCtx, err := o.contextFor(exec)
		if err != nil {
			return err
		}

		sp := execCtx.Suspension()
		if sp == nil || sp.WaitStateID != waitStateID {
			// Another caller already resumed this wait state.
			return nil
		}

		wf, err := o.store.WorkflowRepository().WorkflowByID(ctx, exec.WorkflowID)
		if err != nil {
			return err
		}

		output := ws.AggregatedPayload()
		if ws.Status == models.WaitStatusTimeout {
			output["timed_out"] = true
		}

		execCtx.SetNodeOutput(ws.NodeID, output)
		execCtx.ClearSuspension()

		o.finishSuspendedAudit(ctx, exec.ID, ws.NodeID)

		exec.Status = models.ExecutionStatusRunning
		exec.NodesExecuted++
		exec.UpdatedAt = time.Now().UTC()
		exec.ContextSnapshot = execCtx.Snapshot()

		if err := o.store.ExecutionRepository().UpdateExecution(ctx, exec); err != nil {
			return err
		}

		o.publish(ctx, wf.ID, &events.ExecutionResumed{
			BaseEvent:   o.baseEvent(events.ExecutionResumedEvent, wf.ID),
			ExecutionID: exec.ID,
			NodeID:      ws.NodeID,
			WaitStateID: ws.ID,
		})

		next := wf.NextNodeID(ws.NodeID, models.PortMain)
		if next == "" {
			return o.complete(ctx, wf, exec, execCtx)
		}

		return o.drive(ctx, wf, exec, execCtx, next)
	})
}

// Cancel force-terminates a non-terminal execution and fails its active
// wait states.
func (o *Orchestrator) Cancel(ctx context.Context, executionID, cancelledBy, reason string) error {
	return o.withLock(ctx, executionID, func() error {
		exec, err := o.store.ExecutionRepository().ExecutionByID(ctx, executionID)
		if err != nil {
			return err
		}

		if exec.Status.IsTerminal() {
			return fmt.Errorf("%w: execution %s is %s", ErrTerminal, executionID, exec.Status)
		}

		now := time.Now().UTC()
		exec.MarkCancelled(now, cancelledBy, reason)

		if err := o.store.ExecutionRepository().UpdateExecution(ctx, exec); err != nil {
			return err
		}

		o.failActiveWaitStates(ctx, executionID)
		o.cache.Delete(executionID)

		o.publish(ctx, exec.WorkflowID, &events.ExecutionCancelled{
			BaseEvent:   o.baseEvent(events.ExecutionCancelledEvent, exec.WorkflowID),
			ExecutionID: executionID,
			CancelledBy: cancelledBy,
			Reason:      reason,
		})

		return nil
	})
}

// Redispatch re-enters the execution at a retried target. Called by the
// retry scheduler once a schedule's backoff elapses; a returned error means
// the attempt failed and counts against the schedule's budget.
func (o *Orchestrator) Redispatch(ctx context.Context, schedule *models.RetrySchedule) error {
	return o.withLock(ctx, schedule.ExecutionID, func() error {
		o.setActiveRetry(schedule.ExecutionID, schedule)
		defer o.clearActiveRetry(schedule.ExecutionID)

		exec, err := o.store.ExecutionRepository().ExecutionByID(ctx, schedule.ExecutionID)
		if err != nil {
			return err
		}

		if exec.Status.IsTerminal() {
			return nil
		}

		wf, err := o.store.WorkflowRepository().WorkflowByID(ctx, exec.WorkflowID)
		if err != nil {
			return err
		}

		execCtx, err := o.contextFor(exec)
		if err != nil {
			return err
		}

		startNodeID := schedule.TargetID
		if schedule.TargetType == models.RetryTargetExecution {
			if exec.TriggerNodeID == nil {
				return fmt.Errorf("execution %s has no trigger node to retry from", exec.ID)
			}

			startNodeID = *exec.TriggerNodeID
		}

		exec.Status = models.ExecutionStatusRunning
		exec.ErrorMessage = ""
		exec.ErrorDetails = nil
		exec.UpdatedAt = time.Now().UTC()

		if err := o.store.ExecutionRepository().UpdateExecution(ctx, exec); err != nil {
			return err
		}

		return o.drive(ctx, wf, exec, execCtx, startNodeID)
	})
}

// RetryFromNode re-enters a failed execution at the given node, clearing the
// recorded error. Exposed for the operator retry/replay surface.
func (o *Orchestrator) RetryFromNode(ctx context.Context, executionID, nodeID string) error {
	return o.withLock(ctx, executionID, func() error {
		exec, err := o.store.ExecutionRepository().ExecutionByID(ctx, executionID)
		if err != nil {
			return err
		}

		if exec.Status != models.ExecutionStatusFailed && !exec.Status.IsResumable() {
			return fmt.Errorf("%w: execution %s is %s", ErrTerminal, executionID, exec.Status)
		}

		wf, err := o.store.WorkflowRepository().WorkflowByID(ctx, exec.WorkflowID)
		if err != nil {
			return err
		}

		if wf.NodeByID(nodeID) == nil {
			return fmt.Errorf("workflow %s has no node %q", wf.ID, nodeID)
		}

		execCtx, err := o.contextFor(exec)
		if err != nil {
			return err
		}

		execCtx.ClearSuspension()

		exec.Status = models.ExecutionStatusRunning
		exec.ErrorMessage = ""
		exec.ErrorDetails = nil
		exec.CompletedAt = nil
		exec.UpdatedAt = time.Now().UTC()

		if err := o.store.ExecutionRepository().UpdateExecution(ctx, exec); err != nil {
			return err
		}

		return o.drive(ctx, wf, exec, execCtx, nodeID)
	})
}

// ForceFail moves a stuck execution to failed without driving it. Used by
// the recovery sweep when an execution has been dead past the hard
// threshold.
func (o *Orchestrator) ForceFail(ctx context.Context, executionID, reason string) error {
	return o.withLock(ctx, executionID, func() error {
		exec, err := o.store.ExecutionRepository().ExecutionByID(ctx, executionID)
		if err != nil {
			return err
		}

		if exec.Status.IsTerminal() {
			return nil
		}

		now := time.Now().UTC()
		exec.MarkFailed(now, reason, nil)

		if err := o.store.ExecutionRepository().UpdateExecution(ctx, exec); err != nil {
			return err
		}

		o.failActiveWaitStates(ctx, executionID)
		o.cache.Delete(executionID)

		o.publish(ctx, exec.WorkflowID, &events.ExecutionFailed{
			BaseEvent:   o.baseEvent(events.ExecutionFailedEvent, exec.WorkflowID),
			ExecutionID: executionID,
			Error:       reason,
			Duration:    time.Duration(exec.DurationMs) * time.Millisecond,
		})

		return nil
	})
}

// drive advances the graph from nodeID until completion, failure, or
// suspension. The caller holds the execution lock.
func (o *Orchestrator) drive(ctx context.Context, wf *models.Workflow, exec *models.Execution, execCtx *execution.Context, nodeID string) error {
	for nodeID != "" {
		// Keep the lease ahead of each dispatch: a slow node chain must not
		// outlive the TTL while the instance keeps driving.
		if err := o.locker.Renew(ctx, exec.ID, o.lockTTL); err != nil {
			if errors.Is(err, lock.ErrNotHeld) {
				return fmt.Errorf("lost execution lock for %s: %w", exec.ID, err)
			}

			o.logger.WarnContext(ctx, "Failed to renew execution lock",
				"execution_id", exec.ID,
				"error", err)
		}

		node := wf.NodeByID(nodeID)
		if node == nil {
			return o.fail(ctx, wf, exec, execCtx, "", fmt.Sprintf("workflow %s has no node %q", wf.ID, nodeID), nil)
		}

		if !node.Enabled {
			nodeID = wf.NextNodeID(node.ID, models.PortMain)

			continue
		}

		audit := o.startAudit(ctx, exec, node)

		result, err := o.dispatcher.Dispatch(ctx, execCtx, node)
		if err != nil {
			o.finishAudit(ctx, audit, models.NodeExecutionStatusFailed, nil, err.Error())
			o.publish(ctx, wf.ID, &events.NodeFailed{
				BaseEvent:   o.baseEvent(events.NodeFailedEvent, wf.ID),
				ExecutionID: exec.ID,
				NodeID:      node.ID,
				NodeKind:    node.Kind,
				Sequence:    audit.Sequence,
				Error:       err.Error(),
			})

			return o.handleNodeFailure(ctx, wf, exec, execCtx, node, err)
		}

		if result.Suspend != nil {
			return o.suspend(ctx, wf, exec, execCtx, node, audit, result.Suspend)
		}

		execCtx.SetNodeOutput(node.ID, result.Output)
		exec.NodesExecuted++
		exec.ContextSnapshot = execCtx.Snapshot()
		exec.UpdatedAt = time.Now().UTC()

		if err := o.store.ExecutionRepository().UpdateExecution(ctx, exec); err != nil {
			return err
		}

		o.finishAudit(ctx, audit, models.NodeExecutionStatusSucceeded, result.Output, "")
		o.publish(ctx, wf.ID, &events.NodeFinished{
			BaseEvent:   o.baseEvent(events.NodeFinishedEvent, wf.ID),
			ExecutionID: exec.ID,
			NodeID:      node.ID,
			NodeKind:    node.Kind,
			Sequence:    audit.Sequence,
			Branch:      result.Branch,
			Output:      result.Output,
			DurationMs:  audit.DurationMs,
		})

		nodeID = wf.NextNodeID(node.ID, result.Branch)
	}

	return o.complete(ctx, wf, exec, execCtx)
}

// suspend persists everything resume needs, then returns with no goroutine
// parked: context into the cache and the durable snapshot, a wait state
// with the correlation handle, execution to paused.
func (o *Orchestrator) suspend(ctx context.Context, wf *models.Workflow, exec *models.Execution, execCtx *execution.Context, node *models.WorkflowNode, audit *models.NodeExecution, susp *dispatch.Suspension) error {
	ws, err := o.waits.RegisterWaitState(ctx, exec.ID, node.ID, susp)
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicateWaitState) {
			// A previous attempt already parked this node; resume handles it.
			return nil
		}

		return err
	}

	execCtx.Suspend(ws.ID, node.ID)
	o.cache.Put(execCtx)

	exec.Status = models.ExecutionStatusPaused
	exec.ContextSnapshot = execCtx.Snapshot()
	exec.UpdatedAt = time.Now().UTC()

	if err := o.store.ExecutionRepository().UpdateExecution(ctx, exec); err != nil {
		return err
	}

	o.finishAudit(ctx, audit, models.NodeExecutionStatusSuspended, nil, "")

	o.publish(ctx, wf.ID, &events.ExecutionPaused{
		BaseEvent:     o.baseEvent(events.ExecutionPausedEvent, wf.ID),
		ExecutionID:   exec.ID,
		NodeID:        node.ID,
		WaitStateID:   ws.ID,
		CorrelationID: ws.CorrelationID,
	})

	if susp.ResumeAt != nil {
		o.armDelayTimer(ws.ID, *susp.ResumeAt)
	}

	o.logger.InfoContext(ctx, "Execution suspended",
		"execution_id", exec.ID,
		"node_id", node.ID,
		"wait_state_id", ws.ID,
		"correlation_id", ws.CorrelationID)

	return nil
}

// handleNodeFailure schedules a durable retry when the node declares one and
// attempts remain, otherwise fails the execution. A failure of the target a
// live schedule is redispatching is reported back to the scheduler instead
// of opening a fresh schedule, so the attempt budget actually exhausts.
func (o *Orchestrator) handleNodeFailure(ctx context.Context, wf *models.Workflow, exec *models.Execution, execCtx *execution.Context, node *models.WorkflowNode, nodeErr error) error {
	if active := o.activeRetry(exec.ID); active != nil && retryCoversNode(active, node.ID) {
		o.cache.Put(execCtx)

		exec.Status = models.ExecutionStatusWaiting
		exec.ErrorMessage = nodeErr.Error()
		exec.ContextSnapshot = execCtx.Snapshot()
		exec.UpdatedAt = time.Now().UTC()

		if err := o.store.ExecutionRepository().UpdateExecution(ctx, exec); err != nil {
			return err
		}

		return fmt.Errorf("retry attempt at node %s: %w", node.ID, nodeErr)
	}

	planner := o.retryPlanner()

	schedule := retryScheduleFor(node, exec.ID)
	if planner == nil || schedule == nil {
		return o.fail(ctx, wf, exec, execCtx, node.ID, nodeErr.Error(), map[string]any{"node_id": node.ID})
	}

	if err := planner.Schedule(ctx, schedule); err != nil {
		o.logger.ErrorContext(ctx, "Failed to schedule retry",
			"execution_id", exec.ID,
			"node_id", node.ID,
			"error", err)

		return o.fail(ctx, wf, exec, execCtx, node.ID, nodeErr.Error(), map[string]any{"node_id": node.ID})
	}

	o.cache.Put(execCtx)

	exec.Status = models.ExecutionStatusWaiting
	exec.ErrorMessage = nodeErr.Error()
	exec.ContextSnapshot = execCtx.Snapshot()
	exec.UpdatedAt = time.Now().UTC()

	o.logger.InfoContext(ctx, "Node failure handed to retry scheduler",
		"execution_id", exec.ID,
		"node_id", node.ID,
		"schedule_id", schedule.ID,
		"max_attempts", schedule.MaxAttempts)

	return o.store.ExecutionRepository().UpdateExecution(ctx, exec)
}

func (o *Orchestrator) complete(ctx context.Context, wf *models.Workflow, exec *models.Execution, execCtx *execution.Context) error {
	now := time.Now().UTC()
	exec.ContextSnapshot = execCtx.Snapshot()
	exec.MarkCompleted(now)

	if err := o.store.ExecutionRepository().UpdateExecution(ctx, exec); err != nil {
		return err
	}

	o.cache.Delete(exec.ID)

	o.publish(ctx, wf.ID, &events.ExecutionCompleted{
		BaseEvent:   o.baseEvent(events.ExecutionCompletedEvent, wf.ID),
		ExecutionID: exec.ID,
		Duration:    time.Duration(exec.DurationMs) * time.Millisecond,
	})

	o.logger.InfoContext(ctx, "Execution completed",
		"execution_id", exec.ID,
		"workflow_id", wf.ID,
		"nodes_executed", exec.NodesExecuted,
		"duration_ms", exec.DurationMs)

	return nil
}

func (o *Orchestrator) fail(ctx context.Context, wf *models.Workflow, exec *models.Execution, execCtx *execution.Context, nodeID, message string, details map[string]any) error {
	now := time.Now().UTC()
	exec.ContextSnapshot = execCtx.Snapshot()
	exec.MarkFailed(now, message, details)

	if err := o.store.ExecutionRepository().UpdateExecution(ctx, exec); err != nil {
		return err
	}

	o.cache.Delete(exec.ID)

	o.publish(ctx, wf.ID, &events.ExecutionFailed{
		BaseEvent:   o.baseEvent(events.ExecutionFailedEvent, wf.ID),
		ExecutionID: exec.ID,
		NodeID:      nodeID,
		Error:       message,
		Duration:    time.Duration(exec.DurationMs) * time.Millisecond,
	})

	o.logger.ErrorContext(ctx, "Execution failed",
		"execution_id", exec.ID,
		"workflow_id", wf.ID,
		"node_id", nodeID,
		"error", message)

	return nil
}

// contextFor returns the live context from the cache or recovers it from the
// durable snapshot.
func (o *Orchestrator) contextFor(exec *models.Execution) (*execution.Context, error) {
	if execCtx, ok := o.cache.Get(exec.ID); ok {
		return execCtx, nil
	}

	execCtx, err := execution.Recover(exec)
	if err != nil {
		return nil, err
	}

	o.cache.Put(execCtx)

	return execCtx, nil
}

func (o *Orchestrator) withLock(ctx context.Context, executionID string, fn func() error) error {
	acquired, err := o.locker.Acquire(ctx, executionID, o.lockTTL)
	if err != nil {
		return err
	}

	if !acquired {
		return fmt.Errorf("%w: %s", ErrExecutionBusy, executionID)
	}

	defer func() {
		if err := o.locker.Release(ctx, executionID); err != nil && !errors.Is(err, lock.ErrNotHeld) {
			o.logger.ErrorContext(ctx, "Failed to release execution lock",
				"execution_id", executionID,
				"error", err)
		}
	}()

	return fn()
}

func (o *Orchestrator) startAudit(ctx context.Context, exec *models.Execution, node *models.WorkflowNode) *models.NodeExecution {
	sequence, err := o.store.NodeExecutionRepository().LatestSequence(ctx, exec.ID)
	if err != nil {
		o.logger.ErrorContext(ctx, "Failed to read audit sequence", "execution_id", exec.ID, "error", err)
	}

	audit := &models.NodeExecution{
		ID:          uuid.New().String(),
		ExecutionID: exec.ID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		NodeKind:    node.Kind,
		Sequence:    sequence + 1,
		Status:      models.NodeExecutionStatusRunning,
		StartedAt:   time.Now().UTC(),
		Input:       node.Config,
	}

	if err := o.store.NodeExecutionRepository().CreateNodeExecution(ctx, audit); err != nil {
		o.logger.ErrorContext(ctx, "Failed to create audit record",
			"execution_id", exec.ID,
			"node_id", node.ID,
			"error", err)
	}

	return audit
}

func (o *Orchestrator) finishAudit(ctx context.Context, audit *models.NodeExecution, status models.NodeExecutionStatus, output map[string]any, errMsg string) {
	audit.Finish(status, time.Now().UTC())
	audit.Output = output
	audit.Error = errMsg

	if err := o.store.NodeExecutionRepository().UpdateNodeExecution(ctx, audit); err != nil {
		o.logger.ErrorContext(ctx, "Failed to update audit record",
			"execution_id", audit.ExecutionID,
			"node_id", audit.NodeID,
			"error", err)
	}
}

// finishSuspendedAudit closes the suspended audit row of the node that just
// resumed.
func (o *Orchestrator) finishSuspendedAudit(ctx context.Context, executionID, nodeID string) {
	audits, err := o.store.NodeExecutionRepository().NodeExecutionsByExecution(ctx, executionID)
	if err != nil {
		o.logger.ErrorContext(ctx, "Failed to load audit records", "execution_id", executionID, "error", err)

		return
	}

	for i := len(audits) - 1; i >= 0; i-- {
		if audits[i].NodeID == nodeID && audits[i].Status == models.NodeExecutionStatusSuspended {
			o.finishAudit(ctx, audits[i], models.NodeExecutionStatusSucceeded, nil, "")

			return
		}
	}
}

// failActiveWaitStates resolves every outstanding wait state of a terminated
// execution so late events cannot resurrect it.
func (o *Orchestrator) failActiveWaitStates(ctx context.Context, executionID string) {
	waits, err := o.store.WaitStateRepository().ActiveWaitStatesByExecution(ctx, executionID)
	if err != nil {
		o.logger.ErrorContext(ctx, "Failed to load active wait states", "execution_id", executionID, "error", err)

		return
	}

	for _, ws := range waits {
		o.cancelTimer(ws.ID)

		ws.Status = models.WaitStatusFailed
		if err := o.store.WaitStateRepository().UpdateWaitState(ctx, ws); err != nil {
			o.logger.ErrorContext(ctx, "Failed to fail wait state",
				"wait_state_id", ws.ID,
				"execution_id", executionID,
				"error", err)
		}
	}
}

// armDelayTimer schedules the prompt same-instance resume of a delay wait.
// The due-delay sweep covers crashes and other instances; the version guard
// on the wait state makes the racing paths exactly-once.
func (o *Orchestrator) armDelayTimer(waitStateID string, resumeAt time.Time) {
	o.timerMu.Lock()
	defer o.timerMu.Unlock()

	if timer, ok := o.timers[waitStateID]; ok {
		timer.Stop()
	}

	o.timers[waitStateID] = time.AfterFunc(time.Until(resumeAt), func() {
		o.cancelTimer(waitStateID)

		ctx := context.Background()
		if err := o.waits.MarkDelayElapsed(ctx, waitStateID); err != nil {
			o.logger.Error("Delay timer resume failed", "wait_state_id", waitStateID, "error", err)
		}
	})
}

func (o *Orchestrator) cancelTimer(waitStateID string) {
	o.timerMu.Lock()
	defer o.timerMu.Unlock()

	if timer, ok := o.timers[waitStateID]; ok {
		timer.Stop()
		delete(o.timers, waitStateID)
	}
}

// Close stops all armed delay timers.
func (o *Orchestrator) Close() {
	o.timerMu.Lock()
	defer o.timerMu.Unlock()

	for id, timer := range o.timers {
		timer.Stop()
		delete(o.timers, id)
	}
}

func (o *Orchestrator) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, workflowID)
	base.WorkerID = o.workerID

	return base
}

func (o *Orchestrator) publish(ctx context.Context, key string, event eventbus.Event) {
	if o.bus == nil {
		return
	}

	if err := o.bus.Publish(ctx, key, event); err != nil {
		o.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"error", err)
	}
}

// retryScheduleFor builds a schedule from the node's retry configuration,
// nil when the node declares none.
func retryScheduleFor(node *models.WorkflowNode, executionID string) *models.RetrySchedule {
	raw, ok := node.Config["retry"].(map[string]any)
	if !ok {
		return nil
	}

	maxAttempts, ok := raw["max_attempts"].(float64)
	if !ok || maxAttempts < 1 {
		return nil
	}

	schedule := &models.RetrySchedule{
		TargetType:   models.RetryTargetNode,
		TargetID:     node.ID,
		ExecutionID:  executionID,
		Strategy:     models.RetryStrategyExponential,
		MaxAttempts:  int(maxAttempts),
		InitialDelay: 10 * time.Second,
	}

	if strategy, ok := raw["strategy"].(string); ok && strategy != "" {
		schedule.Strategy = models.RetryStrategy(strategy)
	}

	if initialDelay, ok := raw["initial_delay"].(string); ok {
		if d, err := time.ParseDuration(initialDelay); err == nil {
			schedule.InitialDelay = d
		}
	}

	if multiplier, ok := raw["multiplier"].(float64); ok {
		schedule.Multiplier = multiplier
	}

	if maxDelay, ok := raw["max_delay"].(string); ok {
		if d, err := time.ParseDuration(maxDelay); err == nil {
			schedule.MaxDelay = d
		}
	}

	return schedule
}
