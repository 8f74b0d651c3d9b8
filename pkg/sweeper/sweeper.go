// Package sweeper runs the periodic recovery passes: stuck executions,
// expired wait states and due delay waits. Every pass is idempotent and
// safe to run on all instances at once; the wait-state compare-and-swap
// and the execution lock resolve concurrent pickups.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/robfig/cron/v3"
)

// ExecutionRecoverer is the slice of the orchestrator the sweeper drives.
type ExecutionRecoverer interface {
	Resume(ctx context.Context, waitStateID string) error
	ForceFail(ctx context.Context, executionID, reason string) error
}

// DelayMarker feeds elapsed delays back into aggregation.
type DelayMarker interface {
	MarkDelayElapsed(ctx context.Context, waitStateID string) error
}

// Config carries the sweep cadences and thresholds.
type Config struct {
	// Interval between sweep passes.
	Interval time.Duration
	// StuckThreshold is how long a running execution may go without an
	// update before it counts as stuck.
	StuckThreshold time.Duration
	// FailThreshold is how long past StuckThreshold an execution may stay
	// stuck before it is force-failed.
	FailThreshold time.Duration
}

// DefaultConfig mirrors the operational defaults.
func DefaultConfig() Config {
	return Config{
		Interval:       30 * time.Second,
		StuckThreshold: 5 * time.Minute,
		FailThreshold:  30 * time.Minute,
	}
}

// Sweeper schedules the recovery passes on a cron runner.
type Sweeper struct {
	logger   *slog.Logger
	store    persistence.Persistence
	recover  ExecutionRecoverer
	delays   DelayMarker
	config   Config
	workerID string
	cron     *cron.Cron
}

func New(logger *slog.Logger, store persistence.Persistence, recoverer ExecutionRecoverer, delays DelayMarker, workerID string, config Config) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}

	if config.StuckThreshold <= 0 {
		config.StuckThreshold = DefaultConfig().StuckThreshold
	}

	if config.FailThreshold <= 0 {
		config.FailThreshold = DefaultConfig().FailThreshold
	}

	return &Sweeper{
		logger:   logger.With("module", "sweeper"),
		store:    store,
		recover:  recoverer,
		delays:   delays,
		config:   config,
		workerID: workerID,
	}
}

// Start schedules the sweep on a cron runner until Stop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	spec := fmt.Sprintf("@every %s", s.config.Interval)

	if _, err := s.cron.AddFunc(spec, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Sweeper started", "interval", s.config.Interval, "worker_id", s.workerID)

	return nil
}

// Stop halts the cron runner, waiting for an in-flight pass.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep runs all three passes once. Exposed for tests and manual triggering.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.sweepDueDelays(ctx)
	s.sweepExpiredWaitStates(ctx)
	s.sweepStuckExecutions(ctx)
}

// sweepDueDelays resumes delay waits whose deadline passed. This is the
// cross-instance fallback behind the local delay timers: losing the race
// against a timer surfaces as an already-resolved wait state, not an error.
func (s *Sweeper) sweepDueDelays(ctx context.Context) {
	due, err := s.store.WaitStateRepository().ListDueDelays(ctx, time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list due delay waits", "error", err)

		return
	}

	for _, ws := range due {
		if err := s.delays.MarkDelayElapsed(ctx, ws.ID); err != nil {
			s.logger.WarnContext(ctx, "Failed to mark delay elapsed",
				"wait_state_id", ws.ID,
				"execution_id", ws.ExecutionID,
				"error", err)
		}
	}

	if len(due) > 0 {
		s.logger.InfoContext(ctx, "Swept due delay waits", "count", len(due))
	}
}

// sweepExpiredWaitStates moves expired waiting rows to timeout under the
// version guard, then applies the wait's timeout policy: continue resumes
// the execution with the partial payload, fail fails it.
func (s *Sweeper) sweepExpiredWaitStates(ctx context.Context) {
	expired, err := s.store.WaitStateRepository().ListExpired(ctx, time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list expired wait states", "error", err)

		return
	}

	for _, ws := range expired {
		if err := s.timeOutWaitState(ctx, ws); err != nil {
			s.logger.WarnContext(ctx, "Failed to time out wait state",
				"wait_state_id", ws.ID,
				"execution_id", ws.ExecutionID,
				"error", err)
		}
	}
}

func (s *Sweeper) timeOutWaitState(ctx context.Context, ws *models.ExecutionWaitState) error {
	if ws.Status.IsTerminal() {
		return nil
	}

	ws.Status = models.WaitStatusTimeout

	if err := s.store.WaitStateRepository().UpdateWaitState(ctx, ws); err != nil {
		if errors.Is(err, persistence.ErrVersionConflict) {
			// A concurrent delivery or another instance got there first.
			return nil
		}

		return err
	}

	s.logger.InfoContext(ctx, "Wait state timed out",
		"wait_state_id", ws.ID,
		"execution_id", ws.ExecutionID,
		"on_timeout", ws.OnTimeout)

	if ws.OnTimeout == models.TimeoutPolicyContinue {
		return s.recover.Resume(ctx, ws.ID)
	}

	return s.recover.ForceFail(ctx, ws.ExecutionID,
		fmt.Sprintf("wait state %s timed out at node %s", ws.ID, ws.NodeID))
}

// sweepStuckExecutions force-fails non-terminal executions whose last update
// is older than the hard threshold. Paused executions stay alive while a
// wait state claims them (expiry governs those), and waiting executions stay
// alive while a retry schedule still owns the next attempt; a stale one
// without either is orphaned and force-failed.
func (s *Sweeper) sweepStuckExecutions(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-(s.config.StuckThreshold + s.config.FailThreshold))

	stale, err := s.store.ExecutionRepository().ListStale(ctx,
		[]models.ExecutionStatus{
			models.ExecutionStatusRunning,
			models.ExecutionStatusWaiting,
			models.ExecutionStatusPaused,
		}, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list stale executions", "error", err)

		return
	}

	for _, exec := range stale {
		claimed, err := s.executionClaimed(ctx, exec)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to check stale execution claims",
				"execution_id", exec.ID,
				"error", err)

			continue
		}

		if claimed {
			continue
		}

		reason := fmt.Sprintf("execution stuck in %s since %s", exec.Status, exec.UpdatedAt.Format(time.RFC3339))

		if err := s.recover.ForceFail(ctx, exec.ID, reason); err != nil {
			s.logger.WarnContext(ctx, "Failed to force-fail stuck execution",
				"execution_id", exec.ID,
				"error", err)

			continue
		}

		s.logger.WarnContext(ctx, "Force-failed stuck execution",
			"execution_id", exec.ID,
			"workflow_id", exec.WorkflowID,
			"stale_since", exec.UpdatedAt)
	}
}

// executionClaimed reports whether something still owns the execution's next
// transition: an active wait state for paused, a live retry schedule for
// waiting. Running executions are never claimed.
func (s *Sweeper) executionClaimed(ctx context.Context, exec *models.Execution) (bool, error) {
	switch exec.Status {
	case models.ExecutionStatusPaused:
		waits, err := s.store.WaitStateRepository().ActiveWaitStatesByExecution(ctx, exec.ID)
		if err != nil {
			return false, err
		}

		return len(waits) > 0, nil
	case models.ExecutionStatusWaiting:
		schedules, err := s.store.RetryScheduleRepository().ActiveRetrySchedulesByExecution(ctx, exec.ID)
		if err != nil {
			return false, err
		}

		return len(schedules) > 0, nil
	default:
		return false, nil
	}
}
