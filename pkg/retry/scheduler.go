package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/google/uuid"
)

// Redispatcher re-runs a schedule's target. The scheduler owns the schedule
// bookkeeping; the redispatcher owns the actual re-execution. A Redispatch
// error means the attempt failed and is charged against the budget;
// ForceFail terminates the owning execution once the budget is spent.
type Redispatcher interface {
	Redispatch(ctx context.Context, schedule *models.RetrySchedule) error
	ForceFail(ctx context.Context, executionID, reason string) error
}

// Scheduler claims due retry schedules and drives their attempts. Claims go
// through the version-guarded update, so of N instances sweeping the same
// rows exactly one wins each schedule; a claim left behind by a dead
// instance is reclaimed after the stale-claim threshold.
type Scheduler struct {
	logger       *slog.Logger
	repo         persistence.RetryScheduleRepository
	redispatcher Redispatcher
	workerID     string
	staleClaim   time.Duration
	interval     time.Duration
}

func NewScheduler(
	logger *slog.Logger,
	repo persistence.RetryScheduleRepository,
	redispatcher Redispatcher,
	workerID string,
	staleClaim time.Duration,
	interval time.Duration,
) *Scheduler {
	return &Scheduler{
		logger:       logger.With("module", "retry"),
		repo:         repo,
		redispatcher: redispatcher,
		workerID:     workerID,
		staleClaim:   staleClaim,
		interval:     interval,
	}
}

// Schedule records a new retry intent for a failed target. The first attempt
// is scheduled one backoff delay from now.
func (s *Scheduler) Schedule(ctx context.Context, schedule *models.RetrySchedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}

	if schedule.MaxAttempts <= 0 {
		return errors.New("max attempts must be positive")
	}

	delay, err := NextDelay(schedule, 1)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	schedule.Status = models.RetryStatusPending
	schedule.CurrentAttempt = 0
	schedule.ScheduledAt = now.Add(delay)
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	schedule.Version = 1

	return s.repo.CreateRetrySchedule(ctx, schedule)
}

// Run sweeps for due schedules until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Retry sweep failed", "error", err)
			}
		}
	}
}

// Sweep claims every due schedule and runs one attempt each.
func (s *Scheduler) Sweep(ctx context.Context) error {
	due, err := s.repo.ListDue(ctx, time.Now().UTC(), s.staleClaim)
	if err != nil {
		return fmt.Errorf("list due retry schedules: %w", err)
	}

	for _, schedule := range due {
		if err := s.runAttempt(ctx, schedule); err != nil {
			s.logger.ErrorContext(ctx, "Retry attempt failed",
				"schedule_id", schedule.ID,
				"execution_id", schedule.ExecutionID,
				"error", err)
		}
	}

	return nil
}

func (s *Scheduler) runAttempt(ctx context.Context, schedule *models.RetrySchedule) error {
	claimed, err := s.claim(ctx, schedule)
	if err != nil {
		return err
	}

	if !claimed {
		return nil
	}

	attempt := schedule.CurrentAttempt + 1

	s.logger.InfoContext(ctx, "Running retry attempt",
		"schedule_id", schedule.ID,
		"target_type", schedule.TargetType,
		"target_id", schedule.TargetID,
		"attempt", attempt,
		"max_attempts", schedule.MaxAttempts)

	dispatchErr := s.redispatcher.Redispatch(ctx, schedule)

	now := time.Now().UTC()
	schedule.CurrentAttempt = attempt
	schedule.LastAttemptAt = &now
	schedule.ClaimedBy = ""
	schedule.ClaimedAt = nil

	if dispatchErr == nil {
		schedule.Status = models.RetryStatusSucceeded

		return s.update(ctx, schedule)
	}

	schedule.RecordError(attempt, dispatchErr.Error(), now)

	if !schedule.AttemptsRemaining() {
		schedule.Status = models.RetryStatusExhausted

		if err := s.update(ctx, schedule); err != nil {
			return err
		}

		reason := fmt.Sprintf("retry budget exhausted after %d attempts: %s", attempt, dispatchErr)
		if err := s.redispatcher.ForceFail(ctx, schedule.ExecutionID, reason); err != nil {
			s.logger.ErrorContext(ctx, "Failed to fail execution after retry exhaustion",
				"schedule_id", schedule.ID,
				"execution_id", schedule.ExecutionID,
				"error", err)
		}

		return fmt.Errorf("%w after %d attempts: %s", ErrExhausted, attempt, dispatchErr)
	}

	delay, err := NextDelay(schedule, attempt+1)
	if err != nil {
		return err
	}

	schedule.Status = models.RetryStatusPending
	schedule.ScheduledAt = now.Add(delay)

	return s.update(ctx, schedule)
}

// claim moves the schedule to in_progress under this worker. A version
// conflict means another instance won the row; that is not an error.
func (s *Scheduler) claim(ctx context.Context, schedule *models.RetrySchedule) (bool, error) {
	now := time.Now().UTC()
	schedule.Status = models.RetryStatusInProgress
	schedule.ClaimedBy = s.workerID
	schedule.ClaimedAt = &now

	err := s.repo.UpdateRetrySchedule(ctx, schedule)
	if err != nil {
		if errors.Is(err, persistence.ErrVersionConflict) {
			return false, nil
		}

		return false, fmt.Errorf("claim retry schedule %s: %w", schedule.ID, err)
	}

	return true, nil
}

func (s *Scheduler) update(ctx context.Context, schedule *models.RetrySchedule) error {
	if err := s.repo.UpdateRetrySchedule(ctx, schedule); err != nil {
		return fmt.Errorf("update retry schedule %s: %w", schedule.ID, err)
	}

	return nil
}
