package retry_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence/file"
	"github.com/cascadehq/cascade/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubRedispatcher struct {
	calls  int
	errs   []error
	failed []string
}

func (r *stubRedispatcher) Redispatch(ctx context.Context, schedule *models.RetrySchedule) error {
	r.calls++

	if len(r.errs) == 0 {
		return nil
	}

	err := r.errs[0]
	r.errs = r.errs[1:]

	return err
}

func (r *stubRedispatcher) ForceFail(ctx context.Context, executionID, reason string) error {
	r.failed = append(r.failed, executionID)

	return nil
}

func exponentialSchedule() *models.RetrySchedule {
	return &models.RetrySchedule{
		TargetType:   models.RetryTargetNode,
		TargetID:     "fetch",
		ExecutionID:  "exec-1",
		Strategy:     models.RetryStrategyExponential,
		MaxAttempts:  3,
		InitialDelay: 10 * time.Second,
		Multiplier:   2,
	}
}

func TestExponentialDelays(t *testing.T) {
	schedule := exponentialSchedule()

	for attempt, want := range map[int]time.Duration{
		1: 10 * time.Second,
		2: 20 * time.Second,
		3: 40 * time.Second,
	} {
		got, err := retry.NextDelay(schedule, attempt)
		require.NoError(t, err)
		assert.Equal(t, want, got, "attempt %d", attempt)
	}
}

func TestExponentialDelayCapped(t *testing.T) {
	schedule := exponentialSchedule()
	schedule.MaxDelay = 15 * time.Second

	got, err := retry.NextDelay(schedule, 3)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, got)
}

func TestFixedDelay(t *testing.T) {
	schedule := &models.RetrySchedule{Strategy: models.RetryStrategyFixed, InitialDelay: 5 * time.Second}

	for attempt := 1; attempt <= 3; attempt++ {
		got, err := retry.NextDelay(schedule, attempt)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, got)
	}
}

func TestCustomDelaysRepeatFinalEntry(t *testing.T) {
	schedule := &models.RetrySchedule{
		Strategy:     models.RetryStrategyCustom,
		CustomDelays: []time.Duration{time.Second, time.Minute},
	}

	got, err := retry.NextDelay(schedule, 1)
	require.NoError(t, err)
	assert.Equal(t, time.Second, got)

	got, err = retry.NextDelay(schedule, 5)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, got)
}

func newScheduler(t *testing.T, redispatcher retry.Redispatcher) (*retry.Scheduler, *file.Persistence) {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	scheduler := retry.NewScheduler(
		testLogger(),
		store.RetryScheduleRepository(),
		redispatcher,
		"worker-1",
		5*time.Minute,
		time.Second,
	)

	return scheduler, store
}

func TestScheduleSetsFirstBackoff(t *testing.T) {
	scheduler, store := newScheduler(t, &stubRedispatcher{})
	schedule := exponentialSchedule()

	before := time.Now().UTC()
	require.NoError(t, scheduler.Schedule(context.Background(), schedule))

	stored, err := store.RetryScheduleRepository().RetryScheduleByID(context.Background(), schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RetryStatusPending, stored.Status)
	assert.Equal(t, 0, stored.CurrentAttempt)
	assert.WithinDuration(t, before.Add(10*time.Second), stored.ScheduledAt, 5*time.Second)
}

func TestSweepRunsDueAttemptAndSucceeds(t *testing.T) {
	redispatcher := &stubRedispatcher{}
	scheduler, store := newScheduler(t, redispatcher)

	schedule := exponentialSchedule()
	schedule.InitialDelay = 0
	schedule.Strategy = models.RetryStrategyFixed
	require.NoError(t, scheduler.Schedule(context.Background(), schedule))

	require.NoError(t, scheduler.Sweep(context.Background()))

	assert.Equal(t, 1, redispatcher.calls)

	stored, err := store.RetryScheduleRepository().RetryScheduleByID(context.Background(), schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RetryStatusSucceeded, stored.Status)
	assert.Equal(t, 1, stored.CurrentAttempt)
	assert.Empty(t, stored.ClaimedBy)
	assert.NotNil(t, stored.LastAttemptAt)
}

func TestFailedAttemptReschedulesWithBackoff(t *testing.T) {
	redispatcher := &stubRedispatcher{errs: []error{errors.New("still down")}}
	scheduler, store := newScheduler(t, redispatcher)

	schedule := exponentialSchedule()
	schedule.InitialDelay = 0
	require.NoError(t, scheduler.Schedule(context.Background(), schedule))

	before := time.Now().UTC()
	require.NoError(t, scheduler.Sweep(context.Background()))

	stored, err := store.RetryScheduleRepository().RetryScheduleByID(context.Background(), schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RetryStatusPending, stored.Status)
	assert.Equal(t, 1, stored.CurrentAttempt)
	require.Len(t, stored.ErrorHistory, 1)
	assert.Equal(t, "still down", stored.ErrorHistory[0].Error)
	// Second attempt backs off by initial*multiplier, which is zero here
	// only because the initial delay is zero; with 10s it would be 20s.
	assert.True(t, !stored.ScheduledAt.Before(before))
}

func TestExhaustionAfterMaxAttempts(t *testing.T) {
	redispatcher := &stubRedispatcher{errs: []error{
		errors.New("attempt 1"),
		errors.New("attempt 2"),
		errors.New("attempt 3"),
	}}
	scheduler, store := newScheduler(t, redispatcher)

	schedule := exponentialSchedule()
	schedule.Strategy = models.RetryStrategyFixed
	schedule.InitialDelay = 0
	require.NoError(t, scheduler.Schedule(context.Background(), schedule))

	for range 3 {
		require.NoError(t, scheduler.Sweep(context.Background()))
	}

	assert.Equal(t, 3, redispatcher.calls)

	stored, err := store.RetryScheduleRepository().RetryScheduleByID(context.Background(), schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RetryStatusExhausted, stored.Status)
	assert.Equal(t, 3, stored.CurrentAttempt)
	assert.Len(t, stored.ErrorHistory, 3)
	assert.False(t, stored.AttemptsRemaining())

	// Exhaustion terminates the owning execution.
	assert.Equal(t, []string{"exec-1"}, redispatcher.failed)

	// An exhausted schedule is no longer picked up.
	require.NoError(t, scheduler.Sweep(context.Background()))
	assert.Equal(t, 3, redispatcher.calls)
}

func TestScheduleRequiresAttemptBudget(t *testing.T) {
	scheduler, _ := newScheduler(t, &stubRedispatcher{})

	schedule := exponentialSchedule()
	schedule.MaxAttempts = 0

	err := scheduler.Schedule(context.Background(), schedule)
	assert.ErrorContains(t, err, "max attempts")
}
