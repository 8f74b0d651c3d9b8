package aggregation_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/cascadehq/cascade/pkg/aggregation"
	"github.com/cascadehq/cascade/pkg/dispatch"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingResumer struct {
	resumed []string
}

func (r *recordingResumer) Resume(ctx context.Context, waitStateID string) error {
	r.resumed = append(r.resumed, waitStateID)

	return nil
}

func newService(t *testing.T) (*aggregation.Service, persistence.WaitStateRepository, *recordingResumer) {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	service := aggregation.NewService(testLogger(), store.WaitStateRepository())
	resumer := &recordingResumer{}
	service.SetResumer(resumer)

	return service, store.WaitStateRepository(), resumer
}

func TestAPIResponseSatisfiesSingleRequiredEvent(t *testing.T) {
	ctx := context.Background()
	service, waits, resumer := newService(t)

	ws, err := service.RegisterWaitState(ctx, "exec-1", "await", &dispatch.Suspension{
		Expectations: []models.EventExpectation{
			{Kind: models.EventKindAPIResponse, Required: true},
		},
		Policy:    models.AggregationPolicyRequired,
		OnTimeout: models.TimeoutPolicyFail,
	})
	require.NoError(t, err)
	require.NotEmpty(t, ws.CorrelationID)

	err = service.HandleAPIResponse(ctx, "exec-1", ws.CorrelationID, map[string]any{"foo": "bar"})
	require.NoError(t, err)

	stored, err := waits.WaitStateByID(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitStatusCompleted, stored.Status)
	assert.Equal(t, map[string]any{
		"api_response": map[string]any{"foo": "bar"},
	}, stored.AggregatedPayload())

	assert.Equal(t, []string{ws.ID}, resumer.resumed)
}

func TestAllPolicyWaitsForEveryKind(t *testing.T) {
	ctx := context.Background()
	service, waits, resumer := newService(t)

	ws, err := service.RegisterWaitState(ctx, "exec-1", "await", &dispatch.Suspension{
		CorrelationID: "order-7",
		Expectations: []models.EventExpectation{
			{Kind: models.EventKindAPIResponse, Required: true},
			{Kind: models.EventKindKafkaEvent, Required: true, Topic: "payments.settled"},
		},
		Policy: models.AggregationPolicyAll,
	})
	require.NoError(t, err)

	require.NoError(t, service.HandleAPIResponse(ctx, "exec-1", "order-7", map[string]any{"ok": true}))
	assert.Empty(t, resumer.resumed)

	stored, err := waits.WaitStateByID(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitStatusWaiting, stored.Status)
	assert.True(t, stored.HasReceived(models.EventKindAPIResponse))

	require.NoError(t, service.HandleKafkaEvent(ctx, "payments.settled", map[string]any{
		"correlation_id": "order-7",
		"amount":         float64(99),
	}))

	stored, err = waits.WaitStateByID(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitStatusCompleted, stored.Status)
	assert.Equal(t, []string{ws.ID}, resumer.resumed)
}

func TestAnyPolicySatisfiedByFirstEvent(t *testing.T) {
	ctx := context.Background()
	service, _, resumer := newService(t)

	ws, err := service.RegisterWaitState(ctx, "exec-1", "await", &dispatch.Suspension{
		CorrelationID: "race-1",
		Expectations: []models.EventExpectation{
			{Kind: models.EventKindAPIResponse, Required: true},
			{Kind: models.EventKindKafkaEvent, Required: true, Topic: "backup"},
		},
		Policy: models.AggregationPolicyAny,
	})
	require.NoError(t, err)

	require.NoError(t, service.HandleAPIResponse(ctx, "", "race-1", map[string]any{"winner": "api"}))
	assert.Equal(t, []string{ws.ID}, resumer.resumed)

	// The losing event finds the wait state already resolved.
	err = service.HandleKafkaEvent(ctx, "backup", map[string]any{"correlation_id": "race-1"})
	assert.ErrorIs(t, err, aggregation.ErrWaitStateResolved)
	assert.Len(t, resumer.resumed, 1)
}

func TestKafkaEventMatchedByExecutionAndFilter(t *testing.T) {
	ctx := context.Background()
	service, waits, _ := newService(t)

	ws, err := service.RegisterWaitState(ctx, "exec-9", "await", &dispatch.Suspension{
		Expectations: []models.EventExpectation{
			{
				Kind:     models.EventKindKafkaEvent,
				Required: true,
				Topic:    "shipments",
				Filter:   map[string]any{"order_id": "ord-1"},
			},
		},
		Policy: models.AggregationPolicyAll,
	})
	require.NoError(t, err)

	// Filter mismatch leaves the wait state untouched.
	err = service.HandleKafkaEvent(ctx, "shipments", map[string]any{
		"execution_id": "exec-9",
		"order_id":     "ord-2",
	})
	assert.ErrorIs(t, err, aggregation.ErrNoMatchingWaitState)

	// Topic mismatch as well.
	err = service.HandleKafkaEvent(ctx, "returns", map[string]any{
		"execution_id": "exec-9",
		"order_id":     "ord-1",
	})
	assert.ErrorIs(t, err, aggregation.ErrNoMatchingWaitState)

	require.NoError(t, service.HandleKafkaEvent(ctx, "shipments", map[string]any{
		"execution_id": "exec-9",
		"order_id":     "ord-1",
	}))

	stored, err := waits.WaitStateByID(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitStatusCompleted, stored.Status)
}

func TestUnknownCorrelationID(t *testing.T) {
	service, _, _ := newService(t)

	err := service.HandleAPIResponse(context.Background(), "", "nope", map[string]any{})
	assert.ErrorIs(t, err, aggregation.ErrNoMatchingWaitState)
}

func TestExecutionMismatchRejected(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newService(t)

	_, err := service.RegisterWaitState(ctx, "exec-1", "await", &dispatch.Suspension{
		CorrelationID: "corr-1",
		Expectations: []models.EventExpectation{
			{Kind: models.EventKindAPIResponse, Required: true},
		},
	})
	require.NoError(t, err)

	err = service.HandleAPIResponse(ctx, "exec-2", "corr-1", map[string]any{})
	assert.ErrorIs(t, err, aggregation.ErrNoMatchingWaitState)
}

func TestUnexpectedEventKindRejected(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newService(t)

	_, err := service.RegisterWaitState(ctx, "exec-1", "pause", &dispatch.Suspension{
		CorrelationID: "delay-1",
		Expectations: []models.EventExpectation{
			{Kind: models.EventKindDelay, Required: true},
		},
	})
	require.NoError(t, err)

	err = service.HandleAPIResponse(ctx, "exec-1", "delay-1", map[string]any{})
	assert.ErrorIs(t, err, aggregation.ErrNoMatchingWaitState)
}

func TestMarkDelayElapsed(t *testing.T) {
	ctx := context.Background()
	service, waits, resumer := newService(t)

	resumeAt := time.Now().UTC().Add(-time.Second)
	ws, err := service.RegisterWaitState(ctx, "exec-1", "pause", &dispatch.Suspension{
		Expectations: []models.EventExpectation{
			{Kind: models.EventKindDelay, Required: true},
		},
		Policy:    models.AggregationPolicyAll,
		OnTimeout: models.TimeoutPolicyContinue,
		ResumeAt:  &resumeAt,
	})
	require.NoError(t, err)

	require.NoError(t, service.MarkDelayElapsed(ctx, ws.ID))

	stored, err := waits.WaitStateByID(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitStatusCompleted, stored.Status)
	assert.Equal(t, []string{ws.ID}, resumer.resumed)

	// A racing second delivery loses.
	assert.ErrorIs(t, service.MarkDelayElapsed(ctx, ws.ID), aggregation.ErrWaitStateResolved)
}

func TestTimeoutCarriedOntoWaitState(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newService(t)

	before := time.Now().UTC()
	ws, err := service.RegisterWaitState(ctx, "exec-1", "await", &dispatch.Suspension{
		Expectations: []models.EventExpectation{
			{Kind: models.EventKindAPIResponse, Required: true},
		},
		Timeout: 30 * time.Minute,
	})
	require.NoError(t, err)
	require.NotNil(t, ws.ExpiresAt)
	assert.WithinDuration(t, before.Add(30*time.Minute), *ws.ExpiresAt, 5*time.Second)
}
