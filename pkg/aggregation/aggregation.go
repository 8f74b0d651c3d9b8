// Package aggregation registers wait states and folds asynchronous event
// deliveries into them until their aggregation policy is satisfied.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cascadehq/cascade/pkg/dispatch"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/google/uuid"
)

var (
	ErrNoMatchingWaitState = errors.New("no matching wait state")
	ErrWaitStateResolved   = errors.New("wait state already resolved")
)

// casAttempts bounds the reload-and-reapply loop under concurrent deliveries.
const casAttempts = 5

// Resumer continues a suspended execution once its wait state is satisfied.
// Set after construction to break the cycle with the orchestrator, which
// registers wait states through this service.
type Resumer interface {
	Resume(ctx context.Context, waitStateID string) error
}

// Service is the event-ingestion side of suspensions: HTTP callbacks land in
// HandleAPIResponse, queue messages in HandleKafkaEvent. Concurrent
// deliveries for one wait state serialize through the version-guarded
// update; a conflict reloads and reapplies, so no receipt is lost.
type Service struct {
	logger  *slog.Logger
	waits   persistence.WaitStateRepository
	resumer Resumer
}

func NewService(logger *slog.Logger, waits persistence.WaitStateRepository) *Service {
	return &Service{
		logger: logger.With("module", "aggregation"),
		waits:  waits,
	}
}

// SetResumer wires the resume path. Must be called before events arrive.
func (s *Service) SetResumer(resumer Resumer) {
	s.resumer = resumer
}

// RegisterWaitState creates the durable wait state for a suspension. A
// correlation ID is generated when the suspension does not carry one.
func (s *Service) RegisterWaitState(ctx context.Context, executionID, nodeID string, susp *dispatch.Suspension) (*models.ExecutionWaitState, error) {
	correlationID := susp.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	now := time.Now().UTC()

	ws := &models.ExecutionWaitState{
		ID:            uuid.New().String(),
		ExecutionID:   executionID,
		NodeID:        nodeID,
		CorrelationID: correlationID,
		Expectations:  susp.Expectations,
		Policy:        susp.Policy,
		OnTimeout:     susp.OnTimeout,
		Status:        models.WaitStatusWaiting,
		Version:       1,
		ResumeAt:      susp.ResumeAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if susp.Timeout > 0 {
		expiresAt := now.Add(susp.Timeout)
		ws.ExpiresAt = &expiresAt
	}

	if err := s.waits.CreateWaitState(ctx, ws); err != nil {
		return nil, fmt.Errorf("register wait state for execution %s node %s: %w", executionID, nodeID, err)
	}

	s.logger.InfoContext(ctx, "Registered wait state",
		"wait_state_id", ws.ID,
		"execution_id", executionID,
		"node_id", nodeID,
		"correlation_id", correlationID,
		"policy", ws.Policy)

	return ws, nil
}

// HandleAPIResponse records an HTTP callback addressed by correlation ID.
// The execution ID, when the caller supplies one, must match the wait
// state's owner.
func (s *Service) HandleAPIResponse(ctx context.Context, executionID, correlationID string, payload map[string]any) error {
	ws, err := s.waits.WaitStateByCorrelationID(ctx, correlationID)
	if err != nil {
		if errors.Is(err, persistence.ErrWaitStateNotFound) {
			return fmt.Errorf("%w: correlation ID %q", ErrNoMatchingWaitState, correlationID)
		}

		return err
	}

	if executionID != "" && ws.ExecutionID != executionID {
		return fmt.Errorf("%w: correlation ID %q belongs to another execution", ErrNoMatchingWaitState, correlationID)
	}

	if !ws.Expects(models.EventKindAPIResponse) {
		return fmt.Errorf("%w: wait state %s does not expect an API response", ErrNoMatchingWaitState, ws.ID)
	}

	return s.recordEvent(ctx, ws.ID, models.EventKindAPIResponse, payload)
}

// HandleKafkaEvent records a queue message. The payload addresses its wait
// state by a correlation_id field, or by execution_id plus the expectation's
// topic and filter.
func (s *Service) HandleKafkaEvent(ctx context.Context, topic string, payload map[string]any) error {
	ws, err := s.matchKafkaWaitState(ctx, topic, payload)
	if err != nil {
		return err
	}

	return s.recordEvent(ctx, ws.ID, models.EventKindKafkaEvent, payload)
}

func (s *Service) matchKafkaWaitState(ctx context.Context, topic string, payload map[string]any) (*models.ExecutionWaitState, error) {
	if correlationID, ok := payload["correlation_id"].(string); ok && correlationID != "" {
		ws, err := s.waits.WaitStateByCorrelationID(ctx, correlationID)
		if err != nil {
			if errors.Is(err, persistence.ErrWaitStateNotFound) {
				return nil, fmt.Errorf("%w: correlation ID %q", ErrNoMatchingWaitState, correlationID)
			}

			return nil, err
		}

		if matchesKafkaExpectation(ws, topic, payload) {
			return ws, nil
		}

		return nil, fmt.Errorf("%w: wait state %s does not expect topic %q", ErrNoMatchingWaitState, ws.ID, topic)
	}

	executionID, ok := payload["execution_id"].(string)
	if !ok || executionID == "" {
		return nil, fmt.Errorf("%w: payload carries neither correlation_id nor execution_id", ErrNoMatchingWaitState)
	}

	waits, err := s.waits.ActiveWaitStatesByExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	for _, ws := range waits {
		if matchesKafkaExpectation(ws, topic, payload) {
			return ws, nil
		}
	}

	return nil, fmt.Errorf("%w: execution %s has no wait on topic %q", ErrNoMatchingWaitState, executionID, topic)
}

// matchesKafkaExpectation checks topic equality and that every filter field
// is present in the payload with an equal value.
func matchesKafkaExpectation(ws *models.ExecutionWaitState, topic string, payload map[string]any) bool {
	for _, exp := range ws.Expectations {
		if exp.Kind != models.EventKindKafkaEvent || exp.Topic != topic {
			continue
		}

		matched := true

		for field, want := range exp.Filter {
			got, ok := payload[field]
			if !ok || fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
				matched = false

				break
			}
		}

		if matched {
			return true
		}
	}

	return false
}

// MarkDelayElapsed records the delay event for a due delay wait state.
func (s *Service) MarkDelayElapsed(ctx context.Context, waitStateID string) error {
	return s.recordEvent(ctx, waitStateID, models.EventKindDelay, map[string]any{
		"elapsed_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// recordEvent folds one event into the wait state under the version guard,
// reloading and reapplying on conflict. When the aggregation policy is
// satisfied the wait state completes and the resume path fires.
func (s *Service) recordEvent(ctx context.Context, waitStateID string, kind models.EventKind, payload map[string]any) error {
	var satisfied bool

	for attempt := range casAttempts {
		ws, err := s.waits.WaitStateByID(ctx, waitStateID)
		if err != nil {
			return err
		}

		if ws.Status.IsTerminal() {
			return fmt.Errorf("%w: wait state %s is %s", ErrWaitStateResolved, ws.ID, ws.Status)
		}

		ws.RecordEvent(kind, payload)

		satisfied = ws.IsSatisfied()
		if satisfied {
			ws.Status = models.WaitStatusCompleted
		}

		err = s.waits.UpdateWaitState(ctx, ws)
		if err == nil {
			break
		}

		if !errors.Is(err, persistence.ErrVersionConflict) {
			return fmt.Errorf("record %s event on wait state %s: %w", kind, waitStateID, err)
		}

		if attempt == casAttempts-1 {
			return fmt.Errorf("record %s event on wait state %s: %w", kind, waitStateID, err)
		}
	}

	s.logger.InfoContext(ctx, "Recorded wait event",
		"wait_state_id", waitStateID,
		"event_kind", kind,
		"satisfied", satisfied)

	if !satisfied {
		return nil
	}

	if s.resumer == nil {
		return fmt.Errorf("wait state %s satisfied but no resumer is wired", waitStateID)
	}

	return s.resumer.Resume(ctx, waitStateID)
}
