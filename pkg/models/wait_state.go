package models

import (
	"slices"
	"time"
)

// WaitStatus defines the lifecycle states of a wait state.
type WaitStatus string

const (
	WaitStatusWaiting   WaitStatus = "waiting"
	WaitStatusCompleted WaitStatus = "completed"
	WaitStatusTimeout   WaitStatus = "timeout"
	WaitStatusFailed    WaitStatus = "failed"
)

// IsTerminal reports whether the wait state can no longer change.
func (s WaitStatus) IsTerminal() bool {
	return s != WaitStatusWaiting
}

// EventKind identifies one kind of asynchronous event a wait state can expect.
type EventKind string

const (
	EventKindAPIResponse EventKind = "api_response"
	EventKindKafkaEvent  EventKind = "kafka_event"
	EventKindDelay       EventKind = "delay"
)

// AggregationPolicy decides when a multi-event wait state is satisfied.
type AggregationPolicy string

const (
	// AggregationPolicyAll requires every enabled event kind to arrive.
	AggregationPolicyAll AggregationPolicy = "all"
	// AggregationPolicyAny is satisfied by the first arriving event.
	AggregationPolicyAny AggregationPolicy = "any"
	// AggregationPolicyRequired is satisfied once every kind marked
	// required has arrived; optional kinds never block.
	AggregationPolicyRequired AggregationPolicy = "required"
)

// TimeoutPolicy decides what happens when the expiration deadline passes
// before the aggregation policy is satisfied.
type TimeoutPolicy string

const (
	TimeoutPolicyFail     TimeoutPolicy = "fail"
	TimeoutPolicyContinue TimeoutPolicy = "continue"
)

// EventExpectation describes one enabled event kind on a wait state.
type EventExpectation struct {
	Kind     EventKind      `json:"kind"`
	Required bool           `json:"required"`
	Topic    string         `json:"topic,omitempty"`  // kafka events: topic to match
	Filter   map[string]any `json:"filter,omitempty"` // kafka events: payload fields that must match
}

// ExecutionWaitState is one outstanding suspension point. The correlation ID
// is the only handle external systems use to address it. Concurrent event
// deliveries are serialized through the optimistic Version counter.
type ExecutionWaitState struct {
	ID            string             `json:"id"`
	ExecutionID   string             `json:"execution_id" validate:"required"`
	NodeID        string             `json:"node_id"      validate:"required"`
	CorrelationID string             `json:"correlation_id"`
	Expectations  []EventExpectation `json:"expectations"`
	Policy        AggregationPolicy  `json:"policy"`
	OnTimeout     TimeoutPolicy      `json:"on_timeout"`
	// EventPayloads holds the payload slot for each event kind that has arrived.
	EventPayloads map[EventKind]map[string]any `json:"event_payloads,omitempty"`
	// ReceivedKinds lists which event kinds have already arrived, in arrival order.
	ReceivedKinds []EventKind `json:"received_kinds,omitempty"`
	Status        WaitStatus  `json:"status"`
	Version       int64       `json:"version"`
	ExpiresAt     *time.Time  `json:"expires_at,omitempty"`
	ResumeAt      *time.Time  `json:"resume_at,omitempty"` // delay waits: wall-clock resume deadline
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// HasReceived reports whether the given event kind has already arrived.
func (ws *ExecutionWaitState) HasReceived(kind EventKind) bool {
	return slices.Contains(ws.ReceivedKinds, kind)
}

// Expects reports whether the wait state has the given event kind enabled.
func (ws *ExecutionWaitState) Expects(kind EventKind) bool {
	for _, exp := range ws.Expectations {
		if exp.Kind == kind {
			return true
		}
	}

	return false
}

// RecordEvent marks an event kind as received and stores its payload slot.
// Recording the same kind twice overwrites the payload without duplicating
// the received entry.
func (ws *ExecutionWaitState) RecordEvent(kind EventKind, payload map[string]any) {
	if ws.EventPayloads == nil {
		ws.EventPayloads = make(map[EventKind]map[string]any)
	}

	ws.EventPayloads[kind] = payload

	if !ws.HasReceived(kind) {
		ws.ReceivedKinds = append(ws.ReceivedKinds, kind)
	}
}

// IsSatisfied evaluates the aggregation policy against the received set.
// Evaluation is pure: it only reads the wait state.
func (ws *ExecutionWaitState) IsSatisfied() bool {
	if len(ws.Expectations) == 0 {
		return true
	}

	switch ws.Policy {
	case AggregationPolicyAny:
		return len(ws.ReceivedKinds) > 0
	case AggregationPolicyRequired:
		for _, exp := range ws.Expectations {
			if exp.Required && !ws.HasReceived(exp.Kind) {
				return false
			}
		}

		return true
	case AggregationPolicyAll:
		fallthrough
	default:
		for _, exp := range ws.Expectations {
			if !ws.HasReceived(exp.Kind) {
				return false
			}
		}

		return true
	}
}

// AggregatedPayload merges all received payload slots keyed by event kind.
func (ws *ExecutionWaitState) AggregatedPayload() map[string]any {
	merged := make(map[string]any, len(ws.EventPayloads))

	for kind, payload := range ws.EventPayloads {
		merged[string(kind)] = payload
	}

	return merged
}
