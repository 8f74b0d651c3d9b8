// Package events defines event types and structures for execution lifecycle notifications.
package events

import (
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const Topic = "cascade.events" // Lifecycle events of executions and nodes

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Workflow trigger events.
	WorkflowTriggeredEvent EventType = "workflow.triggered"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionPausedEvent    EventType = "execution.paused"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"

	// Node events.
	NodeFinishedEvent EventType = "node.finished"
	NodeFailedEvent   EventType = "node.failed"

	// Wait-state events.
	WaitStateSatisfiedEvent EventType = "wait_state.satisfied"
	WaitStateTimedOutEvent  EventType = "wait_state.timed_out"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// WorkflowTriggered asks a worker to start an execution of a workflow.
type WorkflowTriggered struct {
	BaseEvent

	TriggerNodeID string         `json:"trigger_node_id"`
	TriggerData   map[string]any `json:"trigger_data,omitempty"`
}

func (e WorkflowTriggered) GetType() EventType {
	return WorkflowTriggeredEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

// ExecutionPaused is published when an execution suspends into a wait state.
type ExecutionPaused struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	NodeID        string `json:"node_id"`
	WaitStateID   string `json:"wait_state_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (e ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	WaitStateID string `json:"wait_state_id"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	NodeID      string        `json:"node_id,omitempty"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	CancelledBy string `json:"cancelled_by"`
	Reason      string `json:"reason,omitempty"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type NodeFinished struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	NodeKind    string         `json:"node_kind"`
	Sequence    int            `json:"sequence"`
	Branch      string         `json:"branch"`
	Output      map[string]any `json:"output,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
}

func (e NodeFinished) GetType() EventType {
	return NodeFinishedEvent
}

type NodeFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	NodeKind    string `json:"node_kind"`
	Sequence    int    `json:"sequence"`
	Error       string `json:"error"`
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}

type WaitStateSatisfied struct {
	BaseEvent

	ExecutionID   string             `json:"execution_id"`
	WaitStateID   string             `json:"wait_state_id"`
	NodeID        string             `json:"node_id"`
	ReceivedKinds []models.EventKind `json:"received_kinds"`
	Payload       map[string]any     `json:"payload,omitempty"`
}

func (e WaitStateSatisfied) GetType() EventType {
	return WaitStateSatisfiedEvent
}

type WaitStateTimedOut struct {
	BaseEvent

	ExecutionID string               `json:"execution_id"`
	WaitStateID string               `json:"wait_state_id"`
	NodeID      string               `json:"node_id"`
	OnTimeout   models.TimeoutPolicy `json:"on_timeout"`
}

func (e WaitStateTimedOut) GetType() EventType {
	return WaitStateTimedOutEvent
}
