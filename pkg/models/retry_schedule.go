package models

import "time"

// RetryStatus defines the lifecycle states of a retry schedule.
type RetryStatus string

const (
	RetryStatusPending    RetryStatus = "pending"
	RetryStatusInProgress RetryStatus = "in_progress"
	RetryStatusExhausted  RetryStatus = "exhausted"
	RetryStatusSucceeded  RetryStatus = "succeeded"
)

// IsTerminal reports whether the schedule will never run again.
func (s RetryStatus) IsTerminal() bool {
	return s == RetryStatusExhausted || s == RetryStatusSucceeded
}

// RetryStrategy selects how the next delay is computed.
type RetryStrategy string

const (
	RetryStrategyFixed       RetryStrategy = "fixed"
	RetryStrategyExponential RetryStrategy = "exponential"
	RetryStrategyCustom      RetryStrategy = "custom"
)

// RetryTargetType identifies what a retry schedule re-dispatches.
type RetryTargetType string

const (
	RetryTargetNode      RetryTargetType = "node"
	RetryTargetExecution RetryTargetType = "execution"
)

// RetryAttemptError is one entry in a schedule's accumulated error history.
type RetryAttemptError struct {
	Attempt    int       `json:"attempt"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RetrySchedule is one durable retry intent for a failed node or execution.
// Multi-instance pickup is serialized by the claim columns guarded by the
// optimistic Version counter.
type RetrySchedule struct {
	ID             string              `json:"id"`
	TargetType     RetryTargetType     `json:"target_type" validate:"required"`
	TargetID       string              `json:"target_id"   validate:"required"`
	ExecutionID    string              `json:"execution_id"`
	Strategy       RetryStrategy       `json:"strategy"`
	MaxAttempts    int                 `json:"max_attempts"`
	CurrentAttempt int                 `json:"current_attempt"`
	InitialDelay   time.Duration       `json:"initial_delay"`
	Multiplier     float64             `json:"multiplier,omitempty"`
	MaxDelay       time.Duration       `json:"max_delay,omitempty"`
	CustomDelays   []time.Duration     `json:"custom_delays,omitempty"`
	ScheduledAt    time.Time           `json:"scheduled_at"`
	LastAttemptAt  *time.Time          `json:"last_attempt_at,omitempty"`
	ExpiresAt      *time.Time          `json:"expires_at,omitempty"`
	Status         RetryStatus         `json:"status"`
	ClaimedBy      string              `json:"claimed_by,omitempty"`
	ClaimedAt      *time.Time          `json:"claimed_at,omitempty"`
	Version        int64               `json:"version"`
	ErrorHistory   []RetryAttemptError `json:"error_history,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// IsClaimStale reports whether an existing claim is older than the threshold
// and therefore eligible for reclaiming by another instance.
func (r *RetrySchedule) IsClaimStale(now time.Time, threshold time.Duration) bool {
	if r.ClaimedBy == "" || r.ClaimedAt == nil {
		return false
	}

	return now.Sub(*r.ClaimedAt) > threshold
}

// IsDue reports whether the schedule is eligible for pickup: scheduled time
// passed, still pending (or carrying a stale claim), attempts remaining.
func (r *RetrySchedule) IsDue(now time.Time, staleClaim time.Duration) bool {
	if r.Status != RetryStatusPending && !(r.Status == RetryStatusInProgress && r.IsClaimStale(now, staleClaim)) {
		return false
	}

	if r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
		return false
	}

	return !now.Before(r.ScheduledAt)
}

// AttemptsRemaining reports whether the attempt budget is not yet spent.
func (r *RetrySchedule) AttemptsRemaining() bool {
	return r.CurrentAttempt < r.MaxAttempts
}

// RecordError appends an error to the schedule's history.
func (r *RetrySchedule) RecordError(attempt int, message string, now time.Time) {
	r.ErrorHistory = append(r.ErrorHistory, RetryAttemptError{
		Attempt:    attempt,
		Error:      message,
		OccurredAt: now,
	})
}
