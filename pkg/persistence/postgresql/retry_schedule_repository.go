package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// RetryScheduleRepository handles retry-schedule database operations with the
// same compare-and-swap discipline as wait states.
type RetryScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRetryScheduleRepository creates a new retry-schedule repository.
func NewRetryScheduleRepository(db *sql.DB, logger *slog.Logger) *RetryScheduleRepository {
	return &RetryScheduleRepository{db: db, logger: logger}
}

const retryScheduleColumns = `
	id, target_type, target_id, execution_id, strategy, max_attempts,
	current_attempt, initial_delay_ns, multiplier, max_delay_ns,
	custom_delays, scheduled_at, last_attempt_at, expires_at, status,
	claimed_by, claimed_at, version, error_history, created_at, updated_at
`

// CreateRetrySchedule inserts a new retry-schedule row.
func (rsr *RetryScheduleRepository) CreateRetrySchedule(ctx context.Context, schedule *models.RetrySchedule) error {
	customDelaysJSON, errorHistoryJSON, err := marshalRetryScheduleJSON(schedule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO retry_schedules (` + retryScheduleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	_, err = rsr.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.TargetType,
		schedule.TargetID,
		schedule.ExecutionID,
		schedule.Strategy,
		schedule.MaxAttempts,
		schedule.CurrentAttempt,
		int64(schedule.InitialDelay),
		schedule.Multiplier,
		int64(schedule.MaxDelay),
		customDelaysJSON,
		schedule.ScheduledAt,
		schedule.LastAttemptAt,
		schedule.ExpiresAt,
		schedule.Status,
		schedule.ClaimedBy,
		schedule.ClaimedAt,
		schedule.Version,
		errorHistoryJSON,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create retry schedule: %w", err)
	}

	return nil
}

// RetryScheduleByID returns a retry schedule by its ID.
func (rsr *RetryScheduleRepository) RetryScheduleByID(ctx context.Context, id string) (*models.RetrySchedule, error) {
	query := `
		SELECT ` + retryScheduleColumns + `
		FROM retry_schedules
		WHERE id = $1
	`

	schedule, err := rsr.scanRetrySchedule(rsr.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRetryScheduleNotFound
		}

		return nil, fmt.Errorf("failed to scan retry schedule: %w", err)
	}

	return schedule, nil
}

// ListDue returns eligible schedules, oldest scheduled first. Eligible means
// pending and due, or in progress with a claim older than staleClaim.
func (rsr *RetryScheduleRepository) ListDue(ctx context.Context, now time.Time, staleClaim time.Duration) ([]*models.RetrySchedule, error) {
	query := `
		SELECT ` + retryScheduleColumns + `
		FROM retry_schedules
		WHERE scheduled_at <= $1
		  AND (expires_at IS NULL OR expires_at >= $1)
		  AND (
			status = 'pending'
			OR (status = 'in_progress' AND claimed_at IS NOT NULL AND claimed_at < $2)
		  )
		ORDER BY scheduled_at ASC
	`

	rows, err := rsr.db.QueryContext(ctx, query, now, now.Add(-staleClaim))
	if err != nil {
		return nil, fmt.Errorf("failed to query retry schedules: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			rsr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var schedules []*models.RetrySchedule

	for rows.Next() {
		schedule, err := rsr.scanRetrySchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan retry schedule: %w", err)
		}

		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating retry schedules: %w", err)
	}

	return schedules, nil
}

// ActiveRetrySchedulesByExecution returns the pending or in-progress
// schedules owned by an execution, oldest first.
func (rsr *RetryScheduleRepository) ActiveRetrySchedulesByExecution(ctx context.Context, executionID string) ([]*models.RetrySchedule, error) {
	query := `
		SELECT ` + retryScheduleColumns + `
		FROM retry_schedules
		WHERE execution_id = $1
		  AND status IN ('pending', 'in_progress')
		ORDER BY created_at ASC
	`

	rows, err := rsr.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query retry schedules: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			rsr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var schedules []*models.RetrySchedule

	for rows.Next() {
		schedule, err := rsr.scanRetrySchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan retry schedule: %w", err)
		}

		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating retry schedules: %w", err)
	}

	return schedules, nil
}

// UpdateRetrySchedule persists the row only when the stored version still
// equals schedule.Version, then increments it.
func (rsr *RetryScheduleRepository) UpdateRetrySchedule(ctx context.Context, schedule *models.RetrySchedule) error {
	customDelaysJSON, errorHistoryJSON, err := marshalRetryScheduleJSON(schedule)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	query := `
		UPDATE retry_schedules SET
			current_attempt = $3,
			scheduled_at = $4,
			last_attempt_at = $5,
			status = $6,
			claimed_by = $7,
			claimed_at = $8,
			error_history = $9,
			custom_delays = $10,
			updated_at = $11,
			version = version + 1
		WHERE id = $1 AND version = $2
	`

	result, err := rsr.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.Version,
		schedule.CurrentAttempt,
		schedule.ScheduledAt,
		schedule.LastAttemptAt,
		schedule.Status,
		schedule.ClaimedBy,
		schedule.ClaimedAt,
		errorHistoryJSON,
		customDelaysJSON,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to update retry schedule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		_, lookupErr := rsr.RetryScheduleByID(ctx, schedule.ID)
		if lookupErr != nil {
			return persistence.ErrRetryScheduleNotFound
		}

		return persistence.ErrVersionConflict
	}

	schedule.Version++
	schedule.UpdatedAt = now

	return nil
}

func (rsr *RetryScheduleRepository) scanRetrySchedule(scanner interface {
	Scan(dest ...any) error
}) (*models.RetrySchedule, error) {
	var schedule models.RetrySchedule

	var (
		customDelaysJSON, errorHistoryJSON []byte
		initialDelayNs, maxDelayNs         int64
	)

	err := scanner.Scan(
		&schedule.ID,
		&schedule.TargetType,
		&schedule.TargetID,
		&schedule.ExecutionID,
		&schedule.Strategy,
		&schedule.MaxAttempts,
		&schedule.CurrentAttempt,
		&initialDelayNs,
		&schedule.Multiplier,
		&maxDelayNs,
		&customDelaysJSON,
		&schedule.ScheduledAt,
		&schedule.LastAttemptAt,
		&schedule.ExpiresAt,
		&schedule.Status,
		&schedule.ClaimedBy,
		&schedule.ClaimedAt,
		&schedule.Version,
		&errorHistoryJSON,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	schedule.InitialDelay = time.Duration(initialDelayNs)
	schedule.MaxDelay = time.Duration(maxDelayNs)

	if customDelaysJSON != nil {
		if err := json.Unmarshal(customDelaysJSON, &schedule.CustomDelays); err != nil {
			return nil, fmt.Errorf("failed to unmarshal custom delays: %w", err)
		}
	}

	if errorHistoryJSON != nil {
		if err := json.Unmarshal(errorHistoryJSON, &schedule.ErrorHistory); err != nil {
			return nil, fmt.Errorf("failed to unmarshal error history: %w", err)
		}
	}

	return &schedule, nil
}

func marshalRetryScheduleJSON(schedule *models.RetrySchedule) (customDelays, errorHistory []byte, err error) {
	customDelays, err = json.Marshal(schedule.CustomDelays)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal custom delays: %w", err)
	}

	errorHistory, err = json.Marshal(schedule.ErrorHistory)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal error history: %w", err)
	}

	return customDelays, errorHistory, nil
}
