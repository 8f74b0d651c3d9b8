package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id, workflow_id, trigger_node_id, status, started_at, completed_at,
	duration_ms, nodes_executed, notifications_sent, context_snapshot,
	trigger_data, error_message, error_details, updated_at
`

// CreateExecution inserts a new execution row.
func (er *ExecutionRepository) CreateExecution(ctx context.Context, exec *models.Execution) error {
	snapshotJSON, triggerDataJSON, errorDetailsJSON, err := marshalExecutionJSON(exec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = er.db.ExecContext(ctx, query,
		exec.ID,
		exec.WorkflowID,
		exec.TriggerNodeID,
		exec.Status,
		exec.StartedAt,
		exec.CompletedAt,
		exec.DurationMs,
		exec.NodesExecuted,
		exec.NotificationsSent,
		snapshotJSON,
		triggerDataJSON,
		exec.ErrorMessage,
		errorDetailsJSON,
		exec.UpdatedAt,
	)
	if err != nil {
		return &persistence.ExecutionError{Op: "create", ExecutionID: exec.ID, Err: err}
	}

	return nil
}

// UpdateExecution overwrites an existing execution row.
func (er *ExecutionRepository) UpdateExecution(ctx context.Context, exec *models.Execution) error {
	snapshotJSON, triggerDataJSON, errorDetailsJSON, err := marshalExecutionJSON(exec)
	if err != nil {
		return err
	}

	query := `
		UPDATE executions SET
			status = $2,
			completed_at = $3,
			duration_ms = $4,
			nodes_executed = $5,
			notifications_sent = $6,
			context_snapshot = $7,
			trigger_data = $8,
			error_message = $9,
			error_details = $10,
			updated_at = $11
		WHERE id = $1
	`

	result, err := er.db.ExecContext(ctx, query,
		exec.ID,
		exec.Status,
		exec.CompletedAt,
		exec.DurationMs,
		exec.NodesExecuted,
		exec.NotificationsSent,
		snapshotJSON,
		triggerDataJSON,
		exec.ErrorMessage,
		errorDetailsJSON,
		exec.UpdatedAt,
	)
	if err != nil {
		return &persistence.ExecutionError{Op: "update", ExecutionID: exec.ID, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		return &persistence.ExecutionError{Op: "update", ExecutionID: exec.ID, Err: persistence.ErrExecutionNotFound}
	}

	return nil
}

// ExecutionByID returns an execution by its ID.
func (er *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE id = $1
	`

	exec, err := er.scanExecution(er.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return exec, nil
}

// ListExecutions returns executions matching the given filters, newest first.
func (er *ExecutionRepository) ListExecutions(ctx context.Context, opts persistence.ListExecutionsOptions) ([]*models.Execution, error) {
	var (
		conditions []string
		args       []any
	)

	if opts.WorkflowID != "" {
		args = append(args, opts.WorkflowID)
		conditions = append(conditions, "workflow_id = $"+strconv.Itoa(len(args)))
	}

	if opts.Status != nil {
		args = append(args, *opts.Status)
		conditions = append(conditions, "status = $"+strconv.Itoa(len(args)))
	}

	query := "SELECT " + executionColumns + " FROM executions"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY started_at DESC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	return er.queryExecutions(ctx, query, args...)
}

// ListStale returns non-terminal executions whose last update predates the
// cutoff, oldest first.
func (er *ExecutionRepository) ListStale(ctx context.Context, statuses []models.ExecutionStatus, updatedBefore time.Time) ([]*models.Execution, error) {
	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+1)

	for i, status := range statuses {
		args = append(args, status)
		placeholders[i] = "$" + strconv.Itoa(len(args))
	}

	args = append(args, updatedBefore)

	query := "SELECT " + executionColumns + ` FROM executions
		WHERE status IN (` + strings.Join(placeholders, ", ") + `)
		  AND updated_at < $` + strconv.Itoa(len(args)) + `
		ORDER BY updated_at ASC`

	return er.queryExecutions(ctx, query, args...)
}

func (er *ExecutionRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.Execution, error) {
	rows, err := er.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			er.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var executions []*models.Execution

	for rows.Next() {
		exec, err := er.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, exec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func (er *ExecutionRepository) scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.Execution, error) {
	var exec models.Execution

	var snapshotJSON, triggerDataJSON, errorDetailsJSON []byte

	err := scanner.Scan(
		&exec.ID,
		&exec.WorkflowID,
		&exec.TriggerNodeID,
		&exec.Status,
		&exec.StartedAt,
		&exec.CompletedAt,
		&exec.DurationMs,
		&exec.NodesExecuted,
		&exec.NotificationsSent,
		&snapshotJSON,
		&triggerDataJSON,
		&exec.ErrorMessage,
		&errorDetailsJSON,
		&exec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if snapshotJSON != nil {
		if err := json.Unmarshal(snapshotJSON, &exec.ContextSnapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context snapshot: %w", err)
		}
	}

	if triggerDataJSON != nil {
		if err := json.Unmarshal(triggerDataJSON, &exec.TriggerData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
		}
	}

	if errorDetailsJSON != nil {
		if err := json.Unmarshal(errorDetailsJSON, &exec.ErrorDetails); err != nil {
			return nil, fmt.Errorf("failed to unmarshal error details: %w", err)
		}
	}

	return &exec, nil
}

func marshalExecutionJSON(exec *models.Execution) (snapshot, triggerData, errorDetails []byte, err error) {
	snapshot, err = json.Marshal(exec.ContextSnapshot)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal context snapshot: %w", err)
	}

	triggerData, err = json.Marshal(exec.TriggerData)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	errorDetails, err = json.Marshal(exec.ErrorDetails)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal error details: %w", err)
	}

	return snapshot, triggerData, errorDetails, nil
}
