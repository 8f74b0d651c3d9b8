package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// NodeExecutionRepository handles the per-node audit trail.
type NodeExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewNodeExecutionRepository creates a new node-execution repository.
func NewNodeExecutionRepository(db *sql.DB, logger *slog.Logger) *NodeExecutionRepository {
	return &NodeExecutionRepository{db: db, logger: logger}
}

const nodeExecutionColumns = `
	id, execution_id, node_id, node_type, node_kind, sequence, status,
	started_at, completed_at, duration_ms, input, output, error_message,
	retry_count
`

// CreateNodeExecution inserts a new audit row.
func (ner *NodeExecutionRepository) CreateNodeExecution(ctx context.Context, ne *models.NodeExecution) error {
	inputJSON, outputJSON, err := marshalNodeExecutionJSON(ne)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO node_executions (` + nodeExecutionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = ner.db.ExecContext(ctx, query,
		ne.ID,
		ne.ExecutionID,
		ne.NodeID,
		ne.NodeType,
		ne.NodeKind,
		ne.Sequence,
		ne.Status,
		ne.StartedAt,
		ne.CompletedAt,
		ne.DurationMs,
		inputJSON,
		outputJSON,
		ne.Error,
		ne.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create node execution: %w", err)
	}

	return nil
}

// UpdateNodeExecution overwrites an existing audit row.
func (ner *NodeExecutionRepository) UpdateNodeExecution(ctx context.Context, ne *models.NodeExecution) error {
	inputJSON, outputJSON, err := marshalNodeExecutionJSON(ne)
	if err != nil {
		return err
	}

	query := `
		UPDATE node_executions SET
			status = $2,
			completed_at = $3,
			duration_ms = $4,
			input = $5,
			output = $6,
			error_message = $7,
			retry_count = $8
		WHERE id = $1
	`

	result, err := ner.db.ExecContext(ctx, query,
		ne.ID,
		ne.Status,
		ne.CompletedAt,
		ne.DurationMs,
		inputJSON,
		outputJSON,
		ne.Error,
		ne.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("failed to update node execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.ErrNodeExecutionNotFound
	}

	return nil
}

// NodeExecutionsByExecution returns every audit row of an execution in
// sequence order.
func (ner *NodeExecutionRepository) NodeExecutionsByExecution(ctx context.Context, executionID string) ([]*models.NodeExecution, error) {
	query := `
		SELECT ` + nodeExecutionColumns + `
		FROM node_executions
		WHERE execution_id = $1
		ORDER BY sequence ASC
	`

	rows, err := ner.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			ner.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var nodeExecutions []*models.NodeExecution

	for rows.Next() {
		ne, err := ner.scanNodeExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node execution: %w", err)
		}

		nodeExecutions = append(nodeExecutions, ne)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node executions: %w", err)
	}

	return nodeExecutions, nil
}

// LatestSequence returns the highest sequence recorded for an execution, 0
// when none exist.
func (ner *NodeExecutionRepository) LatestSequence(ctx context.Context, executionID string) (int, error) {
	var latest int

	query := "SELECT COALESCE(MAX(sequence), 0) FROM node_executions WHERE execution_id = $1"

	err := ner.db.QueryRowContext(ctx, query, executionID).Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("failed to query latest sequence: %w", err)
	}

	return latest, nil
}

func (ner *NodeExecutionRepository) scanNodeExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.NodeExecution, error) {
	var ne models.NodeExecution

	var inputJSON, outputJSON []byte

	err := scanner.Scan(
		&ne.ID,
		&ne.ExecutionID,
		&ne.NodeID,
		&ne.NodeType,
		&ne.NodeKind,
		&ne.Sequence,
		&ne.Status,
		&ne.StartedAt,
		&ne.CompletedAt,
		&ne.DurationMs,
		&inputJSON,
		&outputJSON,
		&ne.Error,
		&ne.RetryCount,
	)
	if err != nil {
		return nil, err
	}

	if inputJSON != nil {
		if err := json.Unmarshal(inputJSON, &ne.Input); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input: %w", err)
		}
	}

	if outputJSON != nil {
		if err := json.Unmarshal(outputJSON, &ne.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output: %w", err)
		}
	}

	return &ne, nil
}

func marshalNodeExecutionJSON(ne *models.NodeExecution) (input, output []byte, err error) {
	input, err = json.Marshal(ne.Input)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal input: %w", err)
	}

	output, err = json.Marshal(ne.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal output: %w", err)
	}

	return input, output, nil
}
