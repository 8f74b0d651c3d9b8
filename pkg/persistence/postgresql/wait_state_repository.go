package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

const uniqueViolationCode = "23505"

// WaitStateRepository handles wait-state database operations. Updates run a
// compare-and-swap on the version column; the partial unique index on
// (execution_id, node_id) WHERE status = 'waiting' enforces the single
// active wait state invariant.
type WaitStateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWaitStateRepository creates a new wait-state repository.
func NewWaitStateRepository(db *sql.DB, logger *slog.Logger) *WaitStateRepository {
	return &WaitStateRepository{db: db, logger: logger}
}

const waitStateColumns = `
	id, execution_id, node_id, correlation_id, expectations, policy,
	on_timeout, event_payloads, received_kinds, status, version,
	expires_at, resume_at, created_at, updated_at
`

// CreateWaitState inserts a new wait-state row.
func (wsr *WaitStateRepository) CreateWaitState(ctx context.Context, ws *models.ExecutionWaitState) error {
	expectationsJSON, payloadsJSON, receivedJSON, err := marshalWaitStateJSON(ws)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO execution_wait_states (` + waitStateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = wsr.db.ExecContext(ctx, query,
		ws.ID,
		ws.ExecutionID,
		ws.NodeID,
		ws.CorrelationID,
		expectationsJSON,
		ws.Policy,
		ws.OnTimeout,
		payloadsJSON,
		receivedJSON,
		ws.Status,
		ws.Version,
		ws.ExpiresAt,
		ws.ResumeAt,
		ws.CreatedAt,
		ws.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
			err = persistence.ErrDuplicateWaitState
		}

		return &persistence.WaitStateError{Op: "create", WaitStateID: ws.ID, ExecutionID: ws.ExecutionID, Err: err}
	}

	return nil
}

// WaitStateByID returns a wait state by its ID.
func (wsr *WaitStateRepository) WaitStateByID(ctx context.Context, id string) (*models.ExecutionWaitState, error) {
	query := `
		SELECT ` + waitStateColumns + `
		FROM execution_wait_states
		WHERE id = $1
	`

	return wsr.queryOne(ctx, query, id)
}

// WaitStateByCorrelationID returns the wait state addressed by a correlation
// ID, preferring the active row when finished ones share the ID.
func (wsr *WaitStateRepository) WaitStateByCorrelationID(ctx context.Context, correlationID string) (*models.ExecutionWaitState, error) {
	query := `
		SELECT ` + waitStateColumns + `
		FROM execution_wait_states
		WHERE correlation_id = $1
		ORDER BY (status = 'waiting') DESC, created_at DESC
		LIMIT 1
	`

	return wsr.queryOne(ctx, query, correlationID)
}

// ActiveWaitState returns the single waiting row for an (execution, node) pair.
func (wsr *WaitStateRepository) ActiveWaitState(ctx context.Context, executionID, nodeID string) (*models.ExecutionWaitState, error) {
	query := `
		SELECT ` + waitStateColumns + `
		FROM execution_wait_states
		WHERE execution_id = $1 AND node_id = $2 AND status = 'waiting'
	`

	return wsr.queryOne(ctx, query, executionID, nodeID)
}

// ActiveWaitStatesByExecution returns all waiting rows of an execution.
func (wsr *WaitStateRepository) ActiveWaitStatesByExecution(ctx context.Context, executionID string) ([]*models.ExecutionWaitState, error) {
	query := `
		SELECT ` + waitStateColumns + `
		FROM execution_wait_states
		WHERE execution_id = $1 AND status = 'waiting'
		ORDER BY created_at ASC
	`

	return wsr.queryMany(ctx, query, executionID)
}

// ListExpired returns waiting rows whose expiration deadline has passed.
func (wsr *WaitStateRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.ExecutionWaitState, error) {
	query := `
		SELECT ` + waitStateColumns + `
		FROM execution_wait_states
		WHERE status = 'waiting' AND expires_at IS NOT NULL AND expires_at < $1
	`

	return wsr.queryMany(ctx, query, now)
}

// ListDueDelays returns waiting delay rows whose resume deadline has passed.
func (wsr *WaitStateRepository) ListDueDelays(ctx context.Context, now time.Time) ([]*models.ExecutionWaitState, error) {
	query := `
		SELECT ` + waitStateColumns + `
		FROM execution_wait_states
		WHERE status = 'waiting' AND resume_at IS NOT NULL AND resume_at <= $1
	`

	return wsr.queryMany(ctx, query, now)
}

// UpdateWaitState persists the row only when the stored version still equals
// ws.Version, then increments it.
func (wsr *WaitStateRepository) UpdateWaitState(ctx context.Context, ws *models.ExecutionWaitState) error {
	expectationsJSON, payloadsJSON, receivedJSON, err := marshalWaitStateJSON(ws)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	query := `
		UPDATE execution_wait_states SET
			correlation_id = $3,
			expectations = $4,
			policy = $5,
			on_timeout = $6,
			event_payloads = $7,
			received_kinds = $8,
			status = $9,
			expires_at = $10,
			resume_at = $11,
			updated_at = $12,
			version = version + 1
		WHERE id = $1 AND version = $2
	`

	result, err := wsr.db.ExecContext(ctx, query,
		ws.ID,
		ws.Version,
		ws.CorrelationID,
		expectationsJSON,
		ws.Policy,
		ws.OnTimeout,
		payloadsJSON,
		receivedJSON,
		ws.Status,
		ws.ExpiresAt,
		ws.ResumeAt,
		now,
	)
	if err != nil {
		return &persistence.WaitStateError{Op: "update", WaitStateID: ws.ID, ExecutionID: ws.ExecutionID, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		// Either the row is gone or someone else won the version race.
		_, lookupErr := wsr.WaitStateByID(ctx, ws.ID)
		if lookupErr != nil {
			return &persistence.WaitStateError{Op: "update", WaitStateID: ws.ID, ExecutionID: ws.ExecutionID, Err: persistence.ErrWaitStateNotFound}
		}

		return &persistence.WaitStateError{Op: "update", WaitStateID: ws.ID, ExecutionID: ws.ExecutionID, Err: persistence.ErrVersionConflict}
	}

	ws.Version++
	ws.UpdatedAt = now

	return nil
}

func (wsr *WaitStateRepository) queryOne(ctx context.Context, query string, args ...any) (*models.ExecutionWaitState, error) {
	ws, err := wsr.scanWaitState(wsr.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWaitStateNotFound
		}

		return nil, fmt.Errorf("failed to scan wait state: %w", err)
	}

	return ws, nil
}

func (wsr *WaitStateRepository) queryMany(ctx context.Context, query string, args ...any) ([]*models.ExecutionWaitState, error) {
	rows, err := wsr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query wait states: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			wsr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var waitStates []*models.ExecutionWaitState

	for rows.Next() {
		ws, err := wsr.scanWaitState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wait state: %w", err)
		}

		waitStates = append(waitStates, ws)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wait states: %w", err)
	}

	return waitStates, nil
}

func (wsr *WaitStateRepository) scanWaitState(scanner interface {
	Scan(dest ...any) error
}) (*models.ExecutionWaitState, error) {
	var ws models.ExecutionWaitState

	var expectationsJSON, payloadsJSON, receivedJSON []byte

	err := scanner.Scan(
		&ws.ID,
		&ws.ExecutionID,
		&ws.NodeID,
		&ws.CorrelationID,
		&expectationsJSON,
		&ws.Policy,
		&ws.OnTimeout,
		&payloadsJSON,
		&receivedJSON,
		&ws.Status,
		&ws.Version,
		&ws.ExpiresAt,
		&ws.ResumeAt,
		&ws.CreatedAt,
		&ws.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if expectationsJSON != nil {
		if err := json.Unmarshal(expectationsJSON, &ws.Expectations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal expectations: %w", err)
		}
	}

	if payloadsJSON != nil {
		if err := json.Unmarshal(payloadsJSON, &ws.EventPayloads); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event payloads: %w", err)
		}
	}

	if receivedJSON != nil {
		if err := json.Unmarshal(receivedJSON, &ws.ReceivedKinds); err != nil {
			return nil, fmt.Errorf("failed to unmarshal received kinds: %w", err)
		}
	}

	return &ws, nil
}

func marshalWaitStateJSON(ws *models.ExecutionWaitState) (expectations, payloads, received []byte, err error) {
	expectations, err = json.Marshal(ws.Expectations)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal expectations: %w", err)
	}

	payloads, err = json.Marshal(ws.EventPayloads)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal event payloads: %w", err)
	}

	received, err = json.Marshal(ws.ReceivedKinds)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal received kinds: %w", err)
	}

	return expectations, payloads, received, nil
}
