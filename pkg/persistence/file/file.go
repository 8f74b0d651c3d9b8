// Package file provides file-based persistence for workflows, executions,
// wait states, retry schedules and node execution audit rows. It backs local
// runs and tests; multi-instance deployments use the postgresql backend.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cascadehq/cascade/pkg/persistence"
)

// Persistence implements persistence.Persistence on top of a directory of
// JSON files. One process-wide mutex serializes all row mutation, which
// gives the same compare-and-swap semantics the SQL backend enforces with
// "UPDATE ... WHERE version = $n".
type Persistence struct {
	root string
	mu   sync.Mutex

	workflowRepo      *WorkflowRepository
	executionRepo     *ExecutionRepository
	waitStateRepo     *WaitStateRepository
	retryScheduleRepo *RetryScheduleRepository
	nodeExecutionRepo *NodeExecutionRepository
}

// NewPersistence creates a file persistence layer rooted at the given
// directory, creating it when missing.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, sub := range []string{"workflows", "executions", "wait_states", "retry_schedules", "node_executions"} {
		if err := os.MkdirAll(filepath.Join(cleanRoot, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", sub, err)
		}
	}

	fp := &Persistence{root: cleanRoot}
	fp.workflowRepo = &WorkflowRepository{store: fp}
	fp.executionRepo = &ExecutionRepository{store: fp}
	fp.waitStateRepo = &WaitStateRepository{store: fp}
	fp.retryScheduleRepo = &RetryScheduleRepository{store: fp}
	fp.nodeExecutionRepo = &NodeExecutionRepository{store: fp}

	return fp, nil
}

// Close performs any necessary cleanup. For file-based persistence, there is
// nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) WaitStateRepository() persistence.WaitStateRepository {
	return fp.waitStateRepo
}

func (fp *Persistence) RetryScheduleRepository() persistence.RetryScheduleRepository {
	return fp.retryScheduleRepo
}

func (fp *Persistence) NodeExecutionRepository() persistence.NodeExecutionRepository {
	return fp.nodeExecutionRepo
}

func (fp *Persistence) path(kind, id string) string {
	return filepath.Join(fp.root, kind, id+".json")
}

func (fp *Persistence) write(kind, id string, row any) error {
	data, err := json.MarshalIndent(row, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	if err := os.WriteFile(fp.path(kind, id), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	return nil
}

func (fp *Persistence) read(kind, id string, row any) (bool, error) {
	data, err := os.ReadFile(fp.path(kind, id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}

	if err := json.Unmarshal(data, row); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}

	return true, nil
}

// readAll iterates every row of a kind, decoding each into a fresh value
// produced by newRow and passing it to visit.
func readAll[T any](fp *Persistence, kind string, visit func(*T)) error {
	entries, err := os.ReadDir(filepath.Join(fp.root, kind))
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", kind, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")

		row := new(T)

		found, err := fp.read(kind, id, row)
		if err != nil {
			return err
		}

		if found {
			visit(row)
		}
	}

	return nil
}
