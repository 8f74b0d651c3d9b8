package execution

import (
	"fmt"

	"github.com/cascadehq/cascade/pkg/models"
)

// Recover rebuilds a full context purely from the durable execution row.
// This is the only path usable when the resuming instance is not the one
// that suspended the execution, or after a crash. Recovery is idempotent:
// it never mutates the row and recovering twice yields equal contexts.
func Recover(exec *models.Execution) (*Context, error) {
	if exec == nil {
		return nil, fmt.Errorf("cannot recover context: nil execution")
	}

	ctx, err := Restore(exec.ID, exec.WorkflowID, exec.ContextSnapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to recover context for execution %s: %w", exec.ID, err)
	}

	// An execution created before its first snapshot still carries trigger
	// data on the row itself.
	if len(ctx.triggerInputs) == 0 && exec.TriggerData != nil && exec.TriggerNodeID != nil {
		ctx.SetTriggerInput(*exec.TriggerNodeID, deepCopyMap(exec.TriggerData))
	}

	return ctx, nil
}
