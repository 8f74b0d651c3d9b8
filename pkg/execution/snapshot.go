package execution

import (
	"fmt"
)

// Snapshot field keys within the execution row's context_snapshot column.
const (
	snapshotKeyVariables     = "variables"
	snapshotKeyNodeOutputs   = "node_outputs"
	snapshotKeyMetadata      = "metadata"
	snapshotKeyTriggerInputs = "trigger_inputs"
	snapshotKeySuspension    = "suspension"
)

// Snapshot serializes the context into the durable snapshot format. The
// result is a deep copy: later context mutation never leaks into a snapshot
// already handed to persistence.
func (c *Context) Snapshot() map[string]any {
	snapshot := map[string]any{
		snapshotKeyVariables:     deepCopyMap(c.variables),
		snapshotKeyNodeOutputs:   copyNestedMaps(c.nodeOutputs),
		snapshotKeyMetadata:      deepCopyMap(c.metadata),
		snapshotKeyTriggerInputs: copyNestedMaps(c.triggerInputs),
	}

	if c.suspension != nil {
		snapshot[snapshotKeySuspension] = map[string]any{
			"wait_state_id": c.suspension.WaitStateID,
			"node_id":       c.suspension.NodeID,
		}
	}

	return snapshot
}

// Restore rebuilds a context from a durable snapshot. Restore(Snapshot(c))
// yields a context behaviorally identical to c; restoring twice from the
// same snapshot is idempotent.
func Restore(executionID, workflowID string, snapshot map[string]any) (*Context, error) {
	ctx := NewContext(executionID, workflowID)

	if snapshot == nil {
		return ctx, nil
	}

	if raw, ok := snapshot[snapshotKeyVariables]; ok {
		vars, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("context snapshot for %s: variables is not an object", executionID)
		}

		ctx.variables = deepCopyMap(vars)
	}

	if raw, ok := snapshot[snapshotKeyMetadata]; ok {
		meta, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("context snapshot for %s: metadata is not an object", executionID)
		}

		ctx.metadata = deepCopyMap(meta)
	}

	if raw, ok := snapshot[snapshotKeyNodeOutputs]; ok {
		outputs, err := restoreNestedMaps(raw)
		if err != nil {
			return nil, fmt.Errorf("context snapshot for %s: node_outputs: %w", executionID, err)
		}

		ctx.nodeOutputs = outputs
	}

	if raw, ok := snapshot[snapshotKeyTriggerInputs]; ok {
		inputs, err := restoreNestedMaps(raw)
		if err != nil {
			return nil, fmt.Errorf("context snapshot for %s: trigger_inputs: %w", executionID, err)
		}

		ctx.triggerInputs = inputs
	}

	if raw, ok := snapshot[snapshotKeySuspension]; ok {
		pointer, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("context snapshot for %s: suspension is not an object", executionID)
		}

		waitStateID, _ := pointer["wait_state_id"].(string)
		nodeID, _ := pointer["node_id"].(string)

		if waitStateID == "" || nodeID == "" {
			return nil, fmt.Errorf("context snapshot for %s: incomplete suspension pointer", executionID)
		}

		ctx.suspension = &SuspensionPoint{WaitStateID: waitStateID, NodeID: nodeID}
	}

	return ctx, nil
}

func copyNestedMaps(source map[string]map[string]any) map[string]any {
	copied := make(map[string]any, len(source))

	for key, inner := range source {
		copied[key] = deepCopyMap(inner)
	}

	return copied
}

func restoreNestedMaps(raw any) (map[string]map[string]any, error) {
	outer, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", raw)
	}

	restored := make(map[string]map[string]any, len(outer))

	for key, value := range outer {
		inner, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("entry %q is not an object", key)
		}

		restored[key] = deepCopyMap(inner)
	}

	return restored, nil
}

// deepCopyMap copies a JSON-shaped value tree.
func deepCopyMap(source map[string]any) map[string]any {
	copied := make(map[string]any, len(source))

	for key, value := range source {
		copied[key] = deepCopyValue(value)
	}

	return copied
}

func deepCopyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return deepCopyMap(v)
	case []any:
		list := make([]any, len(v))
		for i, item := range v {
			list[i] = deepCopyValue(item)
		}

		return list
	default:
		return v
	}
}
