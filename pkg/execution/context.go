// Package execution holds the in-memory execution context, its durable
// snapshot format, the fast-path context cache and snapshot recovery.
package execution

import "maps"

// SuspensionPoint records where a suspended execution must resume.
type SuspensionPoint struct {
	WaitStateID string `json:"wait_state_id"`
	NodeID      string `json:"node_id"`
}

// Context is the mutable state bag for one in-flight execution. It is owned
// exclusively by the instance holding the execution's lock and is fully
// serializable: pause/resume moves the whole context through Snapshot.
type Context struct {
	ExecutionID string
	WorkflowID  string

	variables     map[string]any
	nodeOutputs   map[string]map[string]any
	metadata      map[string]any
	triggerInputs map[string]map[string]any
	suspension    *SuspensionPoint
}

// NewContext creates an empty context for an execution.
func NewContext(executionID, workflowID string) *Context {
	return &Context{
		ExecutionID:   executionID,
		WorkflowID:    workflowID,
		variables:     make(map[string]any),
		nodeOutputs:   make(map[string]map[string]any),
		metadata:      make(map[string]any),
		triggerInputs: make(map[string]map[string]any),
	}
}

// Variable returns a named variable and whether it is set.
func (c *Context) Variable(name string) (any, bool) {
	value, ok := c.variables[name]

	return value, ok
}

// SetVariable sets a named variable.
func (c *Context) SetVariable(name string, value any) {
	c.variables[name] = value
}

// UnsetVariable removes a named variable.
func (c *Context) UnsetVariable(name string) {
	delete(c.variables, name)
}

// Variables returns the live variable map.
func (c *Context) Variables() map[string]any {
	return c.variables
}

// SetVariables replaces all variables, keeping a nil-safe map.
func (c *Context) SetVariables(vars map[string]any) {
	c.variables = make(map[string]any, len(vars))
	maps.Copy(c.variables, vars)
}

// NodeOutput returns the output map recorded for a node.
func (c *Context) NodeOutput(nodeID string) (map[string]any, bool) {
	output, ok := c.nodeOutputs[nodeID]

	return output, ok
}

// SetNodeOutput records (or replaces) a node's output map.
func (c *Context) SetNodeOutput(nodeID string, output map[string]any) {
	c.nodeOutputs[nodeID] = output
}

// NodeOutputs returns the live node-ID → output map.
func (c *Context) NodeOutputs() map[string]map[string]any {
	return c.nodeOutputs
}

// Metadata returns the live metadata map.
func (c *Context) Metadata() map[string]any {
	return c.metadata
}

// SetMetadata sets one metadata entry.
func (c *Context) SetMetadata(key string, value any) {
	c.metadata[key] = value
}

// TriggerInput returns the input data recorded for a trigger node.
func (c *Context) TriggerInput(nodeID string) (map[string]any, bool) {
	input, ok := c.triggerInputs[nodeID]

	return input, ok
}

// SetTriggerInput records the raw input data of one trigger node. Workflows
// may carry several independent trigger nodes; each keeps its own slot.
func (c *Context) SetTriggerInput(nodeID string, data map[string]any) {
	c.triggerInputs[nodeID] = data
}

// TriggerInputs returns the live trigger-node → input map.
func (c *Context) TriggerInputs() map[string]map[string]any {
	return c.triggerInputs
}

// Suspension returns the current suspension pointer, nil when running.
func (c *Context) Suspension() *SuspensionPoint {
	return c.suspension
}

// Suspend sets the suspension pointer.
func (c *Context) Suspend(waitStateID, nodeID string) {
	c.suspension = &SuspensionPoint{WaitStateID: waitStateID, NodeID: nodeID}
}

// ClearSuspension removes the suspension pointer.
func (c *Context) ClearSuspension() {
	c.suspension = nil
}

// TemplateData exposes the context as the data tree used by condition
// field resolution and config templating.
func (c *Context) TemplateData() map[string]any {
	nodes := make(map[string]any, len(c.nodeOutputs))
	for id, output := range c.nodeOutputs {
		nodes[id] = output
	}

	triggers := make(map[string]any, len(c.triggerInputs))
	for id, input := range c.triggerInputs {
		triggers[id] = input
	}

	return map[string]any{
		"variables": c.variables,
		"node":      nodes,
		"trigger":   c.mergedTriggerData(),
		"triggers":  triggers,
		"metadata":  c.metadata,
		"execution": map[string]any{
			"id":          c.ExecutionID,
			"workflow_id": c.WorkflowID,
		},
	}
}

// mergedTriggerData flattens all trigger inputs into one map. With a single
// trigger node this is exactly its input data.
func (c *Context) mergedTriggerData() map[string]any {
	merged := make(map[string]any)

	for _, input := range c.triggerInputs {
		maps.Copy(merged, input)
	}

	return merged
}
