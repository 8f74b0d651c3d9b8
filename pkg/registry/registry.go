// Package registry assembles the dispatcher's executor tables and validates
// node configurations against their kind's JSON schema.
package registry

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cascadehq/cascade/pkg/dispatch"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes/apicall"
	"github.com/cascadehq/cascade/pkg/nodes/condition"
	"github.com/cascadehq/cascade/pkg/nodes/delay"
	"github.com/cascadehq/cascade/pkg/nodes/function"
	"github.com/cascadehq/cascade/pkg/nodes/loop"
	"github.com/cascadehq/cascade/pkg/nodes/merge"
	"github.com/cascadehq/cascade/pkg/nodes/publishevent"
	"github.com/cascadehq/cascade/pkg/nodes/switchnode"
	"github.com/cascadehq/cascade/pkg/nodes/wait"
	"github.com/xeipuuv/gojsonschema"
)

// Registry maps node kinds to executors and config schemas. Populated once
// at startup; the dispatcher receives the finished tables.
type Registry struct {
	logger  *slog.Logger
	logic   map[string]dispatch.NodeExecutor
	actions map[string]dispatch.NodeExecutor
	schemas map[string]map[string]any
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger.With("module", "registry"),
		logic:   make(map[string]dispatch.NodeExecutor),
		actions: make(map[string]dispatch.NodeExecutor),
		schemas: make(map[string]map[string]any),
	}
}

// RegisterLogic adds a logic-kind executor with an optional config schema.
func (r *Registry) RegisterLogic(kind string, executor dispatch.NodeExecutor, schema map[string]any) {
	r.logic[kind] = executor

	if schema != nil {
		r.schemas[kind] = schema
	}
}

// RegisterAction adds an action-kind executor with an optional config schema.
func (r *Registry) RegisterAction(kind string, executor dispatch.NodeExecutor, schema map[string]any) {
	r.actions[kind] = executor

	if schema != nil {
		r.schemas[kind] = schema
	}
}

// Dispatcher builds the two-level dispatcher over the registered tables.
func (r *Registry) Dispatcher(logger *slog.Logger) *dispatch.Dispatcher {
	return dispatch.NewDispatcher(logger, r.logic, r.actions)
}

// LogicKinds lists registered logic kinds.
func (r *Registry) LogicKinds() []string {
	kinds := make([]string, 0, len(r.logic))
	for kind := range r.logic {
		kinds = append(kinds, kind)
	}

	return kinds
}

// ActionKinds lists registered action kinds.
func (r *Registry) ActionKinds() []string {
	kinds := make([]string, 0, len(r.actions))
	for kind := range r.actions {
		kinds = append(kinds, kind)
	}

	return kinds
}

// ValidateNode checks that the node's kind is registered for its type and
// that its config satisfies the kind's schema.
func (r *Registry) ValidateNode(node *models.WorkflowNode) error {
	switch node.Type {
	case models.NodeTypeTrigger:
		// Trigger nodes carry provider config validated by the external
		// trigger collaborator.
		return nil
	case models.NodeTypeLogic:
		if _, ok := r.logic[node.Kind]; !ok {
			return fmt.Errorf("logic kind %q is not registered", node.Kind)
		}
	case models.NodeTypeAction:
		if _, ok := r.actions[node.Kind]; !ok {
			return fmt.Errorf("action kind %q is not registered", node.Kind)
		}
	default:
		return fmt.Errorf("unknown node type %q", node.Type)
	}

	schema, ok := r.schemas[node.Kind]
	if !ok {
		return nil
	}

	return validateSchema(node, schema)
}

// ValidateWorkflow validates every node of the workflow, collecting all
// failures into one error.
func (r *Registry) ValidateWorkflow(wf *models.Workflow) error {
	var failures []string

	for _, node := range wf.Nodes {
		if err := r.ValidateNode(node); err != nil {
			failures = append(failures, fmt.Sprintf("node %s: %v", node.ID, err))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("workflow %s validation failed: %s", wf.ID, strings.Join(failures, "; "))
	}

	return nil
}

func validateSchema(node *models.WorkflowNode, schema map[string]any) error {
	config := node.Config
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("validate config of kind %q: %w", node.Kind, err)
	}

	if !result.Valid() {
		var descriptions []string
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("config of kind %q is invalid: %s", node.Kind, strings.Join(descriptions, "; "))
	}

	return nil
}

// NewDefaultRegistry registers every built-in node kind. The publisher backs
// the publish-event action; funcs is the named function table for the
// function action, nil for none.
func NewDefaultRegistry(logger *slog.Logger, publisher message.Publisher, httpClient *http.Client, funcs map[string]function.Func) *Registry {
	r := NewRegistry(logger)

	r.RegisterLogic(models.LogicKindCondition, condition.NewExecutor(), conditionSchema)
	r.RegisterLogic(models.LogicKindSwitch, switchnode.NewExecutor(), switchSchema)
	r.RegisterLogic(models.LogicKindLoop, loop.NewExecutor(), loopSchema)
	r.RegisterLogic(models.LogicKindMerge, merge.NewExecutor(), mergeSchema)
	r.RegisterLogic(models.LogicKindDelay, delay.NewExecutor(), delaySchema)
	r.RegisterLogic(models.LogicKindWait, wait.NewExecutor(), waitSchema)

	r.RegisterAction(models.ActionKindAPICall, apicall.NewExecutor(httpClient), apiCallSchema)
	r.RegisterAction(models.ActionKindPublishEvent, publishevent.NewExecutor(publisher), publishEventSchema)
	r.RegisterAction(models.ActionKindFunction, function.NewExecutor(funcs), functionSchema)

	return r
}
