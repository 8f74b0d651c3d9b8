// Package wait provides event-aggregation suspension node execution for workflow graphs.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cascadehq/cascade/pkg/dispatch"
	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/template"
)

// Executor suspends the execution until the expected external events arrive.
// Which event kinds are expected, and whether each one is required, comes
// from the node configuration; satisfaction is evaluated elsewhere against
// the wait state's aggregation policy.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

type eventConfig struct {
	required bool
	topic    string
	filter   map[string]any
}

type nodeConfig struct {
	correlationID string
	events        map[models.EventKind]eventConfig
	policy        models.AggregationPolicy
	onTimeout     models.TimeoutPolicy
	timeout       time.Duration
}

func parseConfig(config map[string]any) (*nodeConfig, error) {
	parsed := &nodeConfig{
		events:    make(map[models.EventKind]eventConfig),
		policy:    models.AggregationPolicyAll,
		onTimeout: models.TimeoutPolicyFail,
	}

	if corrID, ok := config["correlation_id"].(string); ok {
		parsed.correlationID = corrID
	}

	if policy, ok := config["policy"].(string); ok && policy != "" {
		switch models.AggregationPolicy(policy) {
		case models.AggregationPolicyAll, models.AggregationPolicyAny, models.AggregationPolicyRequired:
			parsed.policy = models.AggregationPolicy(policy)
		default:
			return nil, fmt.Errorf("unknown policy %q", policy)
		}
	}

	if onTimeout, ok := config["on_timeout"].(string); ok && onTimeout != "" {
		switch models.TimeoutPolicy(onTimeout) {
		case models.TimeoutPolicyFail, models.TimeoutPolicyContinue:
			parsed.onTimeout = models.TimeoutPolicy(onTimeout)
		default:
			return nil, fmt.Errorf("unknown on_timeout policy %q", onTimeout)
		}
	}

	if timeout, ok := config["timeout"].(string); ok && timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", timeout, err)
		}

		parsed.timeout = d
	}

	eventsRaw, ok := config["events"].(map[string]any)
	if !ok || len(eventsRaw) == 0 {
		return nil, errors.New("missing required field 'events'")
	}

	for kind, raw := range eventsRaw {
		switch models.EventKind(kind) {
		case models.EventKindAPIResponse, models.EventKindKafkaEvent:
		default:
			return nil, fmt.Errorf("unknown event kind %q", kind)
		}

		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("event %q must be an object", kind)
		}

		if enabled, ok := entry["enabled"].(bool); ok && !enabled {
			continue
		}

		ec := eventConfig{required: true}

		if required, ok := entry["required"].(bool); ok {
			ec.required = required
		}

		if topic, ok := entry["topic"].(string); ok {
			ec.topic = topic
		}

		if filter, ok := entry["filter"].(map[string]any); ok {
			ec.filter = filter
		}

		if models.EventKind(kind) == models.EventKindKafkaEvent && ec.topic == "" {
			return nil, errors.New("kafka_event expects a 'topic'")
		}

		parsed.events[models.EventKind(kind)] = ec
	}

	if len(parsed.events) == 0 {
		return nil, errors.New("all configured events are disabled")
	}

	return parsed, nil
}

// Execute builds the suspension from the enabled event expectations. The
// correlation ID template is rendered against the execution context; when no
// template is configured the orchestrator generates an opaque one.
func (e *Executor) Execute(ctx context.Context, execCtx *execution.Context, node *models.WorkflowNode) (*dispatch.Result, error) {
	cfg, err := parseConfig(node.Config)
	if err != nil {
		return nil, fmt.Errorf("wait node %s: %w", node.ID, err)
	}

	correlationID := ""

	if cfg.correlationID != "" {
		rendered, err := template.RenderWithContext(cfg.correlationID, execCtx)
		if err != nil {
			return nil, fmt.Errorf("wait node %s: %w", node.ID, err)
		}

		correlationID = fmt.Sprintf("%v", rendered)
	}

	expectations := make([]models.EventExpectation, 0, len(cfg.events))

	for _, kind := range []models.EventKind{models.EventKindAPIResponse, models.EventKindKafkaEvent} {
		ec, ok := cfg.events[kind]
		if !ok {
			continue
		}

		expectations = append(expectations, models.EventExpectation{
			Kind:     kind,
			Required: ec.required,
			Topic:    ec.topic,
			Filter:   ec.filter,
		})
	}

	return &dispatch.Result{
		Branch: models.PortMain,
		Suspend: &dispatch.Suspension{
			CorrelationID: correlationID,
			Expectations:  expectations,
			Policy:        cfg.policy,
			OnTimeout:     cfg.onTimeout,
			Timeout:       cfg.timeout,
		},
	}, nil
}
