// Package publishevent provides message-publishing action execution for workflow graphs.
package publishevent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cascadehq/cascade/pkg/dispatch"
	"github.com/cascadehq/cascade/pkg/events"
	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/template"
)

// Executor publishes a templated payload to a configured topic. The payload
// travels as JSON; the partition key defaults to the execution ID so one
// execution's events stay ordered.
type Executor struct {
	publisher message.Publisher
}

func NewExecutor(publisher message.Publisher) *Executor {
	return &Executor{publisher: publisher}
}

type nodeConfig struct {
	topic string
	key   string
	data  map[string]any
}

func parseConfig(config map[string]any) (*nodeConfig, error) {
	topic, ok := config["topic"].(string)
	if !ok || topic == "" {
		return nil, errors.New("missing required field 'topic'")
	}

	parsed := &nodeConfig{topic: topic}

	if key, ok := config["key"].(string); ok {
		parsed.key = key
	}

	data, ok := config["data"].(map[string]any)
	if !ok {
		return nil, errors.New("missing required field 'data'")
	}

	parsed.data = data

	return parsed, nil
}

// Execute renders the data map against the execution context and publishes it.
func (e *Executor) Execute(ctx context.Context, execCtx *execution.Context, node *models.WorkflowNode) (*dispatch.Result, error) {
	cfg, err := parseConfig(node.Config)
	if err != nil {
		return nil, fmt.Errorf("publish_event node %s: %w", node.ID, err)
	}

	rendered, err := template.RenderMap(cfg.data, execCtx)
	if err != nil {
		return nil, fmt.Errorf("publish_event node %s: %w", node.ID, err)
	}

	payload, err := json.Marshal(rendered)
	if err != nil {
		return nil, fmt.Errorf("publish_event node %s: %w", node.ID, err)
	}

	key := execCtx.ExecutionID

	if cfg.key != "" {
		renderedKey, err := template.RenderWithContext(cfg.key, execCtx)
		if err != nil {
			return nil, fmt.Errorf("publish_event node %s: key: %w", node.ID, err)
		}

		key = fmt.Sprintf("%v", renderedKey)
	}

	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)

	if err := e.publisher.Publish(cfg.topic, msg); err != nil {
		return nil, fmt.Errorf("publish_event node %s: %w", node.ID, err)
	}

	return &dispatch.Result{
		Output: map[string]any{"topic": cfg.topic, "key": key, "published": true},
		Branch: models.PortMain,
	}, nil
}
