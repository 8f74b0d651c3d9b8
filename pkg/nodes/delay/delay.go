// Package delay provides wall-clock suspension node execution for workflow graphs.
package delay

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

// Executor suspends the execution until a wall-clock deadline. The deadline is
// carried on the wait state, so any instance can resume the execution even if
// the suspending one is gone. No goroutine sleeps for the delay duration.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

type nodeConfig struct {
	duration time.Duration
	until    string
}

func parseConfig(config map[string]any) (*nodeConfig, error) {
	parsed := &nodeConfig{}

	if until, ok := config["until"].(string); ok && until != "" {
		parsed.until = until

		return parsed, nil
	}

	switch duration := config["duration"].(type) {
	case string:
		d, err := time.ParseDuration(duration)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", duration, err)
		}

		parsed.duration = d
	case float64:
		parsed.duration = time.Duration(duration * float64(time.Second))
	default:
		return nil, errors.New("missing required field 'duration' or 'until'")
	}

	if parsed.duration <= 0 {
		return nil, errors.New("duration must be positive")
	}

	return parsed, nil
}

// Execute computes the resume deadline and suspends. An "until" deadline in
// the past resolves immediately without suspending.
func (e *Executor) Execute(ctx context.Context, execCtx *execution.Context, node *models.WorkflowNode) (*dispatch.Result, error) {
	cfg, err := parseConfig(node.Config)
	if err != nil {
		return nil, fmt.Errorf("delay node %s: %w", node.ID, err)
	}

	now := time.Now().UTC()
	resumeAt := now.Add(cfg.duration)

	if cfg.until != "" {
		rendered, err := template.RenderWithContext(cfg.until, execCtx)
		if err != nil {
			return nil, fmt.Errorf("delay node %s: %w", node.ID, err)
		}

		untilStr, ok := rendered.(string)
		if !ok {
			return nil, fmt.Errorf("delay node %s: 'until' must render to a timestamp string", node.ID)
		}

		resumeAt, err = time.Parse(time.RFC3339, untilStr)
		if err != nil {
			return nil, fmt.Errorf("delay node %s: invalid 'until' timestamp %q: %w", node.ID, untilStr, err)
		}

		resumeAt = resumeAt.UTC()
	}

	if !resumeAt.After(now) {
		return &dispatch.Result{
			Output: map[string]any{"resumed_at": now.Format(time.RFC3339), "skipped": true},
			Branch: models.PortMain,
		}, nil
	}

	return &dispatch.Result{
		Output: map[string]any{"resume_at": resumeAt.Format(time.RFC3339)},
		Branch: models.PortMain,
		Suspend: &dispatch.Suspension{
			Expectations: []models.EventExpectation{
				{Kind: models.EventKindDelay, Required: true},
			},
			Policy:    models.AggregationPolicyAll,
			OnTimeout: models.TimeoutPolicyContinue,
			ResumeAt:  &resumeAt,
		},
	}, nil
}
