// Package condition provides conditional branching node execution for workflow graphs.
package condition

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cascadehq/cascade/pkg/dispatch"
	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/models"
)

// Executor evaluates one or more conditions against the execution context and
// routes to the true or false output port.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

type nodeConfig struct {
	conditions []models.Condition
	logic      models.ConditionLogic
}

// parseConfig accepts either the single-condition form {field, operator,
// value} or the list form {conditions: [...], logic: "and"|"or"}.
func parseConfig(config map[string]any) (*nodeConfig, error) {
	parsed := &nodeConfig{logic: models.ConditionLogicAnd}

	if logic, ok := config["logic"].(string); ok {
		switch models.ConditionLogic(logic) {
		case models.ConditionLogicAnd, models.ConditionLogicOr:
			parsed.logic = models.ConditionLogic(logic)
		default:
			return nil, fmt.Errorf("unknown logic %q", logic)
		}
	}

	if list, ok := config["conditions"].([]any); ok {
		for i, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("condition %d must be an object", i)
			}

			cond, err := parseCondition(entry)
			if err != nil {
				return nil, fmt.Errorf("condition %d: %w", i, err)
			}

			parsed.conditions = append(parsed.conditions, *cond)
		}

		if len(parsed.conditions) == 0 {
			return nil, errors.New("'conditions' must not be empty")
		}

		return parsed, nil
	}

	cond, err := parseCondition(config)
	if err != nil {
		return nil, err
	}

	parsed.conditions = []models.Condition{*cond}

	return parsed, nil
}

func parseCondition(entry map[string]any) (*models.Condition, error) {
	field, ok := entry["field"].(string)
	if !ok || field == "" {
		return nil, errors.New("missing required field 'field'")
	}

	operator, ok := entry["operator"].(string)
	if !ok {
		return nil, errors.New("missing required field 'operator'")
	}

	switch models.ConditionOperator(operator) {
	case models.OperatorEquals, models.OperatorNotEquals, models.OperatorContains,
		models.OperatorGreaterThan, models.OperatorLessThan,
		models.OperatorGreaterOrEqual, models.OperatorLessOrEqual:
	default:
		return nil, fmt.Errorf("unknown operator %q", operator)
	}

	return &models.Condition{
		Field:    field,
		Operator: models.ConditionOperator(operator),
		Value:    entry["value"],
	}, nil
}

// Execute evaluates the configured conditions with short-circuiting and routes
// to the true or false branch.
func (e *Executor) Execute(ctx context.Context, execCtx *execution.Context, node *models.WorkflowNode) (*dispatch.Result, error) {
	cfg, err := parseConfig(node.Config)
	if err != nil {
		return nil, fmt.Errorf("condition node %s: %w", node.ID, err)
	}

	matched := cfg.logic == models.ConditionLogicAnd

	for _, cond := range cfg.conditions {
		ok, err := Evaluate(execCtx, cond)
		if err != nil {
			return nil, fmt.Errorf("condition node %s: %w", node.ID, err)
		}

		if cfg.logic == models.ConditionLogicAnd && !ok {
			matched = false

			break
		}

		if cfg.logic == models.ConditionLogicOr && ok {
			matched = true

			break
		}
	}

	branch := models.PortFalse
	if matched {
		branch = models.PortTrue
	}

	return &dispatch.Result{
		Output: map[string]any{"result": matched},
		Branch: branch,
	}, nil
}

// Evaluate resolves the condition's field against the execution context and
// applies the operator. An unresolvable field compares as nil rather than
// failing, so conditions can probe for optional data.
func Evaluate(execCtx *execution.Context, cond models.Condition) (bool, error) {
	resolved, err := execution.ResolveField(execCtx, cond.Field)
	if err != nil {
		if errors.Is(err, execution.ErrFieldNotResolved) {
			resolved = nil
		} else {
			return false, err
		}
	}

	switch cond.Operator {
	case models.OperatorEquals:
		return equal(resolved, cond.Value), nil
	case models.OperatorNotEquals:
		return !equal(resolved, cond.Value), nil
	case models.OperatorContains:
		return contains(resolved, cond.Value), nil
	case models.OperatorGreaterThan, models.OperatorLessThan,
		models.OperatorGreaterOrEqual, models.OperatorLessOrEqual:
		return compareNumeric(cond.Operator, resolved, cond.Value)
	default:
		return false, fmt.Errorf("unknown operator %q", cond.Operator)
	}
}

func equal(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)

	if lok && rok {
		return lf == rf
	}

	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}

func contains(left, right any) bool {
	switch v := left.(type) {
	case string:
		return strings.Contains(v, fmt.Sprintf("%v", right))
	case []any:
		for _, item := range v {
			if equal(item, right) {
				return true
			}
		}

		return false
	case map[string]any:
		key, ok := right.(string)
		if !ok {
			return false
		}

		_, exists := v[key]

		return exists
	default:
		return false
	}
}

func compareNumeric(op models.ConditionOperator, left, right any) (bool, error) {
	lf, ok := toFloat(left)
	if !ok {
		return false, fmt.Errorf("value %v is not numeric", left)
	}

	rf, ok := toFloat(right)
	if !ok {
		return false, fmt.Errorf("value %v is not numeric", right)
	}

	switch op {
	case models.OperatorGreaterThan:
		return lf > rf, nil
	case models.OperatorLessThan:
		return lf < rf, nil
	case models.OperatorGreaterOrEqual:
		return lf >= rf, nil
	case models.OperatorLessOrEqual:
		return lf <= rf, nil
	default:
		return false, fmt.Errorf("operator %q is not numeric", op)
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)

		return f, err == nil
	default:
		return 0, false
	}
}
