package models

// ConditionOperator compares a resolved field value against a literal.
type ConditionOperator string

const (
	OperatorEquals         ConditionOperator = "equals"
	OperatorNotEquals      ConditionOperator = "not_equals"
	OperatorContains       ConditionOperator = "contains"
	OperatorGreaterThan    ConditionOperator = "greater_than"
	OperatorLessThan       ConditionOperator = "less_than"
	OperatorGreaterOrEqual ConditionOperator = "greater_or_equal"
	OperatorLessOrEqual    ConditionOperator = "less_or_equal"
)

// ConditionLogic combines multiple conditions.
type ConditionLogic string

const (
	ConditionLogicAnd ConditionLogic = "and"
	ConditionLogicOr  ConditionLogic = "or"
)

// Condition is one field-reference + operator + literal comparison. Field
// references address trigger data ("trigger.amount"), node outputs
// ("node.<id>.body.total"), named variables, or fall back to the first
// available node output containing the head field.
type Condition struct {
	Field    string            `json:"field"    validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required"`
	Value    any               `json:"value"`
}

// SwitchCase is one ordered value → branch entry of a switch node.
type SwitchCase struct {
	Value  any    `json:"value"`
	Branch string `json:"branch" validate:"required"`
}
