package models

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Operator is a comparison operator usable in branch and loop conditions.
// All non-numeric operators compare the string rendering of both operands.
type Operator string

const (
	OperatorEquals      Operator = "eq"
	OperatorNotEquals   Operator = "not_eq"
	OperatorContains    Operator = "contains"
	OperatorNotContains Operator = "not_contains"
	OperatorStartsWith  Operator = "starts_with"
	OperatorEndsWith    Operator = "ends_with"
	OperatorIsEmpty     Operator = "is_empty"
	OperatorIsNotEmpty  Operator = "is_not_empty"

	// Numeric operators coerce both operands to float64. A failed coercion
	// degrades the condition to false instead of failing the evaluation.
	OperatorGreaterThan  Operator = "gt"
	OperatorLessThan     Operator = "lt"
	OperatorGreaterEqual Operator = "gte"
	OperatorLessEqual    Operator = "lte"
)

// LogicalOperator combines multiple conditions into one boolean.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
)

// Condition compares a selected value against a static operand.
type Condition struct {
	Selector Selector `json:"selector"`
	Operator Operator `json:"operator" validate:"required"`
	Value    any      `json:"value"`
}

// IfCase is one arm of a branch vertex: its conditions are combined with
// LogicalOperator (default "and") and the first case that holds wins.
type IfCase struct {
	ID              string          `json:"id"               validate:"required"`
	Conditions      []Condition     `json:"conditions"       validate:"min=1"`
	LogicalOperator LogicalOperator `json:"logical_operator"`
}

// WhileCondition gates loop continuation. The LogicalOperator tells how the
// condition combines with the result accumulated from preceding conditions.
type WhileCondition struct {
	Condition

	LogicalOperator LogicalOperator `json:"logical_operator"`
}

// Evaluate applies the condition's operator to the already-resolved actual
// value. Unsupported operators are a configuration error surfaced at
// evaluation time.
func (c Condition) Evaluate(actual any) (bool, error) {
	expected := stringify(c.Value)
	got := stringify(actual)

	switch c.Operator {
	case OperatorEquals:
		return got == expected, nil
	case OperatorNotEquals:
		return got != expected, nil
	case OperatorContains:
		return strings.Contains(got, expected), nil
	case OperatorNotContains:
		return !strings.Contains(got, expected), nil
	case OperatorStartsWith:
		return strings.HasPrefix(got, expected), nil
	case OperatorEndsWith:
		return strings.HasSuffix(got, expected), nil
	case OperatorIsEmpty:
		return isEmpty(actual), nil
	case OperatorIsNotEmpty:
		return !isEmpty(actual), nil
	case OperatorGreaterThan, OperatorLessThan, OperatorGreaterEqual, OperatorLessEqual:
		return c.evaluateNumeric(actual)
	default:
		return false, fmt.Errorf("unsupported condition operator %q", c.Operator)
	}
}

func (c Condition) evaluateNumeric(actual any) (bool, error) {
	left, err := toFloat(actual)
	if err != nil {
		slog.Warn("numeric condition coercion failed, evaluating to false",
			"operator", string(c.Operator), "value", actual, "error", err)

		return false, nil
	}

	right, err := toFloat(c.Value)
	if err != nil {
		slog.Warn("numeric condition coercion failed, evaluating to false",
			"operator", string(c.Operator), "value", c.Value, "error", err)

		return false, nil
	}

	switch c.Operator {
	case OperatorGreaterThan:
		return left > right, nil
	case OperatorLessThan:
		return left < right, nil
	case OperatorGreaterEqual:
		return left >= right, nil
	default:
		return left <= right, nil
	}
}

// Evaluate resolves and combines the case's conditions. Resolution of each
// condition's selector is delegated so the same machinery works against a
// parent context, a subgraph scratch store or a loop's carried state.
func (ic IfCase) Evaluate(resolve func(Selector) (any, error)) (bool, error) {
	combine := ic.LogicalOperator
	if combine == "" {
		combine = LogicalAnd
	}

	if combine != LogicalAnd && combine != LogicalOr {
		return false, fmt.Errorf("unsupported logical operator %q in case %q", combine, ic.ID)
	}

	for _, cond := range ic.Conditions {
		actual, err := resolve(cond.Selector)
		if err != nil {
			return false, fmt.Errorf("case %q: %w", ic.ID, err)
		}

		ok, err := cond.Evaluate(actual)
		if err != nil {
			return false, fmt.Errorf("case %q: %w", ic.ID, err)
		}

		if combine == LogicalAnd && !ok {
			return false, nil
		}

		if combine == LogicalOr && ok {
			return true, nil
		}
	}

	return combine == LogicalAnd, nil
}

// EvaluateWhileConditions folds a loop's condition list left to right, each
// condition attaching to the accumulated result with its own logical
// operator (default "and").
func EvaluateWhileConditions(conds []WhileCondition, resolve func(Selector) (any, error)) (bool, error) {
	result := true

	for i, wc := range conds {
		actual, err := resolve(wc.Selector)
		if err != nil {
			return false, err
		}

		ok, err := wc.Condition.Evaluate(actual)
		if err != nil {
			return false, err
		}

		if i == 0 {
			result = ok

			continue
		}

		switch wc.LogicalOperator {
		case LogicalOr:
			result = result || ok
		case LogicalAnd, "":
			result = result && ok
		default:
			return false, fmt.Errorf("unsupported logical operator %q", wc.LogicalOperator)
		}
	}

	return result, nil
}

func stringify(v any) string {
	if v == nil {
		return ""
	}

	return fmt.Sprintf("%v", v)
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return stringify(v) == ""
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to number: %w", t, err)
		}

		return f, nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to number", v)
	}
}
