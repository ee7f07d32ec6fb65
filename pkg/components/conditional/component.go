// Package conditional provides the component that evaluates a comparison between two values.
package conditional

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/flowstudio/pkg/protocol"
	"github.com/dukex/flowstudio/pkg/template"
)

const (
	Equals      = "equals"
	NotEquals   = "not_equals"
	Contains    = "contains"
	GreaterThan = "greater_than"
	LessThan    = "less_than"
	IsEmpty     = "is_empty"
	IsNotEmpty  = "is_not_empty"
	Expression  = "expression"
)

// Component evaluates condition_type over left_value and right_value.
type Component struct{}

func NewComponent() *Component {
	return &Component{}
}

func (c *Component) ID() string {
	return "conditional"
}

func (c *Component) Name() string {
	return "Conditional"
}

func (c *Component) Description() string {
	return "Compares two values and reports whether the condition holds"
}

func (c *Component) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition_type": map[string]any{
				"type":    "string",
				"enum":    []string{Equals, NotEquals, Contains, GreaterThan, LessThan, IsEmpty, IsNotEmpty, Expression},
				"default": Equals,
			},
			"left_value":  map[string]any{"description": "Left operand"},
			"right_value": map[string]any{"description": "Right operand"},
			"expression": map[string]any{
				"type":        "string",
				"description": "Go template evaluated against the input when condition_type is expression",
				"examples":    []string{`{{ gt .score 10.0 }}`, `{{ eq .status "ok" }}`},
			},
		},
	}
}

func (c *Component) Execute(_ context.Context, ec protocol.ExecutionContext) protocol.Result {
	start := time.Now()

	conditionType := protocol.String(ec.Input, "condition_type", Equals)
	left := valueOrEmpty(ec.Input, "left_value")
	right := valueOrEmpty(ec.Input, "right_value")

	var result bool

	if conditionType == Expression {
		evaluated, err := template.Render(protocol.String(ec.Input, "expression", ""), ec.Input)
		if err != nil {
			return protocol.Fail(start, fmt.Sprintf("condition evaluation failed: %v", err))
		}

		result = truthy(evaluated)
	} else {
		result = Evaluate(conditionType, left, right)
	}

	return protocol.Succeed(start, map[string]any{
		"condition_result": result,
		"left_value":       left,
		"right_value":      right,
		"condition_type":   conditionType,
	})
}

// Evaluate compares left and right. Numeric comparisons on non-numeric values
// and unknown condition types evaluate to false.
func Evaluate(conditionType string, left, right any) bool {
	switch conditionType {
	case Equals:
		return protocol.Stringify(left) == protocol.Stringify(right)
	case NotEquals:
		return protocol.Stringify(left) != protocol.Stringify(right)
	case Contains:
		return strings.Contains(protocol.Stringify(left), protocol.Stringify(right))
	case GreaterThan, LessThan:
		l, err := protocol.Float(left)
		if err != nil {
			return false
		}

		r, err := protocol.Float(right)
		if err != nil {
			return false
		}

		if conditionType == GreaterThan {
			return l > r
		}

		return l < r
	case IsEmpty:
		return strings.TrimSpace(protocol.Stringify(left)) == ""
	case IsNotEmpty:
		return strings.TrimSpace(protocol.Stringify(left)) != ""
	default:
		return false
	}
}

func valueOrEmpty(input map[string]any, key string) any {
	if value, ok := input[key]; ok && value != nil {
		return value
	}

	return ""
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v != "" && v != "false"
	default:
		return !protocol.IsEmpty(v)
	}
}
