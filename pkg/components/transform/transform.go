// Package transform provides the data transform and data output components.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/flowstudio/pkg/protocol"
	"github.com/tidwall/gjson"
)

const (
	OperationFilter    = "filter"
	OperationMap       = "map"
	OperationAggregate = "aggregate"
)

// Component filters, maps or aggregates a list of records.
type Component struct{}

func NewComponent() *Component {
	return &Component{}
}

func (c *Component) ID() string {
	return "data_transform"
}

func (c *Component) Name() string {
	return "Data Transform"
}

func (c *Component) Description() string {
	return "Filters, maps or aggregates structured data"
}

func (c *Component) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"data": map[string]any{"description": "List of records or a single value"},
			"operation": map[string]any{
				"type":    "string",
				"enum":    []string{OperationFilter, OperationMap, OperationAggregate},
				"default": OperationFilter,
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Optional GJSON path selecting the records inside data",
				"examples":    []string{"items", "response.results", "orders.#(total>10)#"},
			},
			"config": map[string]any{
				"type":        "object",
				"description": "filter: key, value, operator; map: mapping; aggregate: function, key",
			},
		},
	}
}

func (c *Component) Execute(_ context.Context, ec protocol.ExecutionContext) protocol.Result {
	start := time.Now()

	data := ec.Input["data"]
	operation := protocol.String(ec.Input, "operation", OperationFilter)
	config := protocol.Map(ec.Input, "config")

	if protocol.IsEmpty(data) {
		return protocol.Fail(start, "Data is required")
	}

	if path := protocol.String(ec.Input, "path", ""); path != "" {
		selected, err := Select(data, path)
		if err != nil {
			return protocol.Fail(start, err.Error())
		}

		data = selected
	}

	var (
		result any
		err    error
	)

	switch operation {
	case OperationFilter:
		result, err = filter(data, config)
	case OperationMap:
		result, err = mapRecords(data, config)
	case OperationAggregate:
		result, err = aggregate(data, config)
	default:
		return protocol.Fail(start, "Unknown operation: "+operation)
	}

	if err != nil {
		return protocol.Fail(start, err.Error())
	}

	return protocol.Succeed(start, map[string]any{
		"data":           result,
		"operation":      operation,
		"original_count": count(data),
		"result_count":   count(result),
	})
}

// Select evaluates a GJSON path against any JSON-compatible value.
func Select(data any, path string) (any, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("data is not JSON serializable: %w", err)
	}

	result := gjson.GetBytes(payload, path)
	if !result.Exists() {
		return nil, fmt.Errorf("path %q not found in data", path)
	}

	return result.Value(), nil
}

// lookup resolves a key or dotted GJSON path inside one record.
func lookup(item map[string]any, key string) (any, bool) {
	if value, ok := item[key]; ok {
		return value, true
	}

	if !strings.ContainsAny(key, ".#|") {
		return nil, false
	}

	value, err := Select(item, key)
	if err != nil {
		return nil, false
	}

	return value, true
}

func filter(data any, config map[string]any) (any, error) {
	items, ok := data.([]any)
	if !ok {
		return data, nil
	}

	key := protocol.String(config, "key", "")
	value := config["value"]
	operator := protocol.String(config, "operator", "equals")

	result := make([]any, 0, len(items))

	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		itemValue, found := lookup(item, key)
		if found && matches(itemValue, value, operator) {
			result = append(result, item)
		}
	}

	return result, nil
}

func matches(itemValue, filterValue any, operator string) bool {
	switch operator {
	case "equals":
		return protocol.Stringify(itemValue) == protocol.Stringify(filterValue)
	case "not_equals":
		return protocol.Stringify(itemValue) != protocol.Stringify(filterValue)
	case "contains":
		return strings.Contains(protocol.Stringify(itemValue), protocol.Stringify(filterValue))
	case "greater_than", "less_than":
		l, err := protocol.Float(itemValue)
		if err != nil {
			return false
		}

		r, err := protocol.Float(filterValue)
		if err != nil {
			return false
		}

		if operator == "greater_than" {
			return l > r
		}

		return l < r
	default:
		return false
	}
}

func mapRecords(data any, config map[string]any) (any, error) {
	items, ok := data.([]any)
	if !ok {
		return data, nil
	}

	mapping := protocol.Map(config, "mapping")
	result := make([]any, 0, len(items))

	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			result = append(result, raw)

			continue
		}

		mapped := make(map[string]any, len(mapping))

		for newKey, oldKey := range mapping {
			if value, found := lookup(item, protocol.Stringify(oldKey)); found {
				mapped[newKey] = value
			}
		}

		result = append(result, mapped)
	}

	return result, nil
}

func aggregate(data any, config map[string]any) (any, error) {
	items, ok := data.([]any)
	if !ok {
		return data, nil
	}

	function := protocol.String(config, "function", "count")
	key := protocol.String(config, "key", "")

	if key == "" || (function != "sum" && function != "average") {
		return len(items), nil
	}

	sum := 0.0
	records := 0

	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		records++

		value, found := lookup(item, key)
		if !found {
			continue
		}

		number, err := protocol.Float(value)
		if err != nil {
			return nil, fmt.Errorf("cannot aggregate %q: %w", key, err)
		}

		sum += number
	}

	if function == "sum" {
		return sum, nil
	}

	if records == 0 {
		return 0.0, nil
	}

	return sum / float64(records), nil
}

func count(value any) int {
	if items, ok := value.([]any); ok {
		return len(items)
	}

	return 1
}
