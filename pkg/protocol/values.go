package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Setting looks a key up in the resolved input first and falls back to the static config.
func (ec ExecutionContext) Setting(key string) (any, bool) {
	if value, ok := ec.Input[key]; ok && value != nil {
		return value, true
	}

	if value, ok := ec.Config[key]; ok && value != nil {
		return value, true
	}

	return nil, false
}

// String returns a string input value, or fallback when missing.
func String(values map[string]any, key, fallback string) string {
	value, ok := values[key]
	if !ok || value == nil {
		return fallback
	}

	return Stringify(value)
}

// Stringify renders a scalar the way users expect to see it in text.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "True"
		}

		return "False"
	default:
		return fmt.Sprint(v)
	}
}

// Float converts numbers and numeric strings.
func Float(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case bool:
		if v {
			return 1, nil
		}

		return 0, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", value)
	}
}

// FloatOr returns values[key] as a float, or fallback when missing or not numeric.
func FloatOr(values map[string]any, key string, fallback float64) float64 {
	value, ok := values[key]
	if !ok {
		return fallback
	}

	f, err := Float(value)
	if err != nil {
		return fallback
	}

	return f
}

// IntOr returns values[key] as an int, or fallback when missing or not numeric.
func IntOr(values map[string]any, key string, fallback int) int {
	return int(FloatOr(values, key, float64(fallback)))
}

// Map returns values[key] when it is an object.
func Map(values map[string]any, key string) map[string]any {
	if m, ok := values[key].(map[string]any); ok {
		return m
	}

	return map[string]any{}
}

// IsEmpty mirrors the truthiness used for required inputs: nil, "", empty
// collections and zero numbers are empty.
func IsEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case float64:
		return v == 0
	case int:
		return v == 0
	case bool:
		return !v
	default:
		return false
	}
}
