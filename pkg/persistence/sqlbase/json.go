package sqlbase

import (
	"encoding/json"
	"fmt"
)

// ToJSON encodes a value as a JSONB query argument. Nil maps and pointers
// become an untyped nil so the driver sends SQL NULL.
func ToJSON(value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json column: %w", err)
	}

	if string(data) == "null" {
		return nil, nil
	}

	return string(data), nil
}

// FromJSON decodes a JSONB column, leaving target untouched for NULL.
func FromJSON(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}

	err := json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to decode json column: %w", err)
	}

	return nil
}
