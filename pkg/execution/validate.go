package execution

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// validateInput checks a resolved input map against a component's input
// schema. Violations are reported as ErrMissingRequiredInput with one entry
// per failing field.
func validateInput(schema map[string]any, input map[string]any) (map[string]any, error) {
	if len(schema) == 0 {
		return nil, nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(input))
	if err != nil {
		return nil, fmt.Errorf("invalid input schema: %w", err)
	}

	if result.Valid() {
		return nil, nil
	}

	violations := make([]string, 0, len(result.Errors()))
	fields := make([]any, 0, len(result.Errors()))

	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
		field := desc.Field()
		if property, ok := desc.Details()["property"].(string); ok && desc.Type() == "required" {
			field = property
		}

		fields = append(fields, field)
	}

	details := map[string]any{
		"error_type": "missing_required_input",
		"fields":     fields,
	}

	return details, fmt.Errorf("%w: %s", ErrMissingRequiredInput, strings.Join(violations, "; "))
}
