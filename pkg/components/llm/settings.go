// Package llm provides the OpenAI and Ollama language model components.
package llm

import (
	"encoding/json"
	"fmt"
	"math"

	"dario.cat/mergo"
	"github.com/dukex/flowstudio/pkg/protocol"
)

// decodeSettings layers the resolved input over the static config and fills
// anything still unset from defaults. Pointer fields distinguish an explicit
// zero from an unset value.
func decodeSettings[T any](ec protocol.ExecutionContext, defaults T) (T, error) {
	var settings T

	if err := decodeInto(ec.Config, &settings); err != nil {
		return settings, fmt.Errorf("invalid component config: %w", err)
	}

	var fromInput T

	if err := decodeInto(ec.Input, &fromInput); err != nil {
		return settings, fmt.Errorf("invalid component input: %w", err)
	}

	if err := mergo.Merge(&settings, fromInput, mergo.WithOverride, mergo.WithoutDereference); err != nil {
		return settings, err
	}

	if err := mergo.Merge(&settings, defaults, mergo.WithoutDereference); err != nil {
		return settings, err
	}

	return settings, nil
}

func decodeInto(values map[string]any, target any) error {
	if len(values) == 0 {
		return nil
	}

	payload, err := json.Marshal(values)
	if err != nil {
		return err
	}

	return json.Unmarshal(payload, target)
}

func ptr[T any](v T) *T {
	return &v
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
