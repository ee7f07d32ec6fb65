// Package text provides the text input, output, processing and prompt template components.
package text

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukex/flowstudio/pkg/protocol"
)

// InputComponent emits the configured text under a nested output object.
type InputComponent struct{}

func NewInputComponent() *InputComponent {
	return &InputComponent{}
}

func (c *InputComponent) ID() string {
	return "text_input"
}

func (c *InputComponent) Name() string {
	return "Text Input"
}

func (c *InputComponent) Description() string {
	return "Provides a text value to the flow"
}

func (c *InputComponent) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string", "description": "Text value passed downstream"},
		},
	}
}

func (c *InputComponent) Execute(_ context.Context, ec protocol.ExecutionContext) protocol.Result {
	start := time.Now()

	text := protocol.String(ec.Input, "text", "")
	if text == "" {
		return protocol.Fail(start, "Text input is required")
	}

	return protocol.Succeed(start, map[string]any{
		"output": map[string]any{
			"text":       text,
			"length":     utf8.RuneCountInString(text),
			"word_count": len(strings.Fields(text)),
		},
	})
}

// OutputComponent passes text through as a final result.
type OutputComponent struct{}

func NewOutputComponent() *OutputComponent {
	return &OutputComponent{}
}

func (c *OutputComponent) ID() string {
	return "text_output"
}

func (c *OutputComponent) Name() string {
	return "Text Output"
}

func (c *OutputComponent) Description() string {
	return "Collects text into the flow's final output"
}

func (c *OutputComponent) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"description": "Text to output"},
		},
	}
}

func (c *OutputComponent) Execute(_ context.Context, ec protocol.ExecutionContext) protocol.Result {
	start := time.Now()

	text := protocol.String(ec.Input, "text", "")

	return protocol.Succeed(start, map[string]any{
		"text":             text,
		"formatted_output": text,
	})
}
