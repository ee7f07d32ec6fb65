package text

import (
	"testing"

	"github.com/dukex/flowstudio/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execContext(input map[string]any) protocol.ExecutionContext {
	return protocol.ExecutionContext{
		ExecutionID: "exec-1",
		ComponentID: "node-1",
		Input:       input,
	}
}

func TestInputComponent_Execute(t *testing.T) {
	t.Parallel()

	component := NewInputComponent()

	result := component.Execute(t.Context(), execContext(map[string]any{"text": "hello brave world"}))
	require.True(t, result.Success)
	assert.Equal(t, map[string]any{
		"output": map[string]any{"text": "hello brave world", "length": 17, "word_count": 3},
	}, result.Output)

	result = component.Execute(t.Context(), execContext(map[string]any{"text": ""}))
	assert.False(t, result.Success)
	assert.Equal(t, "Text input is required", result.Error)
	assert.Empty(t, result.Output)
}

func TestOutputComponent_Execute(t *testing.T) {
	t.Parallel()

	result := NewOutputComponent().Execute(t.Context(), execContext(map[string]any{"text": "done"}))
	require.True(t, result.Success)
	assert.Equal(t, map[string]any{"text": "done", "formatted_output": "done"}, result.Output)

	result = NewOutputComponent().Execute(t.Context(), execContext(map[string]any{}))
	require.True(t, result.Success)
	assert.Equal(t, "", result.Output["text"])
}

func TestApply(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		operation string
		text      string
		want      string
	}{
		{OperationUppercase, "Hello", "HELLO"},
		{OperationLowercase, "Hello", "hello"},
		{OperationTitleCase, "hello wORLD, it's go", "Hello World, It'S Go"},
		{OperationTrim, "  padded  ", "padded"},
		{OperationRemoveSpaces, "a b  c", "abc"},
		{OperationReverse, "héllo", "olléh"},
		{OperationWordCount, " one two\tthree ", "3"},
		{OperationCharCount, "héllo", "5"},
		{"unknown", "same", "same"},
	}

	for _, tc := range testCases {
		t.Run(tc.operation, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, Apply(tc.text, tc.operation))
		})
	}
}

func TestProcessorComponent_Execute(t *testing.T) {
	t.Parallel()

	component := NewProcessorComponent()

	result := component.Execute(t.Context(), execContext(map[string]any{"text": "  hi  ", "operation": "trim"}))
	require.True(t, result.Success)
	assert.Equal(t, "hi", result.Output["processed_text"])
	assert.Equal(t, "  hi  ", result.Output["original_text"])
	assert.Equal(t, -4, result.Output["length_change"])

	result = component.Execute(t.Context(), execContext(map[string]any{"text": "abc"}))
	require.True(t, result.Success)
	assert.Equal(t, "ABC", result.Output["processed_text"])
	assert.Equal(t, OperationUppercase, result.Output["operation"])

	result = component.Execute(t.Context(), execContext(map[string]any{"operation": "trim"}))
	assert.False(t, result.Success)
	assert.Equal(t, "Text input is required", result.Error)
}

func TestPromptTemplateComponent_Execute(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		input   map[string]any
		want    string
		wantErr string
	}{
		{
			name: "variables map",
			input: map[string]any{
				"template":  "Translate {text} to {language}",
				"variables": map[string]any{"language": "French"},
				"text":      "cheese",
			},
			want: "Translate cheese to French",
		},
		{
			name: "variables map wins over top-level values",
			input: map[string]any{
				"template":  "Hi {name}",
				"name":      "wired",
				"variables": map[string]any{"name": "explicit"},
			},
			want: "Hi explicit",
		},
		{
			name: "go engine",
			input: map[string]any{
				"template": "Hi {{ .name }}",
				"engine":   "go",
				"name":     "Ada",
			},
			want: "Hi Ada",
		},
		{
			name:    "missing template",
			input:   map[string]any{"variables": map[string]any{"a": 1}},
			wantErr: "Template is required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			result := NewPromptTemplateComponent().Execute(t.Context(), execContext(tc.input))
			if tc.wantErr != "" {
				assert.False(t, result.Success)
				assert.Equal(t, tc.wantErr, result.Error)

				return
			}

			require.True(t, result.Success, result.Error)
			assert.Equal(t, tc.want, result.Output["prompt"])
			assert.Equal(t, tc.input["template"], result.Output["template_used"])
		})
	}
}
