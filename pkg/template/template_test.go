package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstitute(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		text      string
		variables map[string]any
		want      string
	}{
		{
			name:      "single placeholder",
			text:      "Hello {name}!",
			variables: map[string]any{"name": "Ada"},
			want:      "Hello Ada!",
		},
		{
			name:      "repeated and numeric",
			text:      "{count} items, yes {count}",
			variables: map[string]any{"count": 3.0},
			want:      "3 items, yes 3",
		},
		{
			name:      "unknown placeholder kept",
			text:      "Hi {name}, {missing}",
			variables: map[string]any{"name": "Bo"},
			want:      "Hi Bo, {missing}",
		},
		{
			name: "no variables",
			text: "static {text}",
			want: "static {text}",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, Substitute(tc.text, tc.variables))
		})
	}
}

func TestRender_Coercion(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"name":  "John",
		"age":   30,
		"isNew": true,
		"items": []any{1, 2, 3},
	}

	result, err := Render("{{ .name }}", data)
	require.NoError(t, err)
	assert.Equal(t, "John", result)

	result, err = Render("{{ .isNew }}", data)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	result, err = Render("{{ .age }}", data)
	require.NoError(t, err)
	assert.Equal(t, 30.0, result)

	result, err = Render(`{"user": "{{ .name }}", "count": {{ len .items }}}`, data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user": "John", "count": 3.0}, result)
}

func TestRenderString(t *testing.T) {
	t.Parallel()

	result, err := RenderString("Summarize: {{ upper .topic }}", map[string]any{"topic": "go"})
	require.NoError(t, err)
	assert.Equal(t, "Summarize: GO", result)

	_, err = RenderString("{{ .broken", nil)
	require.Error(t, err)
}
