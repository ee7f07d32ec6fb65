package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/flowstudio/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIComponent_Execute(t *testing.T) {
	t.Parallel()

	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		_ = json.NewDecoder(r.Body).Decode(&received)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "Bonjour"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1000, "completion_tokens": 2000, "total_tokens": 3000}
		}`))
	}))
	t.Cleanup(server.Close)

	result := NewOpenAIComponent(nil).Execute(t.Context(), protocol.ExecutionContext{
		Config: map[string]any{"api_key": "sk-test", "base_url": server.URL + "/v1/", "temperature": 0.0},
		Input:  map[string]any{"prompt": "Say hello in French", "system_message": "Be brief"},
	})
	require.True(t, result.Success, result.Error)

	assert.Equal(t, "Bonjour", result.Output["response"])
	assert.Equal(t, "gpt-3.5-turbo", result.Output["model_used"])
	assert.Equal(t, "stop", result.Output["finish_reason"])

	assert.Equal(t, "gpt-3.5-turbo", received["model"])
	assert.InDelta(t, 0.0, received["temperature"], 0.0001)
	assert.InDelta(t, 1000.0, received["max_tokens"], 0.0001)
	require.Len(t, received["messages"], 2)

	assert.InDelta(t, 0.0035, result.CostEstimate["total_cost_usd"], 1e-9)
	assert.InDelta(t, 0.0005, result.CostEstimate["input_cost_usd"], 1e-9)
}

func TestOpenAIComponent_Failures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad key"))
	}))
	t.Cleanup(server.Close)

	testCases := []struct {
		name   string
		config map[string]any
		input  map[string]any
		want   string
	}{
		{name: "no api key", input: map[string]any{"prompt": "hi"}, want: "OpenAI API key is required"},
		{name: "no prompt", config: map[string]any{"api_key": "k"}, want: "Prompt is required"},
		{
			name:   "api error",
			config: map[string]any{"api_key": "k", "base_url": server.URL},
			input:  map[string]any{"prompt": "hi"},
			want:   "OpenAI API error: 401 - bad key",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			result := NewOpenAIComponent(nil).Execute(t.Context(), protocol.ExecutionContext{Config: tc.config, Input: tc.input})
			assert.False(t, result.Success)
			assert.Equal(t, tc.want, result.Error)
		})
	}
}

func TestOpenAICost_UnknownModel(t *testing.T) {
	t.Parallel()

	cost := OpenAICost("mystery", map[string]any{"prompt_tokens": 2000.0})
	assert.InDelta(t, 0.001, cost["total_cost_usd"], 1e-9)
	assert.Equal(t, "mystery", cost["model"])
}

func TestOllamaComponent_Execute(t *testing.T) {
	t.Parallel()

	var received generateRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&received)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "llama3", "response": "A haiku", "total_duration": 3000000000,
			"eval_count": 20, "eval_duration": 2000000000, "prompt_eval_count": 5
		}`))
	}))
	t.Cleanup(server.Close)

	result := NewOllamaComponent(nil).Execute(t.Context(), protocol.ExecutionContext{
		Config: map[string]any{
			"model":           "llama3",
			"ollama_base_url": server.URL,
			"top_k":           10.0,
			"manual_variables": map[string]any{
				"style": "haiku",
			},
			"variable_mappings": []any{
				map[string]any{"input_field": "topic", "variable_name": "subject", "transform": "uppercase"},
				map[string]any{"input_field": "mood", "variable_name": "tone", "default_value": "calm"},
			},
		},
		Input: map[string]any{
			"prompt":         "Write a {style} about {subject} in a {tone} tone",
			"system_message": "You write {style}s",
			"input_data":     map[string]any{"topic": "rain"},
		},
	})
	require.True(t, result.Success, result.Error)

	assert.Equal(t, "Write a haiku about RAIN in a calm tone", received.Prompt)
	assert.Equal(t, "You write haikus", received.System)
	assert.Equal(t, "llama3", received.Model)
	assert.InDelta(t, 10.0, received.Options["top_k"], 0.0001)
	assert.InDelta(t, 0.9, received.Options["top_p"], 0.0001)

	output := result.Output["output"].(map[string]any)
	assert.Equal(t, "A haiku", output["response"])
	assert.Equal(t, "llama3", output["model_used"])

	stats := output["performance_stats"].(map[string]any)
	assert.InDelta(t, 10.0, stats["tokens_per_second"], 0.0001)
	assert.InDelta(t, 0.1, stats["average_token_time"], 0.0001)

	assert.Equal(t, 0.0, result.CostEstimate["cost_usd"])
	assert.Equal(t, "local_compute", result.CostEstimate["cost_type"])
}

func TestOllamaComponent_Errors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("case") {
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model 'ghost' not found"}`))
		}
	}))
	t.Cleanup(server.Close)

	result := NewOllamaComponent(nil).Execute(t.Context(), protocol.ExecutionContext{
		Config: map[string]any{"model": "ghost", "ollama_base_url": server.URL},
		Input:  map[string]any{"prompt": "hi"},
	})
	assert.False(t, result.Success)
	assert.Equal(t, "Model 'ghost' not found on Ollama server. Please ensure the model is installed.", result.Error)

	result = NewOllamaComponent(nil).Execute(t.Context(), protocol.ExecutionContext{
		Input: map[string]any{"prompt": ""},
	})
	assert.False(t, result.Success)
	assert.Equal(t, "Prompt is required", result.Error)
}

func TestPromptVariables(t *testing.T) {
	t.Parallel()

	settings := OllamaSettings{
		ManualVariables: map[string]any{"a": "manual", "b": "kept"},
		VariableMappings: []PromptVariable{
			{InputField: "x", VariableName: "a", Transform: "trim"},
			{InputField: "", VariableName: "ignored"},
			{InputField: "missing", VariableName: "c"},
		},
	}

	variables := PromptVariables(settings, map[string]any{"x": "  mapped  "})
	assert.Equal(t, map[string]any{"a": "mapped", "b": "kept", "c": ""}, variables)
}
