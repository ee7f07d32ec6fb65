package llm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"strings"
	"time"

	"github.com/dukex/flowstudio/pkg/components/text"
	"github.com/dukex/flowstudio/pkg/protocol"
	"github.com/dukex/flowstudio/pkg/template"
	"github.com/gofiber/fiber/v3/client"
)

// PromptVariable maps one field of input_data to a prompt placeholder.
type PromptVariable struct {
	InputField   string `json:"input_field"`
	VariableName string `json:"variable_name"`
	DefaultValue any    `json:"default_value"`
	Transform    string `json:"transform"`
}

// OllamaSettings configures a generate call against an Ollama server.
type OllamaSettings struct {
	Model            string           `json:"model"`
	BaseURL          string           `json:"ollama_base_url"`
	Temperature      *float64         `json:"temperature"`
	NumPredict       *int             `json:"num_predict"`
	TopP             *float64         `json:"top_p"`
	TopK             *int             `json:"top_k"`
	RepeatPenalty    *float64         `json:"repeat_penalty"`
	Stream           bool             `json:"stream"`
	Timeout          *float64         `json:"timeout"`
	VariableMappings []PromptVariable `json:"variable_mappings"`
	ManualVariables  map[string]any   `json:"manual_variables"`
}

var defaultOllamaSettings = OllamaSettings{
	Model:         "llama2",
	BaseURL:       "http://localhost:11434",
	Temperature:   ptr(0.7),
	NumPredict:    ptr(1000),
	TopP:          ptr(0.9),
	TopK:          ptr(40),
	RepeatPenalty: ptr(1.1),
	Timeout:       ptr(120.0),
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

type generateResponse struct {
	Model              string  `json:"model"`
	Response           string  `json:"response"`
	TotalDuration      float64 `json:"total_duration"`
	EvalCount          float64 `json:"eval_count"`
	EvalDuration       float64 `json:"eval_duration"`
	PromptEvalCount    float64 `json:"prompt_eval_count"`
	PromptEvalDuration float64 `json:"prompt_eval_duration"`
}

// OllamaComponent generates text with a local Ollama model.
type OllamaComponent struct {
	client *client.Client
}

func NewOllamaComponent(c *client.Client) *OllamaComponent {
	if c == nil {
		c = client.New()
	}

	return &OllamaComponent{client: c}
}

func (c *OllamaComponent) ID() string {
	return "ollama_llm"
}

func (c *OllamaComponent) Name() string {
	return "Ollama LLM"
}

func (c *OllamaComponent) Description() string {
	return "Generates text with a model served by Ollama"
}

func (c *OllamaComponent) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt":          map[string]any{"type": "string", "description": "Prompt with optional {variable} placeholders"},
			"system_message":  map[string]any{"type": "string"},
			"input_data":      map[string]any{"type": "object"},
			"model":           map[string]any{"type": "string", "default": defaultOllamaSettings.Model},
			"ollama_base_url": map[string]any{"type": "string", "default": defaultOllamaSettings.BaseURL},
			"temperature":     map[string]any{"type": "number"},
			"num_predict":     map[string]any{"type": "integer"},
			"top_p":           map[string]any{"type": "number"},
			"top_k":           map[string]any{"type": "integer"},
			"repeat_penalty":  map[string]any{"type": "number"},
			"timeout":         map[string]any{"type": "number"},
			"variable_mappings": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"input_field":   map[string]any{"type": "string"},
						"variable_name": map[string]any{"type": "string"},
						"default_value": map[string]any{},
						"transform":     map[string]any{"type": "string", "enum": []string{"none", "uppercase", "lowercase", "title_case", "trim"}},
					},
				},
			},
			"manual_variables": map[string]any{"type": "object"},
		},
	}
}

func (c *OllamaComponent) Execute(ctx context.Context, ec protocol.ExecutionContext) protocol.Result {
	start := time.Now()
	logger := ec.LoggerOrDefault()

	settings, err := decodeSettings(ec, defaultOllamaSettings)
	if err != nil {
		return protocol.Fail(start, err.Error())
	}

	variables := PromptVariables(settings, protocol.Map(ec.Input, "input_data"))
	prompt := template.Substitute(protocol.String(ec.Input, "prompt", ""), variables)
	systemMessage := template.Substitute(protocol.String(ec.Input, "system_message", ""), variables)

	if settings.Model == "" {
		return protocol.Fail(start, "Model is required")
	}

	if prompt == "" {
		return protocol.Fail(start, "Prompt is required")
	}

	apiURL := strings.TrimRight(settings.BaseURL, "/") + "/api/generate"

	logger.InfoContext(ctx, "Making Ollama API request", "url", apiURL, "model", settings.Model)

	resp, err := c.client.Post(apiURL, client.Config{
		Ctx:     ctx,
		Timeout: seconds(*settings.Timeout),
		Body: generateRequest{
			Model:  settings.Model,
			Prompt: prompt,
			System: systemMessage,
			Stream: settings.Stream,
			Options: map[string]any{
				"temperature":    *settings.Temperature,
				"num_predict":    *settings.NumPredict,
				"top_p":          *settings.TopP,
				"top_k":          *settings.TopK,
				"repeat_penalty": *settings.RepeatPenalty,
			},
		},
	})
	if err != nil {
		message := fmt.Sprintf("Cannot connect to Ollama server at %s. Please ensure Ollama is running and accessible.", settings.BaseURL)
		if errors.Is(err, client.ErrTimeoutOrCancel) {
			message = fmt.Sprintf("Ollama API request timed out. The model '%s' might be loading or the server is overloaded.", settings.Model)
		}

		logger.ErrorContext(ctx, message, "error", err)

		return protocol.Fail(start, message)
	}
	defer resp.Close()

	if resp.StatusCode() != 200 {
		message := ollamaError(resp.StatusCode(), resp.String(), settings)
		logger.ErrorContext(ctx, "Ollama API error", "status", resp.StatusCode(), "error", message)

		return protocol.Fail(start, message)
	}

	var generated generateResponse
	if err := resp.JSON(&generated); err != nil {
		return protocol.Fail(start, fmt.Sprintf("Invalid JSON response from Ollama API: %v", err))
	}

	modelUsed := generated.Model
	if modelUsed == "" {
		modelUsed = settings.Model
	}

	tokensPerSecond := 0.0
	averageTokenTime := 0.0

	if generated.EvalDuration > 0 {
		tokensPerSecond = math.Round(generated.EvalCount*1e9/generated.EvalDuration*100) / 100
	}

	if generated.EvalCount > 0 {
		averageTokenTime = generated.EvalDuration / 1e9 / generated.EvalCount
	}

	elapsed := protocol.Elapsed(start)

	performance := map[string]any{
		"execution_time_ms":  elapsed,
		"tokens_generated":   generated.EvalCount,
		"tokens_per_second":  tokensPerSecond,
		"average_token_time": averageTokenTime,
		"prompt_tokens":      generated.PromptEvalCount,
		"total_duration_ns":  generated.TotalDuration,
		"generation_stats": map[string]any{
			"total_duration":       generated.TotalDuration,
			"eval_count":           generated.EvalCount,
			"eval_duration":        generated.EvalDuration,
			"prompt_eval_count":    generated.PromptEvalCount,
			"prompt_eval_duration": generated.PromptEvalDuration,
		},
		"server_info": map[string]any{
			"ollama_url":     settings.BaseURL,
			"model":          modelUsed,
			"variables_used": len(variables),
		},
	}

	logger.InfoContext(ctx, "Ollama generation completed", "tokens", generated.EvalCount, "elapsed_ms", elapsed)

	result := protocol.Succeed(start, map[string]any{
		"output": map[string]any{
			"response":          generated.Response,
			"model_used":        modelUsed,
			"total_duration":    generated.TotalDuration,
			"eval_count":        generated.EvalCount,
			"eval_duration":     generated.EvalDuration,
			"performance_stats": performance,
		},
	})
	result.CostEstimate = map[string]any{
		"execution_time_seconds": float64(elapsed) / 1000,
		"tokens_generated":       generated.EvalCount,
		"tokens_per_second":      tokensPerSecond,
		"model_used":             modelUsed,
		"cost_usd":               0.0,
		"cost_type":              "local_compute",
	}

	return result
}

// PromptVariables merges manual variables with values mapped out of input_data.
// Mapped values win over manual ones.
func PromptVariables(settings OllamaSettings, inputData map[string]any) map[string]any {
	variables := make(map[string]any, len(settings.ManualVariables)+len(settings.VariableMappings))
	maps.Copy(variables, settings.ManualVariables)

	for _, mapping := range settings.VariableMappings {
		if mapping.InputField == "" || mapping.VariableName == "" {
			continue
		}

		value, ok := inputData[mapping.InputField]
		if !ok {
			value = mapping.DefaultValue
			if value == nil {
				value = ""
			}
		}

		switch mapping.Transform {
		case "uppercase", "lowercase", "title_case", "trim":
			value = text.Apply(protocol.Stringify(value), mapping.Transform)
		}

		variables[mapping.VariableName] = value
	}

	return variables
}

func ollamaError(status int, body string, settings OllamaSettings) string {
	switch status {
	case 404:
		if strings.Contains(strings.ToLower(body), "model") {
			return fmt.Sprintf("Model '%s' not found on Ollama server. Please ensure the model is installed.", settings.Model)
		}

		return fmt.Sprintf("Ollama server not found at %s. Please check the server URL and ensure Ollama is running.", settings.BaseURL)
	case 500:
		return "Ollama server error. This might be due to insufficient memory or the model not being properly loaded."
	default:
		return fmt.Sprintf("Ollama API error: %d - %s", status, body)
	}
}
