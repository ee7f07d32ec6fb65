package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/flowstudio/pkg/protocol"
	"github.com/gofiber/fiber/v3/client"
)

// OpenAISettings configures the chat completion call.
type OpenAISettings struct {
	APIKey      string   `json:"api_key"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	BaseURL     string   `json:"base_url"`
	Timeout     *float64 `json:"timeout"`
}

var defaultOpenAISettings = OpenAISettings{
	Model:       "gpt-3.5-turbo",
	Temperature: ptr(0.7),
	MaxTokens:   ptr(1000),
	BaseURL:     "https://api.openai.com/v1",
	Timeout:     ptr(60.0),
}

// Price per 1K tokens.
type tokenPrice struct {
	input, output float64
}

var openAIPricing = map[string]tokenPrice{
	"gpt-3.5-turbo": {input: 0.0005, output: 0.0015},
	"gpt-4":         {input: 0.03, output: 0.06},
	"gpt-4-turbo":   {input: 0.01, output: 0.03},
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason *string     `json:"finish_reason"`
	} `json:"choices"`
	Usage map[string]any `json:"usage"`
}

// OpenAIComponent calls an OpenAI compatible chat completions endpoint.
type OpenAIComponent struct {
	client *client.Client
}

func NewOpenAIComponent(c *client.Client) *OpenAIComponent {
	if c == nil {
		c = client.New()
	}

	return &OpenAIComponent{client: c}
}

func (c *OpenAIComponent) ID() string {
	return "openai_llm"
}

func (c *OpenAIComponent) Name() string {
	return "OpenAI LLM"
}

func (c *OpenAIComponent) Description() string {
	return "Generates a chat completion with an OpenAI model"
}

func (c *OpenAIComponent) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt":         map[string]any{"type": "string"},
			"system_message": map[string]any{"type": "string"},
			"api_key":        map[string]any{"type": "string"},
			"model":          map[string]any{"type": "string", "default": defaultOpenAISettings.Model},
			"temperature":    map[string]any{"type": "number", "minimum": 0, "maximum": 2},
			"max_tokens":     map[string]any{"type": "integer", "minimum": 1},
			"base_url":       map[string]any{"type": "string"},
		},
	}
}

func (c *OpenAIComponent) Execute(ctx context.Context, ec protocol.ExecutionContext) protocol.Result {
	start := time.Now()

	settings, err := decodeSettings(ec, defaultOpenAISettings)
	if err != nil {
		return protocol.Fail(start, err.Error())
	}

	prompt := protocol.String(ec.Input, "prompt", "")
	systemMessage := protocol.String(ec.Input, "system_message", "")

	if settings.APIKey == "" {
		return protocol.Fail(start, "OpenAI API key is required")
	}

	if prompt == "" {
		return protocol.Fail(start, "Prompt is required")
	}

	messages := make([]chatMessage, 0, 2)
	if systemMessage != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemMessage})
	}

	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	resp, err := c.client.Post(strings.TrimRight(settings.BaseURL, "/")+"/chat/completions", client.Config{
		Ctx:     ctx,
		Timeout: seconds(*settings.Timeout),
		Header: map[string]string{
			"Authorization": "Bearer " + settings.APIKey,
		},
		Body: chatRequest{
			Model:       settings.Model,
			Messages:    messages,
			Temperature: *settings.Temperature,
			MaxTokens:   *settings.MaxTokens,
		},
	})
	if err != nil {
		return protocol.Fail(start, fmt.Sprintf("OpenAI request failed: %v", err))
	}
	defer resp.Close()

	if resp.StatusCode() != 200 {
		return protocol.Fail(start, fmt.Sprintf("OpenAI API error: %d - %s", resp.StatusCode(), resp.String()))
	}

	var completion chatResponse
	if err := resp.JSON(&completion); err != nil {
		return protocol.Fail(start, fmt.Sprintf("invalid OpenAI response: %v", err))
	}

	if len(completion.Choices) == 0 {
		return protocol.Fail(start, "OpenAI response has no choices")
	}

	usage := completion.Usage
	if usage == nil {
		usage = map[string]any{}
	}

	var finishReason any
	if completion.Choices[0].FinishReason != nil {
		finishReason = *completion.Choices[0].FinishReason
	}

	result := protocol.Succeed(start, map[string]any{
		"response":      completion.Choices[0].Message.Content,
		"model_used":    settings.Model,
		"token_usage":   usage,
		"finish_reason": finishReason,
	})
	result.CostEstimate = OpenAICost(settings.Model, usage)

	return result
}

// OpenAICost estimates the price of a call. Unknown models are priced as gpt-3.5-turbo.
func OpenAICost(model string, usage map[string]any) map[string]any {
	price, ok := openAIPricing[model]
	if !ok {
		price = openAIPricing["gpt-3.5-turbo"]
	}

	promptTokens := protocol.FloatOr(usage, "prompt_tokens", 0)
	completionTokens := protocol.FloatOr(usage, "completion_tokens", 0)

	inputCost := promptTokens / 1000 * price.input
	outputCost := completionTokens / 1000 * price.output

	return map[string]any{
		"total_cost_usd":  round6(inputCost + outputCost),
		"input_cost_usd":  round6(inputCost),
		"output_cost_usd": round6(outputCost),
		"model":           model,
		"tokens":          usage,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
