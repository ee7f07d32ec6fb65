// Package httprequest provides the component that calls an HTTP API.
package httprequest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/flowstudio/pkg/protocol"
	"github.com/gofiber/fiber/v3/client"
)

const defaultTimeout = 30 * time.Second

// Component performs one HTTP request per invocation. Non-2xx responses are
// reported through the success output field, not as a component failure.
type Component struct {
	client *client.Client
}

// NewComponent returns a component using the given fiber client, or a new one when nil.
func NewComponent(c *client.Client) *Component {
	if c == nil {
		c = client.New()
	}

	return &Component{client: c}
}

func (c *Component) ID() string {
	return "http_request"
}

func (c *Component) Name() string {
	return "HTTP Request"
}

func (c *Component) Description() string {
	return "Sends an HTTP request and returns the response status, headers and body"
}

func (c *Component) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Target URL",
				"format":      "uri",
			},
			"method": map[string]any{
				"type":    "string",
				"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
				"default": "GET",
			},
			"headers": map[string]any{"type": "object"},
			"params":  map[string]any{"type": "object"},
			"data":    map[string]any{"description": "Body for POST, PUT and PATCH; objects are sent as JSON"},
			"timeout": map[string]any{"type": "number", "description": "Timeout in seconds", "default": 30},
		},
	}
}

func (c *Component) Execute(ctx context.Context, ec protocol.ExecutionContext) protocol.Result {
	start := time.Now()

	url := protocol.String(ec.Input, "url", "")
	method := strings.ToUpper(protocol.String(ec.Input, "method", "GET"))
	timeout := time.Duration(protocol.FloatOr(ec.Input, "timeout", defaultTimeout.Seconds()) * float64(time.Second))

	if url == "" {
		return protocol.Fail(start, "URL is required")
	}

	req := c.client.R().
		SetContext(ctx).
		SetMethod(method).
		SetURL(url).
		SetTimeout(timeout)

	if headers := stringMap(protocol.Map(ec.Input, "headers")); len(headers) > 0 {
		req.SetHeaders(headers)
	}

	if params := stringMap(protocol.Map(ec.Input, "params")); len(params) > 0 {
		req.SetParams(params)
	}

	if data, ok := ec.Input["data"]; ok && !protocol.IsEmpty(data) && hasBody(method) {
		switch body := data.(type) {
		case map[string]any:
			req.SetJSON(body)
		default:
			req.SetRawBody([]byte(protocol.Stringify(body)))
		}
	}

	resp, err := req.Send()
	if err != nil {
		client.ReleaseRequest(req)
		ec.LoggerOrDefault().ErrorContext(ctx, "HTTP request failed", "url", url, "error", err)

		return protocol.Fail(start, fmt.Sprintf("HTTP request failed: %v", err))
	}
	defer resp.Close()

	headers := make(map[string]any)
	for key, values := range resp.Headers() {
		headers[strings.Clone(key)] = strings.Clone(strings.Join(values, ", "))
	}

	text := string(resp.Body())

	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		data = text
	}

	status := resp.StatusCode()

	return protocol.Succeed(start, map[string]any{
		"status_code": status,
		"headers":     headers,
		"data":        data,
		"text":        text,
		"url":         url,
		"success":     status >= 200 && status < 300,
	})
}

func hasBody(method string) bool {
	return method == "POST" || method == "PUT" || method == "PATCH"
}

func stringMap(values map[string]any) map[string]string {
	result := make(map[string]string, len(values))
	for key, value := range values {
		result[key] = protocol.Stringify(value)
	}

	return result
}
