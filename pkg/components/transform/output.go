package transform

import (
	"context"
	"time"

	"github.com/dukex/flowstudio/pkg/protocol"
)

// OutputComponent collects structured data into the flow's final output.
type OutputComponent struct{}

func NewOutputComponent() *OutputComponent {
	return &OutputComponent{}
}

func (c *OutputComponent) ID() string {
	return "data_output"
}

func (c *OutputComponent) Name() string {
	return "Data Output"
}

func (c *OutputComponent) Description() string {
	return "Collects structured data into the flow's final output"
}

func (c *OutputComponent) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"data": map[string]any{"description": "Any JSON value"},
		},
	}
}

func (c *OutputComponent) Execute(_ context.Context, ec protocol.ExecutionContext) protocol.Result {
	return protocol.Succeed(time.Now(), map[string]any{"data": ec.Input["data"]})
}
