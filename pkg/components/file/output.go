package file

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dukex/flowstudio/pkg/protocol"
)

// OutputComponent writes text or JSON content to a file.
type OutputComponent struct {
	store *Store
}

func NewOutputComponent(store *Store) *OutputComponent {
	return &OutputComponent{store: store}
}

func (c *OutputComponent) ID() string {
	return "file_output"
}

func (c *OutputComponent) Name() string {
	return "File Output"
}

func (c *OutputComponent) Description() string {
	return "Writes text or JSON content to the configured storage bucket"
}

func (c *OutputComponent) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{"type": "string"},
			"content":   map[string]any{"description": "Text, or any JSON value when file_type is json"},
			"file_type": map[string]any{"type": "string", "enum": []string{TypeText, TypeJSON}, "default": TypeText},
		},
	}
}

func (c *OutputComponent) Execute(ctx context.Context, ec protocol.ExecutionContext) protocol.Result {
	start := time.Now()

	path := protocol.String(ec.Input, "file_path", "")
	content := ec.Input["content"]
	fileType := protocol.String(ec.Input, "file_type", TypeText)

	if path == "" {
		return protocol.Fail(start, "File path is required")
	}

	if protocol.IsEmpty(content) {
		return protocol.Fail(start, "Content is required")
	}

	var (
		payload     []byte
		contentType string
	)

	switch fileType {
	case TypeText:
		payload = []byte(protocol.Stringify(content))
		contentType = "text/plain; charset=utf-8"
	case TypeJSON:
		if text, ok := content.(string); ok {
			payload = []byte(text)
		} else {
			encoded, err := json.MarshalIndent(content, "", "  ")
			if err != nil {
				return protocol.Fail(start, err.Error())
			}

			payload = encoded
		}

		contentType = "application/json"
	default:
		return protocol.Fail(start, "Unsupported file type: "+fileType)
	}

	if err := c.store.Write(ctx, path, payload, contentType); err != nil {
		ec.LoggerOrDefault().ErrorContext(ctx, "Failed to write file", "file_path", path, "error", err)

		return protocol.Fail(start, err.Error())
	}

	return protocol.Succeed(start, map[string]any{
		"file_path": path,
		"file_size": len(payload),
		"file_type": fileType,
		"success":   true,
	})
}
