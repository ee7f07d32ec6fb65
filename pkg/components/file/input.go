package file

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dukex/flowstudio/pkg/protocol"
)

const (
	TypeText = "text"
	TypeJSON = "json"
	TypeCSV  = "csv"
)

// InputComponent reads a text, JSON or CSV file.
type InputComponent struct {
	store *Store
}

func NewInputComponent(store *Store) *InputComponent {
	return &InputComponent{store: store}
}

func (c *InputComponent) ID() string {
	return "file_input"
}

func (c *InputComponent) Name() string {
	return "File Input"
}

func (c *InputComponent) Description() string {
	return "Reads a text, JSON or CSV file from the configured storage bucket"
}

func (c *InputComponent) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{"type": "string"},
			"file_type": map[string]any{"type": "string", "enum": []string{TypeText, TypeJSON, TypeCSV}, "default": TypeText},
		},
	}
}

func (c *InputComponent) Execute(ctx context.Context, ec protocol.ExecutionContext) protocol.Result {
	start := time.Now()

	path := protocol.String(ec.Input, "file_path", "")
	fileType := protocol.String(ec.Input, "file_type", TypeText)

	if path == "" {
		return protocol.Fail(start, "File path is required")
	}

	if fileType != TypeText && fileType != TypeJSON && fileType != TypeCSV {
		return protocol.Fail(start, "Unsupported file type: "+fileType)
	}

	content, err := c.store.Read(ctx, path)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return protocol.Fail(start, "File not found: "+path)
		}

		return protocol.Fail(start, err.Error())
	}

	output := map[string]any{
		"content":   string(content),
		"file_path": path,
		"file_size": len(content),
		"file_type": fileType,
	}

	switch fileType {
	case TypeJSON:
		var data any
		if err := json.Unmarshal(content, &data); err != nil {
			return protocol.Fail(start, fmt.Sprintf("invalid JSON in %s: %v", path, err))
		}

		output["data"] = data
	case TypeCSV:
		rows, err := ReadCSV(content)
		if err != nil {
			return protocol.Fail(start, fmt.Sprintf("invalid CSV in %s: %v", path, err))
		}

		output["data"] = rows
		output["row_count"] = len(rows)
	}

	return protocol.Succeed(start, output)
}

// ReadCSV parses a CSV document whose first row is the header into one record per row.
func ReadCSV(content []byte) ([]any, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []any{}, nil
	}

	if err != nil {
		return nil, err
	}

	rows := make([]any, 0)

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, err
		}

		row := make(map[string]any, len(header))
		for i, column := range header {
			if i < len(record) {
				row[column] = record[i]
			} else {
				row[column] = nil
			}
		}

		rows = append(rows, row)
	}

	return rows, nil
}
