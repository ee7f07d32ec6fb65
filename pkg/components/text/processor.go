package text

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dukex/flowstudio/pkg/protocol"
)

const (
	OperationUppercase    = "uppercase"
	OperationLowercase    = "lowercase"
	OperationTitleCase    = "title_case"
	OperationTrim         = "trim"
	OperationRemoveSpaces = "remove_spaces"
	OperationReverse      = "reverse"
	OperationWordCount    = "word_count"
	OperationCharCount    = "char_count"
)

// ProcessorComponent applies a single text operation.
type ProcessorComponent struct{}

func NewProcessorComponent() *ProcessorComponent {
	return &ProcessorComponent{}
}

func (c *ProcessorComponent) ID() string {
	return "text_processor"
}

func (c *ProcessorComponent) Name() string {
	return "Text Processor"
}

func (c *ProcessorComponent) Description() string {
	return "Transforms text with case, trimming, reversal and counting operations"
}

func (c *ProcessorComponent) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
			"operation": map[string]any{
				"type": "string",
				"enum": []string{
					OperationUppercase, OperationLowercase, OperationTitleCase, OperationTrim,
					OperationRemoveSpaces, OperationReverse, OperationWordCount, OperationCharCount,
				},
				"default": OperationUppercase,
			},
		},
	}
}

func (c *ProcessorComponent) Execute(_ context.Context, ec protocol.ExecutionContext) protocol.Result {
	start := time.Now()

	text := protocol.String(ec.Input, "text", "")
	operation := protocol.String(ec.Input, "operation", OperationUppercase)

	if text == "" {
		return protocol.Fail(start, "Text input is required")
	}

	processed := Apply(text, operation)

	return protocol.Succeed(start, map[string]any{
		"processed_text": processed,
		"original_text":  text,
		"operation":      operation,
		"length_change":  utf8.RuneCountInString(processed) - utf8.RuneCountInString(text),
	})
}

// Apply runs one operation. Unknown operations return the text unchanged.
func Apply(text, operation string) string {
	switch operation {
	case OperationUppercase:
		return strings.ToUpper(text)
	case OperationLowercase:
		return strings.ToLower(text)
	case OperationTitleCase:
		return TitleCase(text)
	case OperationTrim:
		return strings.TrimSpace(text)
	case OperationRemoveSpaces:
		return strings.ReplaceAll(text, " ", "")
	case OperationReverse:
		runes := []rune(text)
		slices.Reverse(runes)

		return string(runes)
	case OperationWordCount:
		return strconv.Itoa(len(strings.Fields(text)))
	case OperationCharCount:
		return strconv.Itoa(utf8.RuneCountInString(text))
	default:
		return text
	}
}

// TitleCase upper-cases the first letter of every run of letters and lower-cases the rest.
func TitleCase(text string) string {
	var b strings.Builder

	b.Grow(len(text))

	previousLetter := false

	for _, r := range text {
		if unicode.IsLetter(r) {
			if previousLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}

			previousLetter = true

			continue
		}

		b.WriteRune(r)

		previousLetter = false
	}

	return b.String()
}
