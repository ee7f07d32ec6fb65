package text

import (
	"context"
	"maps"
	"time"

	"github.com/dukex/flowstudio/pkg/protocol"
	"github.com/dukex/flowstudio/pkg/template"
)

// PromptTemplateComponent renders {name} placeholders with the given variables.
// With engine "go" the template is a Go text/template over the same variables.
type PromptTemplateComponent struct{}

func NewPromptTemplateComponent() *PromptTemplateComponent {
	return &PromptTemplateComponent{}
}

func (c *PromptTemplateComponent) ID() string {
	return "prompt_template"
}

func (c *PromptTemplateComponent) Name() string {
	return "Prompt Template"
}

func (c *PromptTemplateComponent) Description() string {
	return "Builds a prompt by substituting variables into a template"
}

func (c *PromptTemplateComponent) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"template":  map[string]any{"type": "string", "description": "Template with {variable} placeholders"},
			"variables": map[string]any{"type": "object"},
			"engine":    map[string]any{"type": "string", "enum": []string{"placeholder", "go"}},
		},
	}
}

func (c *PromptTemplateComponent) Execute(_ context.Context, ec protocol.ExecutionContext) protocol.Result {
	start := time.Now()

	tmpl := protocol.String(ec.Input, "template", "")
	if tmpl == "" {
		return protocol.Fail(start, "Template is required")
	}

	variables := make(map[string]any)

	// Plain top-level inputs, usually wired from upstream nodes.
	for key, value := range ec.Input {
		switch key {
		case "template", "variables", "engine":
			continue
		}

		switch value.(type) {
		case map[string]any, []any:
			continue
		}

		variables[key] = value
	}

	maps.Copy(variables, protocol.Map(ec.Input, "variables"))

	var prompt string

	if protocol.String(ec.Input, "engine", "placeholder") == "go" {
		rendered, err := template.RenderString(tmpl, variables)
		if err != nil {
			return protocol.Fail(start, err.Error())
		}

		prompt = rendered
	} else {
		prompt = template.Substitute(tmpl, variables)
	}

	return protocol.Succeed(start, map[string]any{
		"prompt":            prompt,
		"template_used":     tmpl,
		"variables_applied": variables,
	})
}
