package registry

import (
	"github.com/dukex/flowstudio/pkg/components/conditional"
	"github.com/dukex/flowstudio/pkg/components/file"
	"github.com/dukex/flowstudio/pkg/components/httprequest"
	"github.com/dukex/flowstudio/pkg/components/llm"
	"github.com/dukex/flowstudio/pkg/components/text"
	"github.com/dukex/flowstudio/pkg/components/transform"
	"github.com/gofiber/fiber/v3/client"
)

// Dependencies are the shared collaborators of the built-in components.
type Dependencies struct {
	Files      *file.Store
	HTTPClient *client.Client
}

// RegisterDefaultComponents registers every built-in component type.
// File components are only registered when a file store is configured.
func (r *Registry) RegisterDefaultComponents(deps Dependencies) {
	r.Register(text.NewInputComponent())
	r.Register(text.NewOutputComponent())
	r.Register(text.NewProcessorComponent())
	r.Register(text.NewPromptTemplateComponent())

	r.Register(conditional.NewComponent())

	r.Register(transform.NewComponent())
	r.Register(transform.NewOutputComponent())

	r.Register(httprequest.NewComponent(deps.HTTPClient))

	r.Register(llm.NewOpenAIComponent(deps.HTTPClient))
	r.Register(llm.NewOllamaComponent(deps.HTTPClient))

	if deps.Files != nil {
		r.Register(file.NewInputComponent(deps.Files))
		r.Register(file.NewOutputComponent(deps.Files))
	} else {
		r.logger.Warn("No file store configured, file components are disabled")
	}
}
