// Package web provides HTTP request and response types for the flow API.
package web

import (
	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/protocol"
)

// CreateFlowRequest represents the request body for creating a new flow.
type CreateFlowRequest struct {
	Name        string         `json:"name"                  validate:"required,min=1"`
	Description string         `json:"description,omitempty"`
	Version     string         `json:"version,omitempty"     validate:"omitempty,excludesall=/: "`
	OwnerID     string         `json:"owner_id,omitempty"`
	Nodes       []*models.Node `json:"nodes"                 validate:"dive"`
	Edges       []*models.Edge `json:"edges"                 validate:"dive"`
}

// UpdateFlowRequest replaces the definition of an existing flow.
type UpdateFlowRequest = CreateFlowRequest

func (r CreateFlowRequest) Flow() *models.Flow {
	nodes := r.Nodes
	if nodes == nil {
		nodes = []*models.Node{}
	}

	edges := r.Edges
	if edges == nil {
		edges = []*models.Edge{}
	}

	return &models.Flow{
		Name:        r.Name,
		Description: r.Description,
		Version:     r.Version,
		OwnerID:     r.OwnerID,
		Nodes:       nodes,
		Edges:       edges,
	}
}

// StartExecutionRequest represents the request body for running a flow.
type StartExecutionRequest struct {
	UserID string         `json:"user_id,omitempty"`
	Input  map[string]any `json:"input,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// PublishRequest represents the request body for publishing a flow version.
type PublishRequest struct {
	Version      string `json:"version"                validate:"required"`
	IsPublic     bool   `json:"is_public"`
	RateLimit    *int   `json:"rate_limit,omitempty"    validate:"omitempty,min=1"`
	MaxInstances int    `json:"max_instances,omitempty" validate:"min=0"`
}

// ComponentResponse describes one registered component type.
type ComponentResponse struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

func TransformComponentResponse(component protocol.Component) ComponentResponse {
	return ComponentResponse{
		Type:        component.ID(),
		Name:        component.Name(),
		Description: component.Description(),
		Schema:      component.Schema(),
	}
}
