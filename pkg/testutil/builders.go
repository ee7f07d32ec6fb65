// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"fmt"

	"github.com/dukex/flowstudio/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a text_input node with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:            uuid.New().String(),
		ComponentType: "text_input",
		Name:          "Test Node",
		Config:        map[string]any{"text": "hello"},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node id.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// WithComponentType sets the node component type and clears its config.
func WithComponentType(componentType string) func(*models.Node) {
	return func(n *models.Node) {
		n.ComponentType = componentType
		n.Config = nil
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Config = config
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.Node) {
	return func(n *models.Node) {
		n.Name = name
	}
}

// CreateTestEdge connects the nested output of source to the text input of target.
func CreateTestEdge(source, target string, overrides ...func(*models.Edge)) *models.Edge {
	edge := &models.Edge{
		ID:           source + "->" + target,
		SourceNodeID: source,
		SourceHandle: "output",
		TargetNodeID: target,
		TargetHandle: "text",
	}

	for _, override := range overrides {
		override(edge)
	}

	return edge
}

// WithHandles sets the source and target handles of an edge.
func WithHandles(source, target string) func(*models.Edge) {
	return func(e *models.Edge) {
		e.SourceHandle = source
		e.TargetHandle = target
	}
}

// WithVariableMappings sets explicit variable mappings on an edge.
func WithVariableMappings(mappings ...models.VariableMapping) func(*models.Edge) {
	return func(e *models.Edge) {
		e.VariableMappings = mappings
	}
}

// CreateTestFlow creates a flow with default values that can be overridden.
func CreateTestFlow(overrides ...func(*models.Flow)) *models.Flow {
	flow := &models.Flow{
		ID:      uuid.New().String(),
		Name:    "Test Flow",
		Version: "1",
		OwnerID: "test-user",
		Nodes:   []*models.Node{},
		Edges:   []*models.Edge{},
	}

	for _, override := range overrides {
		override(flow)
	}

	return flow
}

// WithNodes sets the flow nodes.
func WithNodes(nodes ...*models.Node) func(*models.Flow) {
	return func(f *models.Flow) {
		f.Nodes = nodes
	}
}

// WithEdges sets the flow edges.
func WithEdges(edges ...*models.Edge) func(*models.Flow) {
	return func(f *models.Flow) {
		f.Edges = edges
	}
}

// WithTextPipeline builds text_input -> text_processor x n -> text_output, with
// node ids "input", "step-1".."step-n" and "output".
func WithTextPipeline(text string, operations ...string) func(*models.Flow) {
	return func(f *models.Flow) {
		nodes := []*models.Node{CreateTestNode(WithID("input"), WithConfig(map[string]any{"text": text}))}
		edges := make([]*models.Edge, 0, len(operations)+1)

		previous := "input"

		for i, operation := range operations {
			id := fmt.Sprintf("step-%d", i+1)
			nodes = append(nodes, CreateTestNode(
				WithID(id),
				WithComponentType("text_processor"),
				WithConfig(map[string]any{"operation": operation}),
			))

			handle := "output"
			if previous != "input" {
				handle = "processed_text"
			}

			edges = append(edges, CreateTestEdge(previous, id, WithHandles(handle, "text")))
			previous = id
		}

		nodes = append(nodes, CreateTestNode(WithID("output"), WithComponentType(models.ComponentTypeTextOutput)))

		handle := "output"
		if previous != "input" {
			handle = "processed_text"
		}

		edges = append(edges, CreateTestEdge(previous, "output", WithHandles(handle, "text")))

		f.Nodes = nodes
		f.Edges = edges
	}
}
