// Package models defines the core domain models for flow authoring and execution
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Flow is a named, versioned directed graph of components.
type Flow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"                  validate:"required,min=1"`
	Description string    `json:"description,omitempty"`
	Version     string    `json:"version"`
	OwnerID     string    `json:"owner_id"`
	Nodes       []*Node   `json:"nodes"                 validate:"dive"`
	Edges       []*Edge   `json:"edges"                 validate:"dive"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a deep copy of the flow. A run operates on a snapshot so
// concurrent edits to the flow never leak into an in-flight execution.
func (f *Flow) Snapshot() (*Flow, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot flow %s: %w", f.ID, err)
	}

	var snapshot Flow

	err = json.Unmarshal(payload, &snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot flow %s: %w", f.ID, err)
	}

	return &snapshot, nil
}

// NodeByID returns the node with the given id.
func (f *Flow) NodeByID(id string) (*Node, bool) {
	for _, node := range f.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// RootNodes returns the nodes that are not the target of any edge, in node order.
func (f *Flow) RootNodes() []*Node {
	targets := make(map[string]struct{}, len(f.Edges))
	for _, edge := range f.Edges {
		targets[edge.TargetNodeID] = struct{}{}
	}

	roots := make([]*Node, 0)

	for _, node := range f.Nodes {
		if _, ok := targets[node.ID]; !ok {
			roots = append(roots, node)
		}
	}

	return roots
}
