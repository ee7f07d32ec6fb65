// Package resolver builds the input map of a node from its static config and
// the outputs of upstream nodes.
package resolver

import (
	"log/slog"
	"maps"
	"strings"

	"github.com/dukex/flowstudio/pkg/models"
)

const (
	// OutputKey is the key under which single-output components nest their results.
	OutputKey = "output"

	dottedOutputPrefix = OutputKey + "."
)

type Resolver struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{logger: logger}
}

// Resolve seeds the input with the node's static config and then applies every
// incoming edge in edge order. Later edges overwrite keys set by earlier ones.
//
// For each edge whose source has produced output and which names a source
// handle, the first matching rule wins:
//
//  1. explicit variable mappings copy fields of the nested output
//  2. source handle "output" copies one nested field, a dotted "output.<field>"
//     target, or broadcasts every nested field
//  3. source handle "output.<field>" copies that nested field to the target handle
//  4. a source handle naming a top-level output key copies it to the target handle
func (r *Resolver) Resolve(node *models.Node, edges []*models.Edge, outputs map[string]map[string]any) map[string]any {
	input := make(map[string]any, len(node.Config))
	maps.Copy(input, node.Config)

	for _, edge := range IncomingEdges(edges, node.ID) {
		source, ok := outputs[edge.SourceNodeID]
		if !ok || edge.SourceHandle == "" {
			continue
		}

		r.apply(input, edge, source)
	}

	return input
}

func (r *Resolver) apply(input map[string]any, edge *models.Edge, source map[string]any) {
	nested, hasNested := source[OutputKey]

	switch {
	case edge.HasVariableMappings():
		fields, ok := nested.(map[string]any)
		if !hasNested || !ok {
			r.logger.Debug("Variable mappings need a nested output object", "edge_id", edge.ID, "source", edge.SourceNodeID)

			return
		}

		for _, mapping := range edge.VariableMappings {
			if value, ok := fields[mapping.OutputField]; ok {
				input[mapping.TargetVariable] = value
			}
		}

	case edge.SourceHandle == OutputKey && hasNested:
		fields, ok := nested.(map[string]any)
		if !ok {
			if edge.TargetHandle != "" {
				input[edge.TargetHandle] = nested
			}

			return
		}

		switch {
		case edge.TargetHandle == "":
			maps.Copy(input, fields)
		case hasKey(fields, edge.TargetHandle):
			input[edge.TargetHandle] = fields[edge.TargetHandle]
		case strings.HasPrefix(edge.TargetHandle, dottedOutputPrefix):
			// The value keeps the full dotted key.
			field := strings.TrimPrefix(edge.TargetHandle, dottedOutputPrefix)
			if value, ok := fields[field]; ok {
				input[edge.TargetHandle] = value
			}
		default:
			maps.Copy(input, fields)
		}

	case strings.HasPrefix(edge.SourceHandle, dottedOutputPrefix) && hasNested:
		fields, ok := nested.(map[string]any)
		if !ok || edge.TargetHandle == "" {
			return
		}

		field := strings.TrimPrefix(edge.SourceHandle, dottedOutputPrefix)
		if value, ok := fields[field]; ok {
			input[edge.TargetHandle] = value
		}

	case hasKey(source, edge.SourceHandle) && edge.TargetHandle != "":
		input[edge.TargetHandle] = source[edge.SourceHandle]
	}
}

// IncomingEdges returns the edges targeting nodeID, in edge order.
func IncomingEdges(edges []*models.Edge, nodeID string) []*models.Edge {
	incoming := make([]*models.Edge, 0)

	for _, edge := range edges {
		if edge.TargetNodeID == nodeID {
			incoming = append(incoming, edge)
		}
	}

	return incoming
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]

	return ok
}
