package models

// Output-sink component types. Their outputs are collected into the final
// output of a completed execution.
const (
	ComponentTypeTextOutput = "text_output"
	ComponentTypeFileOutput = "file_output"
	ComponentTypeDataOutput = "data_output"
)

// Node is one typed unit of work in a flow.
type Node struct {
	ID            string         `json:"id"                      validate:"required"`
	ComponentType string         `json:"component_type"          validate:"required"`
	Name          string         `json:"name,omitempty"`
	Config        map[string]any `json:"config,omitempty"` // Static input values, seeded before edge data
	InputSchema   map[string]any `json:"input_schema,omitempty"`
	OutputSchema  map[string]any `json:"output_schema,omitempty"`
}

// IsOutputSink reports whether the node's output belongs to the final output.
func (n *Node) IsOutputSink() bool {
	return IsOutputSinkType(n.ComponentType)
}

// IsOutputSinkType reports whether a component type is an output sink.
func IsOutputSinkType(componentType string) bool {
	switch componentType {
	case ComponentTypeTextOutput, ComponentTypeFileOutput, ComponentTypeDataOutput:
		return true
	default:
		return false
	}
}

// VariableMapping routes one field of the source's nested output to a target variable.
type VariableMapping struct {
	OutputField    string `json:"output_field"    validate:"required"`
	TargetVariable string `json:"target_variable" validate:"required"`
}

// Edge is a directed link from one node's output handle to another node's input handle.
type Edge struct {
	ID               string            `json:"id,omitempty"`
	SourceNodeID     string            `json:"source_node_id"              validate:"required"`
	SourceHandle     string            `json:"source_handle"`
	TargetNodeID     string            `json:"target_node_id"              validate:"required"`
	TargetHandle     string            `json:"target_handle,omitempty"`
	VariableMappings []VariableMapping `json:"variable_mappings,omitempty" validate:"dive"`
}

// HasVariableMappings reports whether the edge carries explicit multi-variable mappings.
func (e *Edge) HasVariableMappings() bool {
	return len(e.VariableMappings) > 0
}
