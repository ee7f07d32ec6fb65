package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition indicates a status change that would move a record backwards.
var ErrInvalidTransition = errors.New("invalid status transition")

// ExecutionStatus is the lifecycle state of a flow run.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed" // Terminal
	ExecutionStatusFailed    ExecutionStatus = "failed"    // Terminal
	ExecutionStatusCancelled ExecutionStatus = "cancelled" // Terminal
)

var executionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionStatusPending: {ExecutionStatusRunning, ExecutionStatusFailed, ExecutionStatusCancelled},
	ExecutionStatusRunning: {ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled},
}

// IsTerminal reports whether no further transition is possible.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// ExecutionRecord tracks one run of a flow.
type ExecutionRecord struct {
	ID                  string          `json:"id"`
	FlowID              string          `json:"flow_id"`
	FlowVersion         string          `json:"flow_version,omitempty"`
	UserID              string          `json:"user_id,omitempty"`
	Status              ExecutionStatus `json:"status"`
	Progress            int             `json:"progress"`
	TotalComponents     int             `json:"total_components"`
	CompletedComponents int             `json:"completed_components"`
	ExecutionConfig     map[string]any  `json:"execution_config,omitempty"`
	FlowSnapshot        *Flow           `json:"flow_snapshot,omitempty"`
	ErrorMessage        string          `json:"error_message,omitempty"`
	ErrorDetails        map[string]any  `json:"error_details,omitempty"`
	FinalOutput         map[string]any  `json:"final_output,omitempty"`
	Metrics             map[string]any  `json:"execution_metrics,omitempty"`
	StartedAt           *time.Time      `json:"started_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Transition moves the record to the next status, stamping the matching timestamps.
func (r *ExecutionRecord) Transition(to ExecutionStatus, at time.Time) error {
	if !allowed(executionTransitions[r.Status], to) {
		return fmt.Errorf("%w: execution %s cannot move from %s to %s", ErrInvalidTransition, r.ID, r.Status, to)
	}

	r.Status = to
	r.UpdatedAt = at

	switch {
	case to == ExecutionStatusRunning:
		r.StartedAt = &at
	case to.IsTerminal():
		r.CompletedAt = &at
	}

	return nil
}

// SetProgress records the completed count and recomputes the integer progress.
// Progress never decreases.
func (r *ExecutionRecord) SetProgress(completed int) {
	r.CompletedComponents = completed

	progress := Progress(completed, r.TotalComponents)
	if progress > r.Progress {
		r.Progress = progress
	}
}

// Progress returns floor(completed/total*100). An empty run is fully complete.
func Progress(completed, total int) int {
	if total <= 0 {
		return 100
	}

	return completed * 100 / total
}

// NodeStatus is the lifecycle state of one node within a run.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

var nodeTransitions = map[NodeStatus][]NodeStatus{
	NodeStatusPending: {NodeStatusRunning, NodeStatusSkipped},
	NodeStatusRunning: {NodeStatusCompleted, NodeStatusFailed},
}

// NodeExecutionRecord tracks one node within a run.
type NodeExecutionRecord struct {
	ID              string         `json:"id"`
	ExecutionID     string         `json:"execution_id"`
	NodeID          string         `json:"node_id"`
	ComponentType   string         `json:"component_type"`
	ExecutionOrder  int            `json:"execution_order"`
	Status          NodeStatus     `json:"status"`
	ConfigSnapshot  map[string]any `json:"config_snapshot,omitempty"`
	InputSnapshot   map[string]any `json:"input_snapshot,omitempty"`
	OutputSnapshot  map[string]any `json:"output_snapshot,omitempty"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	CostEstimate    map[string]any `json:"cost_estimate,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	ErrorDetails    map[string]any `json:"error_details,omitempty"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// Transition moves the node record forward.
func (r *NodeExecutionRecord) Transition(to NodeStatus, at time.Time) error {
	if !allowed(nodeTransitions[r.Status], to) {
		return fmt.Errorf("%w: node %s cannot move from %s to %s", ErrInvalidTransition, r.NodeID, r.Status, to)
	}

	r.Status = to

	switch to {
	case NodeStatusRunning:
		r.StartedAt = &at
	case NodeStatusCompleted, NodeStatusFailed, NodeStatusSkipped:
		r.CompletedAt = &at
	case NodeStatusPending:
	}

	return nil
}

// LogLevel is the severity of an execution log entry.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// LogEntry is an append-only log line attached to a run.
type LogEntry struct {
	ID              string         `json:"id"`
	ExecutionID     string         `json:"execution_id"`
	NodeExecutionID string         `json:"node_execution_id,omitempty"`
	Level           LogLevel       `json:"level"`
	Message         string         `json:"message"`
	Details         map[string]any `json:"details,omitempty"`
	Source          string         `json:"source"`
	Timestamp       time.Time      `json:"timestamp"`
}

func allowed[T comparable](next []T, to T) bool {
	for _, candidate := range next {
		if candidate == to {
			return true
		}
	}

	return false
}
