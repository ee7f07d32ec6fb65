// Package protocol defines the contract between the execution coordinator and pluggable components.
package protocol

import (
	"context"
	"log/slog"
	"time"
)

// ExecutionContext is everything a component receives for one invocation.
type ExecutionContext struct {
	ExecutionID   string
	ComponentID   string
	ComponentType string
	Config        map[string]any
	Input         map[string]any
	Logger        *slog.Logger
}

// Result is the outcome of one component invocation. Components report
// failures through Success=false and Error instead of returning Go errors.
type Result struct {
	Success      bool           `json:"success"`
	Output       map[string]any `json:"output"`
	TimingMs     int64          `json:"timing_ms"`
	Error        string         `json:"error,omitempty"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`
	CostEstimate map[string]any `json:"cost_estimate,omitempty"`
}

// Executor runs one component type.
//
// Executors must not mutate shared execution state. Side effects such as
// network calls or file I/O are owned by the executor.
type Executor interface {
	Execute(ctx context.Context, ec ExecutionContext) Result
}

// Component is an executor plus the metadata used to register and describe it.
type Component interface {
	Executor

	// ID returns the component type key, e.g. "text_input"
	ID() string

	// Name returns the human-readable name
	Name() string

	// Description returns a description of what the component does
	Description() string

	// Schema returns the JSON schema of the resolved input map
	Schema() map[string]any
}

// Succeed builds a successful result timed from start.
func Succeed(start time.Time, output map[string]any) Result {
	return Result{
		Success:  true,
		Output:   output,
		TimingMs: Elapsed(start),
	}
}

// Fail builds a failed result timed from start.
func Fail(start time.Time, message string) Result {
	return Result{
		Success:  false,
		Output:   map[string]any{},
		TimingMs: Elapsed(start),
		Error:    message,
	}
}

// Elapsed returns the milliseconds since start.
func Elapsed(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

// LoggerOrDefault returns the context logger, or the default logger when unset.
func (ec ExecutionContext) LoggerOrDefault() *slog.Logger {
	if ec.Logger != nil {
		return ec.Logger
	}

	return slog.Default()
}
