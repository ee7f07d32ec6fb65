// Package services provides the flow, execution and publishing operations
// behind the HTTP API, and the error classes they report.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/flowstudio/pkg/execution"
	"github.com/dukex/flowstudio/pkg/gateway"
	"github.com/dukex/flowstudio/pkg/graph"
	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/persistence"
	"github.com/dukex/flowstudio/pkg/workerpool"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest     = errors.New("invalid request")
	ErrFlowNil            = errors.New("flow cannot be nil")
	ErrFlowNameRequired   = errors.New("flow name is required")
	ErrInvalidFlowGraph   = errors.New("invalid flow graph")
	ErrInvalidFlowVersion = errors.New("invalid flow version")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrFlowNil) ||
		errors.Is(err, ErrFlowNameRequired) ||
		errors.Is(err, ErrInvalidFlowGraph) ||
		errors.Is(err, ErrInvalidFlowVersion) ||
		errors.Is(err, gateway.ErrInvalidFlow) ||
		errors.Is(err, gateway.ErrEmptyVersion)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, execution.ErrExecutionFinished) ||
		errors.Is(err, execution.ErrExecutionNotActive) ||
		errors.Is(err, models.ErrInvalidTransition)
}

// IsNotFound checks if an error should return HTTP 404.
func IsNotFound(err error) bool {
	return persistence.IsNotFound(err) || errors.Is(err, gateway.ErrNotPublished)
}

// IsUnavailable checks if an error should return HTTP 503.
func IsUnavailable(err error) bool {
	return workerpool.IsUnavailable(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func graphError(op string, err error) error {
	code := "INVALID_FLOW_GRAPH"

	switch {
	case errors.Is(err, graph.ErrCycleDetected):
		code = "CYCLE_DETECTED"
	case errors.Is(err, graph.ErrDuplicateNode):
		code = "DUPLICATE_NODE"
	case errors.Is(err, graph.ErrUnresolvableGraph):
		code = "UNRESOLVABLE_GRAPH"
	}

	return &ServiceError{Op: op, Code: code, Message: err.Error(), Err: errors.Join(ErrInvalidFlowGraph, err)}
}
