package execution

import (
	"errors"
	"fmt"
)

var (
	ErrMissingRequiredInput = errors.New("missing required input")
	ErrComponentExecution   = errors.New("component execution failed")
	ErrExecutionFinished    = errors.New("execution already finished")
	ErrExecutionNotActive   = errors.New("execution is not running in this process")
	ErrInvalidFlow          = errors.New("invalid flow")
)

// ComponentError is the failure of one node. Err is ErrComponentExecution for
// failures reported by the executor itself, or the lookup/validation error
// that prevented it from running.
type ComponentError struct {
	NodeID        string
	ComponentType string
	Message       string
	Details       map[string]any
	Err           error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("component %s (%s) failed: %s", e.NodeID, e.ComponentType, e.Message)
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}
