package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCycleDetected     = errors.New("cycle detected in flow graph")
	ErrUnresolvableGraph = errors.New("flow graph cannot be ordered")
	ErrDuplicateNode     = errors.New("duplicate node id")
)

// CycleError reports the node at which a back-edge was found and the path that closes the cycle.
type CycleError struct {
	NodeID string
	Path   []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycleDetected.Error(), strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}
