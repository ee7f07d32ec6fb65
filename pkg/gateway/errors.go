package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotPublished  = errors.New("flow version is not published")
	ErrInvalidFlow   = errors.New("flow cannot be published")
	ErrEmptyVersion  = errors.New("version is required")
	ErrInvalidResult = errors.New("worker returned an invalid response")
)

// ForwardError is a non-200 answer from a worker process.
type ForwardError struct {
	FlowID  string
	Version string
	Status  int
	Message string
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("worker for %s v%s answered %d: %s", e.FlowID, e.Version, e.Status, e.Message)
}

// StatusCode returns the HTTP status to relay to the caller.
func (e *ForwardError) StatusCode() int {
	if e.Status < http.StatusBadRequest {
		return http.StatusBadGateway
	}

	return e.Status
}
