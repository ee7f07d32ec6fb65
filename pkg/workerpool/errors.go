package workerpool

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrPortExhausted         = errors.New("no free port for a worker process")
	ErrServiceUnavailable    = errors.New("worker pool at capacity")
	ErrProcessUnhealthy      = errors.New("worker process unhealthy")
	ErrProcessStartupTimeout = errors.New("worker process startup timed out")
)

// StartupError carries the diagnostic output of a worker that never became ready.
type StartupError struct {
	Key     string
	Port    int
	Timeout time.Duration
	Output  string
	Err     error
}

func (e *StartupError) Error() string {
	output := strings.TrimSpace(e.Output)
	if output == "" {
		output = "no output"
	}

	return fmt.Sprintf("worker %s on port %d not ready within %s: %v: %s", e.Key, e.Port, e.Timeout, e.Err, output)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err means no worker can serve the request.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrPortExhausted) ||
		errors.Is(err, ErrProcessStartupTimeout) ||
		errors.Is(err, ErrProcessUnhealthy)
}
