package workerpool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/flowstudio/pkg/models"
)

type Status string

const (
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusError    Status = "error"
	StatusStopping Status = "stopping"
)

// Key identifies the worker of one published flow version.
func Key(flowID, version string) string {
	return models.PublicationKey(flowID, version)
}

// Spec is what a worker process serves.
type Spec struct {
	FlowID  string
	Version string
	Name    string
	Flow    *models.Flow
}

func (s Spec) Key() string {
	return Key(s.FlowID, s.Version)
}

// Handle controls one launched OS process.
type Handle interface {
	PID() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	Terminate() error
	Kill() error
	// Output returns the recent stdout and stderr of the process.
	Output() string
}

// Process is a worker bound to one port.
type Process struct {
	Key     string
	FlowID  string
	Version string
	Port    int
	PID     int

	handle  Handle
	started time.Time
	stopped atomic.Bool

	mu           sync.Mutex
	status       Status
	lastRequest  time.Time
	requestCount int64
}

// Info is a point-in-time view of a process.
type Info struct {
	Key             string    `json:"key"`
	FlowID          string    `json:"flow_id"`
	Version         string    `json:"version"`
	Port            int       `json:"port"`
	PID             int       `json:"process_id"`
	Status          Status    `json:"status"`
	StartTime       time.Time `json:"start_time"`
	LastRequestTime time.Time `json:"last_request_time"`
	RequestCount    int64     `json:"request_count"`
}

func (p *Process) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.status
}

func (p *Process) LastRequestTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.lastRequest
}

func (p *Process) RequestCount() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.requestCount
}

func (p *Process) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Info{
		Key:             p.Key,
		FlowID:          p.FlowID,
		Version:         p.Version,
		Port:            p.Port,
		PID:             p.PID,
		Status:          p.status,
		StartTime:       p.started,
		LastRequestTime: p.lastRequest,
		RequestCount:    p.requestCount,
	}
}

func (p *Process) alive() bool {
	select {
	case <-p.handle.Done():
		return false
	default:
		return true
	}
}

func (p *Process) setStatus(status Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = status
}

func (p *Process) touch(at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastRequest = at
	p.requestCount++
}
