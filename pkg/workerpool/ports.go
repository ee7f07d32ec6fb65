package workerpool

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// PortPool hands out ports from a fixed range. The free and used sets always
// partition the range.
type PortPool struct {
	mu   sync.Mutex
	free map[int]struct{}
	used map[int]struct{}
}

// NewPortPool creates a pool of size ports starting at base.
func NewPortPool(base, size int) *PortPool {
	pool := &PortPool{
		free: make(map[int]struct{}, size),
		used: make(map[int]struct{}, size),
	}

	for port := base; port < base+size; port++ {
		pool.free[port] = struct{}{}
	}

	return pool
}

// Acquire takes the lowest free port.
func (p *PortPool) Acquire() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return 0, fmt.Errorf("%w: %d ports in use", ErrPortExhausted, len(p.used))
	}

	port := slices.Min(slices.Collect(maps.Keys(p.free)))

	delete(p.free, port)
	p.used[port] = struct{}{}

	return port, nil
}

// Release returns a used port to the pool. It reports false when the port was
// not in use, so a double release is a no-op.
func (p *PortPool) Release(port int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.used[port]; !ok {
		return false
	}

	delete(p.used, port)
	p.free[port] = struct{}{}

	return true
}

func (p *PortPool) Free() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Sorted(maps.Keys(p.free))
}

func (p *PortPool) Used() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Sorted(maps.Keys(p.used))
}
