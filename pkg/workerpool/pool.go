// Package workerpool manages the worker processes that serve published flows:
// one process per flow version, each bound to its own port, health-checked,
// created on demand and reclaimed when idle.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

var errExitedDuringStartup = errors.New("worker exited before becoming ready")

type Pool struct {
	cfg      Config
	launcher Launcher
	prober   Prober
	ports    *PortPool
	logger   *slog.Logger
	now      func() time.Time

	creating singleflight.Group

	mu        sync.RWMutex
	processes map[string]*Process

	cronMu sync.Mutex
	cron   *cron.Cron
}

type Option func(*Pool)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithClock replaces the clock used for idle accounting.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

func New(cfg Config, launcher Launcher, prober Prober, opts ...Option) *Pool {
	cfg = cfg.withDefaults()

	p := &Pool{
		cfg:       cfg,
		launcher:  launcher,
		prober:    prober,
		ports:     NewPortPool(cfg.BasePort, cfg.MaxProcesses),
		logger:    slog.Default(),
		now:       time.Now,
		processes: make(map[string]*Process),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.logger = p.logger.With("module", "workerpool")

	return p
}

func (p *Pool) Config() Config {
	return p.cfg
}

func (p *Pool) Ports() *PortPool {
	return p.ports
}

// GetOrCreate returns a healthy worker for spec, starting one when needed.
// Concurrent calls for the same key share a single creation.
func (p *Pool) GetOrCreate(ctx context.Context, spec Spec) (*Process, error) {
	key := spec.Key()

	result, err, _ := p.creating.Do(key, func() (any, error) {
		return p.getOrCreate(context.WithoutCancel(ctx), spec)
	})
	if err != nil {
		return nil, err
	}

	process, _ := result.(*Process)
	process.touch(p.now())

	return process, nil
}

func (p *Pool) getOrCreate(ctx context.Context, spec Spec) (*Process, error) {
	key := spec.Key()

	if existing, ok := p.Process(key); ok {
		if p.healthy(ctx, existing) {
			return existing, nil
		}

		p.logger.WarnContext(ctx, "Replacing unhealthy worker", "key", key, "port", existing.Port)
		_ = p.StopProcess(ctx, existing)
	}

	if p.Len() >= p.cfg.MaxProcesses {
		p.IdleSweep(ctx, false)

		if running := p.Len(); running >= p.cfg.MaxProcesses {
			return nil, fmt.Errorf("%w: %d of %d workers running", ErrServiceUnavailable, running, p.cfg.MaxProcesses)
		}
	}

	return p.create(ctx, spec)
}

func (p *Pool) create(ctx context.Context, spec Spec) (*Process, error) {
	key := spec.Key()

	// The port pool holds MaxProcesses ports, so it is the capacity gate for
	// creations of different keys that all passed the Len check.
	port, err := p.ports.Acquire()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}

	handle, err := p.launcher.Launch(ctx, spec, port)
	if err != nil {
		p.ports.Release(port)

		return nil, fmt.Errorf("failed to launch worker %s: %w", key, err)
	}

	now := p.now()
	process := &Process{
		Key:         key,
		FlowID:      spec.FlowID,
		Version:     spec.Version,
		Port:        port,
		PID:         handle.PID(),
		handle:      handle,
		started:     now,
		status:      StatusStarting,
		lastRequest: now,
	}

	p.mu.Lock()
	p.processes[key] = process
	p.mu.Unlock()

	err = p.waitReady(ctx, process)
	if err != nil {
		process.setStatus(StatusError)
		output := handle.Output()

		_ = p.StopProcess(ctx, process)

		startupErr := &StartupError{
			Key:     key,
			Port:    port,
			Timeout: p.cfg.StartupTimeout,
			Output:  output,
			Err:     ErrProcessStartupTimeout,
		}

		if errors.Is(err, errExitedDuringStartup) {
			startupErr.Output = strings.TrimSpace(errExitedDuringStartup.Error() + "\n" + output)
		}

		p.logger.ErrorContext(ctx, "Worker failed to start", "key", key, "port", port, "output", output)

		return nil, startupErr
	}

	process.setStatus(StatusReady)
	p.logger.InfoContext(ctx, "Worker ready", "key", key, "port", port, "pid", process.PID)

	return process, nil
}

// waitReady polls the health endpoint until it answers or the startup timeout passes.
func (p *Pool) waitReady(ctx context.Context, process *Process) error {
	deadline := time.NewTimer(p.cfg.StartupTimeout)
	defer deadline.Stop()

	ticker := time.NewTicker(p.cfg.StartupPollInterval)
	defer ticker.Stop()

	for {
		if !process.alive() {
			return errExitedDuringStartup
		}

		if p.probe(ctx, process) == nil {
			return nil
		}

		select {
		case <-deadline.C:
			return ErrProcessStartupTimeout
		case <-ctx.Done():
			return ctx.Err()
		case <-process.handle.Done():
			return errExitedDuringStartup
		case <-ticker.C:
		}
	}
}

func (p *Pool) probe(ctx context.Context, process *Process) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.HealthTimeout)
	defer cancel()

	return p.prober.Probe(ctx, process.Port)
}

func (p *Pool) healthy(ctx context.Context, process *Process) bool {
	return process.alive() && p.probe(ctx, process) == nil
}

// Stop stops the worker of key. Stopping a missing worker is a no-op.
func (p *Pool) Stop(ctx context.Context, key string) error {
	process, ok := p.Process(key)
	if !ok {
		return nil
	}

	return p.StopProcess(ctx, process)
}

// StopProcess terminates a worker, killing it after the grace period, then
// releases its port and forgets it. Only the first call has any effect.
func (p *Pool) StopProcess(ctx context.Context, process *Process) error {
	if !process.stopped.CompareAndSwap(false, true) {
		return nil
	}

	process.setStatus(StatusStopping)

	err := p.terminate(ctx, process)

	p.mu.Lock()
	if p.processes[process.Key] == process {
		delete(p.processes, process.Key)
	}
	p.mu.Unlock()

	p.ports.Release(process.Port)

	p.logger.InfoContext(ctx, "Worker stopped", "key", process.Key, "port", process.Port, "pid", process.PID)

	return err
}

func (p *Pool) terminate(ctx context.Context, process *Process) error {
	if !process.alive() {
		return nil
	}

	err := process.handle.Terminate()
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to signal worker", "key", process.Key, "error", err)
	}

	grace := time.NewTimer(p.cfg.StopGracePeriod)
	defer grace.Stop()

	select {
	case <-process.handle.Done():
		return nil
	case <-grace.C:
	}

	p.logger.WarnContext(ctx, "Worker ignored termination, killing", "key", process.Key, "pid", process.PID)

	err = process.handle.Kill()
	if err != nil {
		return fmt.Errorf("failed to kill worker %s: %w", process.Key, err)
	}

	<-process.handle.Done()

	return nil
}

// IdleSweep stops every worker idle for longer than the idle timeout, or
// every worker when force is set. It returns the number stopped.
func (p *Pool) IdleSweep(ctx context.Context, force bool) int {
	now := p.now()

	p.mu.RLock()
	idle := make([]*Process, 0)

	for _, process := range p.processes {
		if force || now.Sub(process.LastRequestTime()) > p.cfg.IdleTimeout {
			idle = append(idle, process)
		}
	}
	p.mu.RUnlock()

	for _, process := range idle {
		err := p.StopProcess(ctx, process)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to stop idle worker", "key", process.Key, "error", err)
		}
	}

	if len(idle) > 0 {
		p.logger.InfoContext(ctx, "Reclaimed idle workers", "count", len(idle), "force", force)
	}

	return len(idle)
}

// Start schedules the idle sweep every SweepInterval.
func (p *Pool) Start(ctx context.Context) error {
	p.cronMu.Lock()
	defer p.cronMu.Unlock()

	if p.cron != nil {
		return nil
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(p.logger.Handler(), slog.LevelWarn))

	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	sweepCtx := context.WithoutCancel(ctx)

	_, err := scheduler.AddFunc("@every "+p.cfg.SweepInterval.String(), func() {
		p.IdleSweep(sweepCtx, false)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule idle sweep: %w", err)
	}

	scheduler.Start()
	p.cron = scheduler

	p.logger.InfoContext(ctx, "Idle sweep scheduled",
		"interval", p.cfg.SweepInterval,
		"idle_timeout", p.cfg.IdleTimeout)

	return nil
}

// Shutdown stops the background sweep and every worker.
func (p *Pool) Shutdown(ctx context.Context) {
	p.cronMu.Lock()
	scheduler := p.cron
	p.cron = nil
	p.cronMu.Unlock()

	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
		}
	}

	p.IdleSweep(ctx, true)
}

func (p *Pool) Process(key string) (*Process, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	process, ok := p.processes[key]

	return process, ok
}

// Processes returns the workers sorted by key.
func (p *Pool) Processes() []Info {
	p.mu.RLock()
	infos := make([]Info, 0, len(p.processes))

	for _, process := range p.processes {
		infos = append(infos, process.Info())
	}
	p.mu.RUnlock()

	slices.SortFunc(infos, func(a, b Info) int {
		return strings.Compare(a.Key, b.Key)
	})

	return infos
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.processes)
}
