package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-json"
)

// Environment read by the worker binary.
const (
	EnvFlowPort    = "FLOW_PORT"
	EnvFlowConfig  = "FLOW_CONFIG"
	EnvFlowID      = "FLOW_ID"
	EnvFlowVersion = "FLOW_VERSION"
	EnvFlowName    = "FLOW_NAME"

	outputLimit     = 64 * 1024
	outputWaitDelay = 5 * time.Second
)

// Launcher starts the worker process of a spec bound to port.
type Launcher interface {
	Launch(ctx context.Context, spec Spec, port int) (Handle, error)
}

// ExecLauncher runs a prebuilt worker binary. The flow snapshot is written to
// a config file and everything else is passed through the environment.
type ExecLauncher struct {
	Binary    string
	Args      []string
	ConfigDir string
	Env       []string
	Logger    *slog.Logger
}

func NewExecLauncher(binary, configDir string, logger *slog.Logger) *ExecLauncher {
	if configDir == "" {
		configDir = filepath.Join(os.TempDir(), "flowstudio-workers")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &ExecLauncher{
		Binary:    binary,
		ConfigDir: configDir,
		Logger:    logger.With("module", "worker_launcher"),
	}
}

func (l *ExecLauncher) Launch(_ context.Context, spec Spec, port int) (Handle, error) {
	configPath, err := l.writeConfig(spec, port)
	if err != nil {
		return nil, err
	}

	// The worker outlives the request that created it, so it is not bound to ctx.
	cmd := exec.Command(l.Binary, l.Args...) // #nosec G204 -- binary comes from operator configuration
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Env = append(cmd.Env,
		EnvFlowPort+"="+strconv.Itoa(port),
		EnvFlowConfig+"="+configPath,
		EnvFlowID+"="+spec.FlowID,
		EnvFlowVersion+"="+spec.Version,
		EnvFlowName+"="+spec.Name,
	)

	output := &tailBuffer{limit: outputLimit}
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.WaitDelay = outputWaitDelay

	err = cmd.Start()
	if err != nil {
		_ = os.Remove(configPath)

		return nil, fmt.Errorf("failed to start worker %s: %w", l.Binary, err)
	}

	handle := &execHandle{cmd: cmd, output: output, done: make(chan struct{})}

	go func() {
		err := cmd.Wait()
		if err != nil {
			l.Logger.Debug("Worker exited", "key", spec.Key(), "pid", cmd.Process.Pid, "error", err)
		}

		_ = os.Remove(configPath)

		close(handle.done)
	}()

	l.Logger.Info("Worker launched", "key", spec.Key(), "port", port, "pid", cmd.Process.Pid)

	return handle, nil
}

func (l *ExecLauncher) writeConfig(spec Spec, port int) (string, error) {
	err := os.MkdirAll(l.ConfigDir, 0o750)
	if err != nil {
		return "", fmt.Errorf("failed to create worker config dir: %w", err)
	}

	payload, err := json.Marshal(spec.Flow)
	if err != nil {
		return "", fmt.Errorf("failed to encode flow %s: %w", spec.FlowID, err)
	}

	path := filepath.Join(l.ConfigDir, fmt.Sprintf("flow_%s_%s_%d.json", spec.FlowID, spec.Version, port))

	err = os.WriteFile(path, payload, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to write worker config: %w", err)
	}

	return path, nil
}

type execHandle struct {
	cmd    *exec.Cmd
	output *tailBuffer
	done   chan struct{}
}

func (h *execHandle) PID() int {
	return h.cmd.Process.Pid
}

func (h *execHandle) Done() <-chan struct{} {
	return h.done
}

func (h *execHandle) Terminate() error {
	return h.cmd.Process.Signal(syscall.SIGTERM)
}

func (h *execHandle) Kill() error {
	return h.cmd.Process.Kill()
}

func (h *execHandle) Output() string {
	return h.output.String()
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, p...)
	if overflow := len(b.data) - b.limit; overflow > 0 {
		b.data = b.data[overflow:]
	}

	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return string(b.data)
}
