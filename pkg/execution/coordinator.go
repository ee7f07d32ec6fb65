// Package execution drives flow runs: it plans the graph, resolves node inputs,
// invokes component executors and records progress, logs and notifications.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/notify"
	"github.com/dukex/flowstudio/pkg/otelhelper"
	"github.com/dukex/flowstudio/pkg/persistence"
	"github.com/dukex/flowstudio/pkg/protocol"
	"github.com/dukex/flowstudio/pkg/resolver"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	ModeSequential = "sequential"
	ModeParallel   = "parallel"

	// InputConfigKey holds the run-level input inside the execution config.
	InputConfigKey = "input"
)

// Components looks up the executor of a component type.
type Components interface {
	Executor(componentType string) (protocol.Component, error)
}

// Request describes one run of a flow.
type Request struct {
	UserID string
	// Input is layered over the static config of every root node.
	Input map[string]any
	// Config is stored on the execution record as submitted.
	Config map[string]any
}

type Coordinator struct {
	components Components
	store      persistence.ExecutionRepository
	sink       notify.Sink
	resolver   *resolver.Resolver
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time

	parallel       bool
	maxParallel    int
	validateInputs bool

	mu     sync.Mutex
	active map[string]*atomic.Bool
}

type Option func(*Coordinator)

// WithParallel runs the nodes of each topological layer concurrently. Layers
// still run one after the other.
func WithParallel(parallel bool) Option {
	return func(c *Coordinator) {
		c.parallel = parallel
	}
}

// WithMaxParallel bounds the number of nodes of one layer running at once.
func WithMaxParallel(limit int) Option {
	return func(c *Coordinator) {
		c.maxParallel = limit
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithInputValidation checks every resolved input against the component's
// schema before the executor is called.
func WithInputValidation(enabled bool) Option {
	return func(c *Coordinator) {
		c.validateInputs = enabled
	}
}

func NewCoordinator(components Components, store persistence.ExecutionRepository, sink notify.Sink, opts ...Option) *Coordinator {
	c := &Coordinator{
		components: components,
		store:      store,
		sink:       sink,
		logger:     slog.Default(),
		tracer:     otelhelper.NoopTracer(),
		now:        time.Now,
		active:     make(map[string]*atomic.Bool),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.sink == nil {
		c.sink = notify.Discard
	}

	c.logger = c.logger.With("module", "execution")
	c.resolver = resolver.New(c.logger)

	return c
}

// Mode reports how nodes are scheduled.
func (c *Coordinator) Mode() string {
	if c.parallel {
		return ModeParallel
	}

	return ModeSequential
}

// Submit snapshots the flow and stores a pending execution record for it.
func (c *Coordinator) Submit(ctx context.Context, flow *models.Flow, req Request) (*models.ExecutionRecord, error) {
	snapshot, err := flow.Snapshot()
	if err != nil {
		return nil, err
	}

	config := make(map[string]any, len(req.Config)+1)
	maps.Copy(config, req.Config)

	if len(req.Input) > 0 {
		config[InputConfigKey] = req.Input
	}

	now := c.now().UTC()
	record := &models.ExecutionRecord{
		ID:              newID(),
		FlowID:          flow.ID,
		FlowVersion:     flow.Version,
		UserID:          req.UserID,
		Status:          models.ExecutionStatusPending,
		TotalComponents: len(snapshot.Nodes),
		ExecutionConfig: config,
		FlowSnapshot:    snapshot,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = c.store.CreateExecution(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution for flow %s: %w", flow.ID, err)
	}

	c.track(record.ID)

	c.logger.InfoContext(ctx, "Execution submitted",
		"execution_id", record.ID,
		"flow_id", flow.ID,
		"total_components", record.TotalComponents)

	return record, nil
}

// Run drives a pending execution to a terminal state. A failed or cancelled
// run is not an error: its outcome is on the returned record. Errors are
// reserved for records that cannot run or cannot be persisted.
func (c *Coordinator) Run(ctx context.Context, record *models.ExecutionRecord) (*models.ExecutionRecord, error) {
	if record.Status.IsTerminal() {
		return record, fmt.Errorf("%w: %s is %s", ErrExecutionFinished, record.ID, record.Status)
	}

	if record.Status != models.ExecutionStatusPending {
		return record, fmt.Errorf("%w: execution %s cannot start from %s", models.ErrInvalidTransition, record.ID, record.Status)
	}

	if record.FlowSnapshot == nil {
		return record, fmt.Errorf("%w: execution %s has no flow snapshot", ErrInvalidFlow, record.ID)
	}

	cancelled := c.track(record.ID)
	defer c.untrack(record.ID)

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "execution.run",
		attribute.String(otelhelper.ExecutionIDKey, record.ID),
		attribute.String(otelhelper.FlowIDKey, record.FlowID),
		attribute.String(otelhelper.FlowVersionKey, record.FlowVersion),
		attribute.String(otelhelper.UserIDKey, record.UserID),
		attribute.String(otelhelper.ExecutionModeKey, c.Mode()),
	)
	defer span.End()

	err := c.newRun(ctx, record, cancelled).execute(ctx)
	if err != nil {
		otelhelper.SetError(span, err)

		return record, err
	}

	if record.Status == models.ExecutionStatusFailed {
		otelhelper.SetFailure(span, record.ErrorMessage)
	}

	return record, nil
}

// Execute submits and runs a flow synchronously.
func (c *Coordinator) Execute(ctx context.Context, flow *models.Flow, req Request) (*models.ExecutionRecord, error) {
	record, err := c.Submit(ctx, flow, req)
	if err != nil {
		return nil, err
	}

	return c.Run(ctx, record)
}

// Cancel stops a run at its next node boundary. The node in flight is never
// interrupted. A pending run that is not tracked by this coordinator is
// cancelled directly in the store.
func (c *Coordinator) Cancel(ctx context.Context, executionID string) error {
	c.mu.Lock()
	flag, ok := c.active[executionID]
	c.mu.Unlock()

	if ok {
		flag.Store(true)
		c.logger.InfoContext(ctx, "Execution cancellation requested", "execution_id", executionID)

		return nil
	}

	record, err := c.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}

	switch {
	case record.Status.IsTerminal():
		return fmt.Errorf("%w: %s is %s", ErrExecutionFinished, executionID, record.Status)
	case record.Status == models.ExecutionStatusRunning:
		return fmt.Errorf("%w: %s", ErrExecutionNotActive, executionID)
	}

	return c.newRun(ctx, record, &atomic.Bool{}).cancel("Execution cancelled before start")
}

// Active reports whether a run is submitted or running in this coordinator.
func (c *Coordinator) Active(executionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.active[executionID]

	return ok
}

func (c *Coordinator) track(executionID string) *atomic.Bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	flag, ok := c.active[executionID]
	if !ok {
		flag = &atomic.Bool{}
		c.active[executionID] = flag
	}

	return flag
}

func (c *Coordinator) untrack(executionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.active, executionID)
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
