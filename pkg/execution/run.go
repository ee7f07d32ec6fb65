package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/flowstudio/pkg/events"
	"github.com/dukex/flowstudio/pkg/graph"
	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/otelhelper"
	"github.com/dukex/flowstudio/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const logSource = "execution_engine"

var errCancelled = errors.New("execution cancelled")

// run is the state of one execution. Fields below mu are shared between the
// goroutines of a parallel layer.
type run struct {
	c         *Coordinator
	record    *models.ExecutionRecord
	flow      *models.Flow
	input     map[string]any
	roots     map[string]bool
	nodes     map[string]*models.Node
	logger    *slog.Logger
	cancelled *atomic.Bool
	started   time.Time

	// bg outlives the caller's context so terminal states are always persisted.
	bg context.Context

	order   []string
	records map[string]*models.NodeExecutionRecord

	mu        sync.Mutex
	outputs   map[string]map[string]any
	completed int

	emitMu   sync.Mutex
	sequence int64
}

func (c *Coordinator) newRun(ctx context.Context, record *models.ExecutionRecord, cancelled *atomic.Bool) *run {
	flow := record.FlowSnapshot
	if flow == nil {
		flow = &models.Flow{ID: record.FlowID}
	}

	r := &run{
		c:         c,
		record:    record,
		flow:      flow,
		roots:     make(map[string]bool),
		nodes:     make(map[string]*models.Node, len(flow.Nodes)),
		cancelled: cancelled,
		started:   c.now(),
		bg:        context.WithoutCancel(ctx),
		records:   make(map[string]*models.NodeExecutionRecord, len(flow.Nodes)),
		outputs:   make(map[string]map[string]any, len(flow.Nodes)),
		logger: c.logger.With(
			"execution_id", record.ID,
			"flow_id", record.FlowID,
		),
	}

	if input, ok := record.ExecutionConfig[InputConfigKey].(map[string]any); ok {
		r.input = input
	}

	for _, node := range flow.Nodes {
		r.nodes[node.ID] = node
	}

	for _, node := range flow.RootNodes() {
		r.roots[node.ID] = true
	}

	return r
}

func (r *run) execute(ctx context.Context) error {
	if r.isCancelled(ctx) {
		return r.cancel("Execution cancelled before start")
	}

	dependencies, order, err := graph.Plan(r.flow)
	if err != nil {
		return r.fail(err)
	}

	r.order = order

	err = r.createNodeRecords()
	if err != nil {
		return r.fail(err)
	}

	err = r.record.Transition(models.ExecutionStatusRunning, r.c.now().UTC())
	if err != nil {
		return err
	}

	r.saveRecord()
	r.log(models.LogLevelInfo, fmt.Sprintf("Starting execution of %d components", len(order)), "", map[string]any{
		"execution_order": order,
		"mode":            r.c.Mode(),
	})
	r.emit(events.ExecutionStartedEvent, func(e *events.Event) {
		e.Status = string(models.ExecutionStatusRunning)
		e.Progress = events.IntPtr(0)
	})

	if r.c.parallel {
		layers, layerErr := dependencies.Layers()
		if layerErr != nil {
			return r.fail(layerErr)
		}

		err = r.runLayers(ctx, layers)
	} else {
		err = r.runSequential(ctx)
	}

	switch {
	case err == nil:
		return r.complete()
	case errors.Is(err, errCancelled):
		return r.cancel("Execution cancelled")
	default:
		return r.fail(err)
	}
}

func (r *run) runSequential(ctx context.Context) error {
	for _, id := range r.order {
		if r.isCancelled(ctx) {
			return errCancelled
		}

		err := r.executeNode(ctx, id)
		if err != nil {
			return err
		}
	}

	return nil
}

// runLayers runs each layer behind a barrier. The first failure of a layer, in
// layer order, stops the run once every node of that layer has returned.
func (r *run) runLayers(ctx context.Context, layers [][]string) error {
	for _, layer := range layers {
		if r.isCancelled(ctx) {
			return errCancelled
		}

		failures := make([]error, len(layer))

		var group errgroup.Group
		if r.c.maxParallel > 0 {
			group.SetLimit(r.c.maxParallel)
		}

		for i, id := range layer {
			group.Go(func() error {
				failures[i] = r.executeNode(ctx, id)

				return failures[i]
			})
		}

		_ = group.Wait()

		for _, err := range failures {
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func (r *run) createNodeRecords() error {
	records := make([]*models.NodeExecutionRecord, 0, len(r.order))

	for position, id := range r.order {
		node := r.nodes[id]
		record := &models.NodeExecutionRecord{
			ID:             newID(),
			ExecutionID:    r.record.ID,
			NodeID:         id,
			ComponentType:  node.ComponentType,
			ExecutionOrder: position,
			Status:         models.NodeStatusPending,
			ConfigSnapshot: maps.Clone(node.Config),
		}

		r.records[id] = record
		records = append(records, record)
	}

	err := r.c.store.CreateNodeExecutions(r.bg, records)
	if err != nil {
		return fmt.Errorf("failed to create node executions: %w", err)
	}

	return nil
}

func (r *run) executeNode(ctx context.Context, id string) error {
	node := r.nodes[id]
	record := r.records[id]

	ctx, span := otelhelper.StartSpan(ctx, r.c.tracer, "execution.node",
		attribute.String(otelhelper.ExecutionIDKey, r.record.ID),
		attribute.String(otelhelper.NodeIDKey, id),
		attribute.String(otelhelper.ComponentTypeKey, node.ComponentType),
	)
	defer span.End()

	_ = record.Transition(models.NodeStatusRunning, r.c.now().UTC())
	r.saveNode(record)
	r.emit(events.ComponentStartedEvent, func(e *events.Event) {
		e.NodeID = id
		e.Status = string(models.NodeStatusRunning)
	})
	r.log(models.LogLevelInfo, fmt.Sprintf("Executing component %s (%s)", id, node.ComponentType), record.ID, nil)

	input := r.resolveInput(node)
	record.InputSnapshot = input

	result, err := r.invoke(ctx, node, input)

	record.ExecutionTimeMs = result.TimingMs
	record.CostEstimate = result.CostEstimate

	if err != nil {
		otelhelper.SetError(span, err)
		r.nodeFailed(record, err)

		return err
	}

	r.nodeCompleted(record, result.Output)

	return nil
}

// resolveInput layers the run input over the config of root nodes, then
// applies incoming edges.
func (r *run) resolveInput(node *models.Node) map[string]any {
	target := node

	if r.roots[node.ID] && len(r.input) > 0 {
		layered := *node
		layered.Config = make(map[string]any, len(node.Config)+len(r.input))
		maps.Copy(layered.Config, node.Config)
		maps.Copy(layered.Config, r.input)
		target = &layered
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.c.resolver.Resolve(target, r.flow.Edges, r.outputs)
}

func (r *run) invoke(ctx context.Context, node *models.Node, input map[string]any) (protocol.Result, error) {
	component, err := r.c.components.Executor(node.ComponentType)
	if err != nil {
		return protocol.Result{}, &ComponentError{
			NodeID:        node.ID,
			ComponentType: node.ComponentType,
			Message:       err.Error(),
			Details:       map[string]any{"error_type": "unknown_component_type"},
			Err:           err,
		}
	}

	if r.c.validateInputs {
		details, validationErr := validateInput(component.Schema(), input)
		if validationErr != nil {
			return protocol.Result{}, &ComponentError{
				NodeID:        node.ID,
				ComponentType: node.ComponentType,
				Message:       validationErr.Error(),
				Details:       details,
				Err:           validationErr,
			}
		}
	}

	result := r.call(ctx, component, protocol.ExecutionContext{
		ExecutionID:   r.record.ID,
		ComponentID:   node.ID,
		ComponentType: node.ComponentType,
		Config:        node.Config,
		Input:         input,
		Logger:        r.logger.With("node_id", node.ID, "component_type", node.ComponentType),
	})

	if !result.Success {
		message := result.Error
		if message == "" {
			message = "component reported failure"
		}

		return result, &ComponentError{
			NodeID:        node.ID,
			ComponentType: node.ComponentType,
			Message:       message,
			Details:       result.ErrorDetails,
			Err:           ErrComponentExecution,
		}
	}

	return result, nil
}

// call invokes the executor and turns a panic into a failed result.
func (r *run) call(ctx context.Context, component protocol.Component, ec protocol.ExecutionContext) (result protocol.Result) {
	start := time.Now()

	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}

		r.logger.ErrorContext(ctx, "Component panicked", "node_id", ec.ComponentID, "panic", recovered)
		result = protocol.Fail(start, fmt.Sprintf("component panicked: %v", recovered))
		result.ErrorDetails = map[string]any{"error_type": "panic"}
	}()

	return component.Execute(ctx, ec)
}

func (r *run) nodeFailed(record *models.NodeExecutionRecord, err error) {
	var componentErr *ComponentError
	if errors.As(err, &componentErr) {
		record.ErrorMessage = componentErr.Message
		record.ErrorDetails = componentErr.Details
	} else {
		record.ErrorMessage = err.Error()
	}

	_ = record.Transition(models.NodeStatusFailed, r.c.now().UTC())
	r.saveNode(record)
	r.log(models.LogLevelError, fmt.Sprintf("Component %s failed: %s", record.NodeID, record.ErrorMessage), record.ID, record.ErrorDetails)
	r.emit(events.ComponentFailedEvent, func(e *events.Event) {
		e.NodeID = record.NodeID
		e.Status = string(models.NodeStatusFailed)
		e.Error = record.ErrorMessage
	})
}

func (r *run) nodeCompleted(record *models.NodeExecutionRecord, output map[string]any) {
	if output == nil {
		output = map[string]any{}
	}

	record.OutputSnapshot = output
	_ = record.Transition(models.NodeStatusCompleted, r.c.now().UTC())
	r.saveNode(record)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.outputs[record.NodeID] = output
	r.completed++
	r.record.SetProgress(r.completed)
	r.record.UpdatedAt = r.c.now().UTC()
	r.saveRecord()

	progress := r.record.Progress

	r.emit(events.ComponentCompletedEvent, func(e *events.Event) {
		e.NodeID = record.NodeID
		e.Status = string(models.NodeStatusCompleted)
		e.Output = output
	})
	r.emit(events.ExecutionProgressEvent, func(e *events.Event) {
		e.Status = string(models.ExecutionStatusRunning)
		e.Progress = events.IntPtr(progress)
	})
}

func (r *run) complete() error {
	for _, id := range r.order {
		if r.records[id].Status != models.NodeStatusCompleted {
			return r.fail(errors.New("one or more components failed"))
		}
	}

	final := make(map[string]any)

	for _, id := range r.order {
		if r.nodes[id].IsOutputSink() {
			final[id] = r.outputs[id]
		}
	}

	r.record.FinalOutput = final
	r.record.SetProgress(len(r.order))
	r.record.Metrics = r.metrics()

	err := r.record.Transition(models.ExecutionStatusCompleted, r.c.now().UTC())
	if err != nil {
		return err
	}

	err = r.c.store.UpdateExecution(r.bg, r.record)
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", r.record.ID, err)
	}

	r.log(models.LogLevelInfo, "Flow execution completed successfully", "", r.record.Metrics)
	r.emit(events.ExecutionCompletedEvent, func(e *events.Event) {
		e.Status = string(models.ExecutionStatusCompleted)
		e.Progress = events.IntPtr(r.record.Progress)
		e.Output = final
	})

	return nil
}

// fail records cause on the execution and skips every node that never started.
func (r *run) fail(cause error) error {
	r.skipPending()

	r.record.ErrorMessage = cause.Error()
	r.record.ErrorDetails = errorDetails(cause)
	r.record.Metrics = r.metrics()

	err := r.record.Transition(models.ExecutionStatusFailed, r.c.now().UTC())
	if err != nil {
		return err
	}

	err = r.c.store.UpdateExecution(r.bg, r.record)
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", r.record.ID, err)
	}

	r.log(models.LogLevelError, "Flow execution failed: "+cause.Error(), "", r.record.ErrorDetails)
	r.emit(events.ExecutionFailedEvent, func(e *events.Event) {
		e.Status = string(models.ExecutionStatusFailed)
		e.Progress = events.IntPtr(r.record.Progress)
		e.Error = r.record.ErrorMessage
	})

	return nil
}

func (r *run) cancel(message string) error {
	r.skipPending()

	r.record.ErrorMessage = message
	r.record.Metrics = r.metrics()

	err := r.record.Transition(models.ExecutionStatusCancelled, r.c.now().UTC())
	if err != nil {
		return err
	}

	err = r.c.store.UpdateExecution(r.bg, r.record)
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", r.record.ID, err)
	}

	r.log(models.LogLevelWarning, message, "", nil)
	r.emit(events.ExecutionCancelledEvent, func(e *events.Event) {
		e.Status = string(models.ExecutionStatusCancelled)
		e.Progress = events.IntPtr(r.record.Progress)
	})

	return nil
}

func (r *run) skipPending() {
	for _, id := range r.order {
		record := r.records[id]
		if record.Status != models.NodeStatusPending {
			continue
		}

		_ = record.Transition(models.NodeStatusSkipped, r.c.now().UTC())
		r.saveNode(record)
	}
}

func (r *run) metrics() map[string]any {
	return map[string]any{
		"duration_ms":         r.c.now().Sub(r.started).Milliseconds(),
		"components_executed": r.completed,
		"mode":                r.c.Mode(),
	}
}

func (r *run) isCancelled(ctx context.Context) bool {
	return r.cancelled.Load() || ctx.Err() != nil
}

func (r *run) saveRecord() {
	err := r.c.store.UpdateExecution(r.bg, r.record)
	if err != nil {
		r.logger.ErrorContext(r.bg, "Failed to save execution", "error", err)
	}
}

func (r *run) saveNode(record *models.NodeExecutionRecord) {
	err := r.c.store.UpdateNodeExecution(r.bg, record)
	if err != nil {
		r.logger.ErrorContext(r.bg, "Failed to save node execution", "node_id", record.NodeID, "error", err)
	}
}

func (r *run) log(level models.LogLevel, message string, nodeExecutionID string, details map[string]any) {
	entry := &models.LogEntry{
		ID:              newID(),
		ExecutionID:     r.record.ID,
		NodeExecutionID: nodeExecutionID,
		Level:           level,
		Message:         message,
		Details:         details,
		Source:          logSource,
		Timestamp:       r.c.now().UTC(),
	}

	err := r.c.store.AppendLog(r.bg, entry)
	if err != nil {
		r.logger.ErrorContext(r.bg, "Failed to append execution log", "error", err)
	}
}

// emit sends events in sequence order. Sink failures never fail the run.
func (r *run) emit(eventType events.EventType, fill func(*events.Event)) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.sequence++

	event := events.Event{
		BaseEvent:   events.NewBaseEvent(eventType, r.c.now()),
		ExecutionID: r.record.ID,
		UserID:      r.record.UserID,
		FlowID:      r.record.FlowID,
		Sequence:    r.sequence,
	}

	if fill != nil {
		fill(&event)
	}

	err := r.c.sink.Notify(r.bg, event)
	if err != nil {
		r.logger.WarnContext(r.bg, "Failed to deliver execution event", "type", eventType, "error", err)
	}
}

func errorDetails(err error) map[string]any {
	var (
		componentErr *ComponentError
		cycleErr     *graph.CycleError
	)

	switch {
	case errors.As(err, &componentErr):
		details := map[string]any{
			"error_type":     "component_error",
			"node_id":        componentErr.NodeID,
			"component_type": componentErr.ComponentType,
		}
		maps.Copy(details, componentErr.Details)

		return details
	case errors.As(err, &cycleErr):
		return map[string]any{
			"error_type": "cycle_detected",
			"node_id":    cycleErr.NodeID,
			"cycle":      cycleErr.Path,
		}
	case errors.Is(err, graph.ErrUnresolvableGraph):
		return map[string]any{"error_type": "unresolvable_graph"}
	case errors.Is(err, graph.ErrDuplicateNode):
		return map[string]any{"error_type": "duplicate_node"}
	default:
		return map[string]any{"error_type": "execution_error"}
	}
}
