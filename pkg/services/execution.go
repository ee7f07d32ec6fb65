package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/flowstudio/pkg/execution"
	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/persistence"
)

// StartRequest describes a run requested through the API.
type StartRequest struct {
	UserID string
	Input  map[string]any
	Config map[string]any
	// Wait runs the flow before returning instead of in the background.
	Wait bool
}

type Execution struct {
	persistence persistence.Persistence
	coordinator *execution.Coordinator
	logger      *slog.Logger

	background sync.WaitGroup
}

func NewExecution(persistence persistence.Persistence, coordinator *execution.Coordinator, logger *slog.Logger) *Execution {
	return &Execution{
		persistence: persistence,
		coordinator: coordinator,
		logger:      logger.With("module", "execution_service"),
	}
}

// Start submits a run of a stored flow. Without Wait the returned record is
// the pending run and execution continues in the background.
func (e *Execution) Start(ctx context.Context, flowID string, req StartRequest) (*models.ExecutionRecord, error) {
	flow, err := e.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	record, err := e.coordinator.Submit(ctx, flow, execution.Request{
		UserID: req.UserID,
		Input:  req.Input,
		Config: req.Config,
	})
	if err != nil {
		return nil, err
	}

	if req.Wait {
		return e.coordinator.Run(ctx, record)
	}

	pending := *record

	e.background.Add(1)

	go func() {
		defer e.background.Done()

		_, err := e.coordinator.Run(context.WithoutCancel(ctx), record)
		if err != nil {
			e.logger.Error("Background execution failed", "execution_id", record.ID, "flow_id", flowID, "error", err)
		}
	}()

	return &pending, nil
}

// Wait blocks until every background run has finished.
func (e *Execution) Wait() {
	e.background.Wait()
}

func (e *Execution) FetchByID(ctx context.Context, executionID string) (*models.ExecutionRecord, error) {
	return e.repository().GetExecution(ctx, executionID)
}

// Components returns the node records of a run in execution order.
func (e *Execution) Components(ctx context.Context, executionID string) ([]*models.NodeExecutionRecord, error) {
	_, err := e.repository().GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	return e.repository().NodeExecutions(ctx, executionID)
}

func (e *Execution) Logs(ctx context.Context, executionID string) ([]*models.LogEntry, error) {
	_, err := e.repository().GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	return e.repository().Logs(ctx, executionID)
}

// ListByFlow returns the runs of a flow, newest first.
func (e *Execution) ListByFlow(ctx context.Context, flowID string) ([]*models.ExecutionRecord, error) {
	_, err := e.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	records, err := e.repository().ListExecutions(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions of flow %s: %w", flowID, err)
	}

	return records, nil
}

// Cancel requests cancellation and returns the record as currently stored.
// A run in flight stops at its next node boundary.
func (e *Execution) Cancel(ctx context.Context, executionID string) (*models.ExecutionRecord, error) {
	err := e.coordinator.Cancel(ctx, executionID)
	if err != nil {
		return nil, err
	}

	return e.repository().GetExecution(ctx, executionID)
}

func (e *Execution) repository() persistence.ExecutionRepository {
	return e.persistence.ExecutionRepository()
}
