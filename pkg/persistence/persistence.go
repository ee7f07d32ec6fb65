// Package persistence defines the storage collaborators of flowstudio: flows,
// execution records with their node records and logs, and publications.
package persistence

import (
	"context"

	"github.com/dukex/flowstudio/pkg/models"
)

type Persistence interface {
	FlowRepository() FlowRepository
	ExecutionRepository() ExecutionRepository
	PublicationRepository() PublicationRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// FlowRepository stores flow definitions.
type FlowRepository interface {
	GetAll(ctx context.Context) ([]*models.Flow, error)
	// GetByID fails with ErrFlowNotFound.
	GetByID(ctx context.Context, id string) (*models.Flow, error)
	Save(ctx context.Context, flow *models.Flow) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository is what the execution coordinator writes to while a run
// progresses. Log entries are append-only.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, record *models.ExecutionRecord) error
	UpdateExecution(ctx context.Context, record *models.ExecutionRecord) error
	// GetExecution fails with ErrExecutionNotFound.
	GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error)
	// ListExecutions returns the runs of a flow, newest first.
	ListExecutions(ctx context.Context, flowID string) ([]*models.ExecutionRecord, error)

	CreateNodeExecutions(ctx context.Context, records []*models.NodeExecutionRecord) error
	UpdateNodeExecution(ctx context.Context, record *models.NodeExecutionRecord) error
	// NodeExecutions returns the node records of a run sorted by execution order.
	NodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecutionRecord, error)

	AppendLog(ctx context.Context, entry *models.LogEntry) error
	// Logs returns the log of a run in append order.
	Logs(ctx context.Context, executionID string) ([]*models.LogEntry, error)
}

// PublicationRepository stores the flows exposed as services, keyed by flow id and version.
type PublicationRepository interface {
	GetAll(ctx context.Context) ([]*models.Publication, error)
	Save(ctx context.Context, publication *models.Publication) error
	// Delete fails with ErrPublicationNotFound.
	Delete(ctx context.Context, flowID, version string) error
}
