package mocks

import (
	"context"

	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockFlowRepository is a mock implementation of persistence.FlowRepository interface.
type MockFlowRepository struct {
	mock.Mock
}

func (m *MockFlowRepository) GetAll(ctx context.Context) ([]*models.Flow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Flow), args.Error(1)
}

func (m *MockFlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Flow), args.Error(1)
}

func (m *MockFlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	args := m.Called(ctx, flow)

	return args.Error(0)
}

func (m *MockFlowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) CreateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockExecutionRepository) UpdateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionRecord), args.Error(1)
}

func (m *MockExecutionRepository) ListExecutions(ctx context.Context, flowID string) ([]*models.ExecutionRecord, error) {
	args := m.Called(ctx, flowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionRecord), args.Error(1)
}

func (m *MockExecutionRepository) CreateNodeExecutions(ctx context.Context, records []*models.NodeExecutionRecord) error {
	args := m.Called(ctx, records)

	return args.Error(0)
}

func (m *MockExecutionRepository) UpdateNodeExecution(ctx context.Context, record *models.NodeExecutionRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockExecutionRepository) NodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecutionRecord, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.NodeExecutionRecord), args.Error(1)
}

func (m *MockExecutionRepository) AppendLog(ctx context.Context, entry *models.LogEntry) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockExecutionRepository) Logs(ctx context.Context, executionID string) ([]*models.LogEntry, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.LogEntry), args.Error(1)
}

// MockPublicationRepository is a mock implementation of persistence.PublicationRepository interface.
type MockPublicationRepository struct {
	mock.Mock
}

func (m *MockPublicationRepository) GetAll(ctx context.Context) ([]*models.Publication, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Publication), args.Error(1)
}

func (m *MockPublicationRepository) Save(ctx context.Context, publication *models.Publication) error {
	args := m.Called(ctx, publication)

	return args.Error(0)
}

func (m *MockPublicationRepository) Delete(ctx context.Context, flowID, version string) error {
	args := m.Called(ctx, flowID, version)

	return args.Error(0)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	flows        *MockFlowRepository
	executions   *MockExecutionRepository
	publications *MockPublicationRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		flows:        &MockFlowRepository{},
		executions:   &MockExecutionRepository{},
		publications: &MockPublicationRepository{},
	}
}

func (m *MockPersistence) GetMockFlowRepository() *MockFlowRepository {
	return m.flows
}

func (m *MockPersistence) GetMockExecutionRepository() *MockExecutionRepository {
	return m.executions
}

func (m *MockPersistence) GetMockPublicationRepository() *MockPublicationRepository {
	return m.publications
}

func (m *MockPersistence) FlowRepository() persistence.FlowRepository {
	return m.flows
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.executions
}

func (m *MockPersistence) PublicationRepository() persistence.PublicationRepository {
	return m.publications
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
