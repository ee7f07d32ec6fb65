package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/persistence"
)

type ExecutionRepository struct {
	mu         sync.RWMutex
	executions map[string]*models.ExecutionRecord
	order      []string
	nodes      map[string][]*models.NodeExecutionRecord
	logs       map[string][]*models.LogEntry

	// retain bounds the finished runs kept, oldest evicted first. Zero keeps all.
	retain   int
	finished []string
}

type ExecutionOption func(*ExecutionRepository)

// WithRetention keeps at most limit finished executions together with their
// node records and logs. Running executions are never evicted.
func WithRetention(limit int) ExecutionOption {
	return func(r *ExecutionRepository) {
		r.retain = max(limit, 0)
	}
}

func NewExecutionRepository(opts ...ExecutionOption) *ExecutionRepository {
	r := &ExecutionRepository{
		executions: make(map[string]*models.ExecutionRecord),
		nodes:      make(map[string][]*models.NodeExecutionRecord),
		logs:       make(map[string][]*models.LogEntry),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *ExecutionRepository) CreateExecution(_ context.Context, record *models.ExecutionRecord) error {
	stored, err := clone(record)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.executions[record.ID]; ok {
		return persistence.NewExecutionError("CreateExecution", record.ID, persistence.ErrAlreadyExists)
	}

	r.executions[record.ID] = stored
	r.order = append(r.order, record.ID)

	return nil
}

func (r *ExecutionRepository) UpdateExecution(_ context.Context, record *models.ExecutionRecord) error {
	stored, err := clone(record)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	previous, ok := r.executions[record.ID]
	if !ok {
		return persistence.NewExecutionError("UpdateExecution", record.ID, persistence.ErrExecutionNotFound)
	}

	r.executions[record.ID] = stored

	if r.retain > 0 && stored.Status.IsTerminal() && !previous.Status.IsTerminal() {
		r.finished = append(r.finished, record.ID)
		r.evict()
	}

	return nil
}

// evict drops the oldest finished executions beyond the retention limit.
// Callers hold r.mu.
func (r *ExecutionRepository) evict() {
	for len(r.finished) > r.retain {
		id := r.finished[0]
		r.finished = r.finished[1:]

		delete(r.executions, id)
		delete(r.nodes, id)
		delete(r.logs, id)

		r.order = slices.DeleteFunc(r.order, func(candidate string) bool {
			return candidate == id
		})
	}
}

func (r *ExecutionRepository) GetExecution(_ context.Context, id string) (*models.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.executions[id]
	if !ok {
		return nil, persistence.NewExecutionError("GetExecution", id, persistence.ErrExecutionNotFound)
	}

	return clone(record)
}

func (r *ExecutionRepository) ListExecutions(_ context.Context, flowID string) ([]*models.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*models.ExecutionRecord, 0)

	for _, id := range slices.Backward(r.order) {
		if record := r.executions[id]; record.FlowID == flowID {
			records = append(records, record)
		}
	}

	return cloneAll(records)
}

func (r *ExecutionRepository) CreateNodeExecutions(_ context.Context, records []*models.NodeExecutionRecord) error {
	stored, err := cloneAll(records)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range stored {
		r.nodes[record.ExecutionID] = append(r.nodes[record.ExecutionID], record)
	}

	for executionID := range r.nodes {
		slices.SortStableFunc(r.nodes[executionID], func(a, b *models.NodeExecutionRecord) int {
			return a.ExecutionOrder - b.ExecutionOrder
		})
	}

	return nil
}

func (r *ExecutionRepository) UpdateNodeExecution(_ context.Context, record *models.NodeExecutionRecord) error {
	stored, err := clone(record)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.nodes[record.ExecutionID] {
		if existing.ID == record.ID {
			r.nodes[record.ExecutionID][i] = stored

			return nil
		}
	}

	return persistence.NewExecutionError("UpdateNodeExecution", record.ExecutionID, persistence.ErrNodeExecutionNotFound)
}

func (r *ExecutionRepository) NodeExecutions(_ context.Context, executionID string) ([]*models.NodeExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return cloneAll(r.nodes[executionID])
}

func (r *ExecutionRepository) AppendLog(_ context.Context, entry *models.LogEntry) error {
	stored, err := clone(entry)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A log line written after its run was evicted would otherwise linger forever.
	if _, ok := r.executions[entry.ExecutionID]; !ok && r.retain > 0 {
		return nil
	}

	r.logs[entry.ExecutionID] = append(r.logs[entry.ExecutionID], stored)

	return nil
}

func (r *ExecutionRepository) Logs(_ context.Context, executionID string) ([]*models.LogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return cloneAll(r.logs[executionID])
}
