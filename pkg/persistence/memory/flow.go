package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/persistence"
)

type FlowRepository struct {
	mu    sync.RWMutex
	flows map[string]*models.Flow
}

func NewFlowRepository() *FlowRepository {
	return &FlowRepository{flows: make(map[string]*models.Flow)}
}

func (r *FlowRepository) GetAll(_ context.Context) ([]*models.Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flows := make([]*models.Flow, 0, len(r.flows))
	for _, flow := range r.flows {
		flows = append(flows, flow)
	}

	slices.SortFunc(flows, func(a, b *models.Flow) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return cloneAll(flows)
}

func (r *FlowRepository) GetByID(_ context.Context, id string) (*models.Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, ok := r.flows[id]
	if !ok {
		return nil, persistence.NewFlowError("GetByID", id, persistence.ErrFlowNotFound)
	}

	return clone(flow)
}

func (r *FlowRepository) Save(_ context.Context, flow *models.Flow) error {
	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	stored, err := clone(flow)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.flows[flow.ID] = stored

	return nil
}

func (r *FlowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.flows[id]; !ok {
		return persistence.NewFlowError("Delete", id, persistence.ErrFlowNotFound)
	}

	delete(r.flows, id)

	return nil
}
