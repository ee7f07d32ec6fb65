// Package memory provides an in-process persistence implementation. Records
// are copied on the way in and out so callers never share state with the store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukex/flowstudio/pkg/persistence"
)

type Persistence struct {
	flows        *FlowRepository
	executions   *ExecutionRepository
	publications *PublicationRepository
}

func NewPersistence() *Persistence {
	return &Persistence{
		flows:        NewFlowRepository(),
		executions:   NewExecutionRepository(),
		publications: NewPublicationRepository(),
	}
}

func (p *Persistence) FlowRepository() persistence.FlowRepository {
	return p.flows
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executions
}

func (p *Persistence) PublicationRepository() persistence.PublicationRepository {
	return p.publications
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func clone[T any](value *T) (*T, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to copy %T: %w", value, err)
	}

	var copied T

	err = json.Unmarshal(payload, &copied)
	if err != nil {
		return nil, fmt.Errorf("failed to copy %T: %w", value, err)
	}

	return &copied, nil
}

func cloneAll[T any](values []*T) ([]*T, error) {
	copies := make([]*T, 0, len(values))

	for _, value := range values {
		copied, err := clone(value)
		if err != nil {
			return nil, err
		}

		copies = append(copies, copied)
	}

	return copies, nil
}
