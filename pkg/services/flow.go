package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dukex/flowstudio/pkg/graph"
	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/persistence"
	"github.com/google/uuid"
)

type Flow struct {
	persistence persistence.Persistence
}

// NewFlow creates a new flow service.
func NewFlow(persistence persistence.Persistence) *Flow {
	return &Flow{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (f *Flow) HealthCheck(ctx context.Context) (string, bool) {
	if f.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := f.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns the flows, restricted to one owner when ownerID is set.
func (f *Flow) List(ctx context.Context, ownerID string) ([]*models.Flow, error) {
	flows, err := f.persistence.FlowRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return flows, nil
	}

	return slices.DeleteFunc(flows, func(flow *models.Flow) bool {
		return flow.OwnerID != ownerID
	}), nil
}

// FetchByID retrieves a flow by its ID.
func (f *Flow) FetchByID(ctx context.Context, id string) (*models.Flow, error) {
	return f.persistence.FlowRepository().GetByID(ctx, id)
}

// Create stores a new flow under a fresh id.
func (f *Flow) Create(ctx context.Context, flow *models.Flow) (*models.Flow, error) {
	err := validateFlow("Create", flow)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	flow.ID = uuid.New().String()
	flow.CreatedAt = now
	flow.UpdatedAt = now

	if flow.Version == "" {
		flow.Version = "1"
	}

	err = f.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow: %w", err)
	}

	return flow, nil
}

// Update replaces an existing flow, keeping its id, owner and creation time.
func (f *Flow) Update(ctx context.Context, flowID string, flow *models.Flow) (*models.Flow, error) {
	err := validateFlow("Update", flow)
	if err != nil {
		return nil, err
	}

	existing, err := f.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	flow.ID = flowID
	flow.CreatedAt = existing.CreatedAt
	flow.UpdatedAt = time.Now().UTC()

	if flow.OwnerID == "" {
		flow.OwnerID = existing.OwnerID
	}

	if flow.Version == "" {
		flow.Version = existing.Version
	}

	err = f.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to update flow: %w", err)
	}

	return flow, nil
}

// Delete removes a flow by its ID.
func (f *Flow) Delete(ctx context.Context, flowID string) error {
	_, err := f.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return err
	}

	err = f.persistence.FlowRepository().Delete(ctx, flowID)
	if err != nil {
		return fmt.Errorf("failed to delete flow: %w", err)
	}

	return nil
}

// validateFlow rejects flows whose graph cannot be built. Cycles are allowed
// in a saved flow and reported when it runs.
func validateFlow(op string, flow *models.Flow) error {
	if flow == nil {
		return ErrFlowNil
	}

	if strings.TrimSpace(flow.Name) == "" {
		return NewValidationError(op, "FLOW_NAME_REQUIRED", "flow name is required", ErrFlowNameRequired)
	}

	_, err := graph.Build(flow.Nodes, flow.Edges)
	if err != nil {
		return graphError(op, err)
	}

	for _, edge := range flow.Edges {
		if !slices.ContainsFunc(flow.Nodes, func(node *models.Node) bool { return node.ID == edge.SourceNodeID }) ||
			!slices.ContainsFunc(flow.Nodes, func(node *models.Node) bool { return node.ID == edge.TargetNodeID }) {
			return NewValidationError(op, "UNKNOWN_EDGE_NODE",
				fmt.Sprintf("edge %s -> %s references an unknown node", edge.SourceNodeID, edge.TargetNodeID),
				ErrInvalidFlowGraph)
		}
	}

	return nil
}
