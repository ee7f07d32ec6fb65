package services

import (
	"context"
	"strings"

	"github.com/dukex/flowstudio/pkg/gateway"
	"github.com/dukex/flowstudio/pkg/models"
)

// Publishing exposes flow versions as services through the gateway.
type Publishing struct {
	gateway *gateway.Gateway
}

func NewPublishing(gateway *gateway.Gateway) *Publishing {
	return &Publishing{
		gateway: gateway,
	}
}

func (p *Publishing) Publish(ctx context.Context, flowID, version string, opts gateway.PublishOptions) (*models.Publication, error) {
	version, err := normalizeVersion("Publish", version)
	if err != nil {
		return nil, err
	}

	if opts.MaxInstances < 0 {
		return nil, NewValidationError("Publish", "INVALID_MAX_INSTANCES", "max_instances cannot be negative", ErrInvalidRequest)
	}

	return p.gateway.Publish(ctx, flowID, version, opts)
}

func (p *Publishing) Unpublish(ctx context.Context, flowID, version string) error {
	version, err := normalizeVersion("Unpublish", version)
	if err != nil {
		return err
	}

	return p.gateway.Unpublish(ctx, flowID, version)
}

func (p *Publishing) List() []*models.Publication {
	return p.gateway.List()
}

func (p *Publishing) Status(flowID, version string) (gateway.Status, error) {
	version, err := normalizeVersion("Status", version)
	if err != nil {
		return gateway.Status{}, err
	}

	if _, ok := p.gateway.Published(flowID, version); !ok {
		return gateway.Status{}, gateway.ErrNotPublished
	}

	return p.gateway.Status(flowID, version), nil
}

// Execute runs input through the worker serving a published version.
func (p *Publishing) Execute(ctx context.Context, flowID, version string, input map[string]any) (map[string]any, error) {
	version, err := normalizeVersion("Execute", version)
	if err != nil {
		return nil, err
	}

	return p.gateway.Execute(ctx, flowID, version, input)
}

// normalizeVersion accepts "3" and "v3" alike.
func normalizeVersion(op, version string) (string, error) {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	if version == "" || strings.ContainsAny(version, "/: ") {
		return "", NewValidationError(op, "INVALID_VERSION", "invalid flow version", ErrInvalidFlowVersion)
	}

	return version, nil
}
