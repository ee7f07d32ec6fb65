// Package gateway exposes published flow versions as services. Each published
// version is served by its own worker process; the gateway starts workers on
// demand and forwards execute requests to them.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dukex/flowstudio/pkg/eventbus"
	"github.com/dukex/flowstudio/pkg/events"
	"github.com/dukex/flowstudio/pkg/graph"
	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/otelhelper"
	"github.com/dukex/flowstudio/pkg/persistence"
	"github.com/dukex/flowstudio/pkg/workerpool"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3/client"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultForwardTimeout = 60 * time.Second
	DefaultMaxInstances   = 3

	// StatusNotRunning is reported for a published version without a live worker.
	StatusNotRunning = "not_running"
)

// Pool is the part of the worker pool the gateway drives.
type Pool interface {
	GetOrCreate(ctx context.Context, spec workerpool.Spec) (*workerpool.Process, error)
	Stop(ctx context.Context, key string) error
	Process(key string) (*workerpool.Process, bool)
	Shutdown(ctx context.Context)
}

type PublishOptions struct {
	IsPublic     bool `json:"is_public"`
	RateLimit    *int `json:"rate_limit,omitempty"`
	MaxInstances int  `json:"max_instances,omitempty"`
}

// Status describes the worker behind a published flow version.
type Status struct {
	FlowID          string     `json:"flow_id"`
	Version         string     `json:"version"`
	Status          string     `json:"status"`
	Port            int        `json:"port,omitempty"`
	PID             int        `json:"process_id,omitempty"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	LastRequestTime *time.Time `json:"last_request_time,omitempty"`
	RequestCount    int64      `json:"request_count,omitempty"`
}

type Gateway struct {
	flows        persistence.FlowRepository
	publications persistence.PublicationRepository
	pool         Pool
	publisher    eventbus.EventPublisher
	client       *client.Client
	host         string
	timeout      time.Duration
	tracer       trace.Tracer
	logger       *slog.Logger
	now          func() time.Time

	mu        sync.RWMutex
	published map[string]*models.Publication
}

type Option func(*Gateway)

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(g *Gateway) {
		g.publisher = publisher
	}
}

func WithClient(c *client.Client) Option {
	return func(g *Gateway) {
		g.client = c
	}
}

// WithHost sets the host workers listen on, 127.0.0.1 by default.
func WithHost(host string) Option {
	return func(g *Gateway) {
		g.host = host
	}
}

func WithForwardTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		g.timeout = timeout
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = tracer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func New(flows persistence.FlowRepository, publications persistence.PublicationRepository, pool Pool, opts ...Option) *Gateway {
	g := &Gateway{
		flows:        flows,
		publications: publications,
		pool:         pool,
		host:         "127.0.0.1",
		timeout:      DefaultForwardTimeout,
		tracer:       otelhelper.NoopTracer(),
		logger:       slog.Default(),
		now:          time.Now,
		published:    make(map[string]*models.Publication),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.client == nil {
		g.client = client.New()
	}

	g.logger = g.logger.With("module", "gateway")

	return g
}

// Load restores the published flows from the store.
func (g *Gateway) Load(ctx context.Context) error {
	publications, err := g.publications.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load published flows: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, publication := range publications {
		g.published[publication.Endpoint] = publication
	}

	g.logger.InfoContext(ctx, "Loaded published flows", "count", len(publications))

	return nil
}

// Publish validates a flow and exposes a snapshot of it under version.
// Republishing a version replaces its snapshot and restarts its worker.
func (g *Gateway) Publish(ctx context.Context, flowID, version string, opts PublishOptions) (*models.Publication, error) {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	if version == "" {
		return nil, ErrEmptyVersion
	}

	flow, err := g.flows.GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	snapshot, err := flow.Snapshot()
	if err != nil {
		return nil, err
	}

	snapshot.Version = version

	_, _, err = graph.Plan(snapshot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFlow, err)
	}

	if opts.MaxInstances <= 0 {
		opts.MaxInstances = DefaultMaxInstances
	}

	publication := &models.Publication{
		FlowID:       flowID,
		Version:      version,
		Name:         flow.Name,
		Endpoint:     models.PublicationEndpoint(flowID, version),
		IsPublic:     opts.IsPublic,
		RateLimit:    opts.RateLimit,
		MaxInstances: opts.MaxInstances,
		Flow:         snapshot,
		PublishedAt:  g.now().UTC(),
	}

	err = g.publications.Save(ctx, publication)
	if err != nil {
		return nil, fmt.Errorf("failed to save publication of flow %s: %w", flowID, err)
	}

	g.mu.Lock()
	_, republished := g.published[publication.Endpoint]
	g.published[publication.Endpoint] = publication
	g.mu.Unlock()

	if republished {
		err = g.pool.Stop(ctx, workerpool.Key(flowID, version))
		if err != nil {
			g.logger.WarnContext(ctx, "Failed to stop outdated worker", "flow_id", flowID, "version", version, "error", err)
		}
	}

	g.emit(ctx, publication.Endpoint, events.FlowPublished{
		BaseEvent: events.NewBaseEvent(events.FlowPublishedEvent, g.now()),
		FlowID:    flowID,
		Version:   version,
		Endpoint:  publication.Endpoint,
	})

	g.logger.InfoContext(ctx, "Published flow as API", "flow", flow.Name, "endpoint", publication.Endpoint)

	return publication, nil
}

// Unpublish stops the worker of a published version and forgets it.
func (g *Gateway) Unpublish(ctx context.Context, flowID, version string) error {
	endpoint := models.PublicationEndpoint(flowID, version)

	if _, ok := g.lookup(endpoint); !ok {
		return fmt.Errorf("%w: %s v%s", ErrNotPublished, flowID, version)
	}

	err := g.pool.Stop(ctx, workerpool.Key(flowID, version))
	if err != nil {
		g.logger.WarnContext(ctx, "Failed to stop worker", "flow_id", flowID, "version", version, "error", err)
	}

	err = g.publications.Delete(ctx, flowID, version)
	if err != nil && !errors.Is(err, persistence.ErrPublicationNotFound) {
		return fmt.Errorf("failed to delete publication of flow %s: %w", flowID, err)
	}

	g.mu.Lock()
	delete(g.published, endpoint)
	g.mu.Unlock()

	g.emit(ctx, endpoint, events.FlowUnpublished{
		BaseEvent: events.NewBaseEvent(events.FlowUnpublishedEvent, g.now()),
		FlowID:    flowID,
		Version:   version,
	})

	g.logger.InfoContext(ctx, "Unpublished flow API", "endpoint", endpoint)

	return nil
}

// Execute runs input through the worker of a published version and returns
// the worker's response body.
func (g *Gateway) Execute(ctx context.Context, flowID, version string, input map[string]any) (map[string]any, error) {
	publication, ok := g.lookup(models.PublicationEndpoint(flowID, version))
	if !ok {
		return nil, fmt.Errorf("%w: %s v%s", ErrNotPublished, flowID, version)
	}

	ctx, span := otelhelper.StartSpan(ctx, g.tracer, "gateway.execute",
		attribute.String(otelhelper.FlowIDKey, flowID),
		attribute.String(otelhelper.FlowVersionKey, version),
		attribute.String(otelhelper.FlowNameKey, publication.Name),
	)
	defer span.End()

	process, err := g.pool.GetOrCreate(ctx, workerpool.Spec{
		FlowID:  flowID,
		Version: version,
		Name:    publication.Name,
		Flow:    publication.Flow,
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(
		attribute.String(otelhelper.WorkerKeyKey, process.Key),
		attribute.Int(otelhelper.WorkerPortKey, process.Port),
	)

	result, err := g.forward(ctx, publication, process.Port, input)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return result, nil
}

func (g *Gateway) forward(ctx context.Context, publication *models.Publication, port int, input map[string]any) (map[string]any, error) {
	if input == nil {
		input = map[string]any{}
	}

	req := g.client.R().
		SetContext(ctx).
		SetMethod(http.MethodPost).
		SetURL(fmt.Sprintf("http://%s:%d/execute", g.host, port)).
		SetTimeout(g.timeout).
		SetJSON(input)

	resp, err := req.Send()
	if err != nil {
		client.ReleaseRequest(req)
		g.logger.ErrorContext(ctx, "Failed to communicate with worker", "endpoint", publication.Endpoint, "port", port, "error", err)

		return nil, fmt.Errorf("%w: flow %s v%s: %w", workerpool.ErrServiceUnavailable, publication.FlowID, publication.Version, err)
	}
	defer resp.Close()

	var result map[string]any

	decodeErr := json.Unmarshal(resp.Body(), &result)

	if resp.StatusCode() != http.StatusOK {
		message := "Flow execution failed"
		if text, ok := result["error"].(string); decodeErr == nil && ok && text != "" {
			message = text
		}

		return nil, &ForwardError{
			FlowID:  publication.FlowID,
			Version: publication.Version,
			Status:  resp.StatusCode(),
			Message: message,
		}
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResult, decodeErr)
	}

	return result, nil
}

// List returns the published flows ordered by flow id and version.
func (g *Gateway) List() []*models.Publication {
	g.mu.RLock()
	defer g.mu.RUnlock()

	publications := make([]*models.Publication, 0, len(g.published))
	for _, publication := range g.published {
		publications = append(publications, publication)
	}

	slices.SortFunc(publications, func(a, b *models.Publication) int {
		if c := strings.Compare(a.FlowID, b.FlowID); c != 0 {
			return c
		}

		return strings.Compare(a.Version, b.Version)
	})

	return publications
}

// Published returns the publication of a flow version.
func (g *Gateway) Published(flowID, version string) (*models.Publication, bool) {
	return g.lookup(models.PublicationEndpoint(flowID, version))
}

func (g *Gateway) Status(flowID, version string) Status {
	status := Status{FlowID: flowID, Version: version, Status: StatusNotRunning}

	process, ok := g.pool.Process(workerpool.Key(flowID, version))
	if !ok {
		return status
	}

	info := process.Info()
	status.Status = string(info.Status)
	status.Port = info.Port
	status.PID = info.PID
	status.StartTime = &info.StartTime
	status.LastRequestTime = &info.LastRequestTime
	status.RequestCount = info.RequestCount

	return status
}

// Shutdown stops every worker process.
func (g *Gateway) Shutdown(ctx context.Context) {
	g.logger.InfoContext(ctx, "Stopping all flow workers")
	g.pool.Shutdown(ctx)
}

func (g *Gateway) lookup(endpoint string) (*models.Publication, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	publication, ok := g.published[endpoint]

	return publication, ok
}

func (g *Gateway) emit(ctx context.Context, key string, event eventbus.Event) {
	if g.publisher == nil {
		return
	}

	err := g.publisher.Publish(ctx, key, event)
	if err != nil {
		g.logger.WarnContext(ctx, "Failed to publish event", "type", event.GetType(), "error", err)
	}
}
