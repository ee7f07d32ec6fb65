package gateway_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dukex/flowstudio/pkg/eventbus"
	"github.com/dukex/flowstudio/pkg/events"
	"github.com/dukex/flowstudio/pkg/gateway"
	"github.com/dukex/flowstudio/pkg/graph"
	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/persistence"
	"github.com/dukex/flowstudio/pkg/persistence/memory"
	"github.com/dukex/flowstudio/pkg/workerpool"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	mu        sync.Mutex
	port      int
	err       error
	specs     []workerpool.Spec
	stopped   []string
	processes map[string]*workerpool.Process
	shutdown  bool
}

func newFakePool(port int) *fakePool {
	return &fakePool{port: port, processes: make(map[string]*workerpool.Process)}
}

func (p *fakePool) GetOrCreate(_ context.Context, spec workerpool.Spec) (*workerpool.Process, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.specs = append(p.specs, spec)
	if p.err != nil {
		return nil, p.err
	}

	process := &workerpool.Process{Key: spec.Key(), FlowID: spec.FlowID, Version: spec.Version, Port: p.port, PID: 4242}
	p.processes[spec.Key()] = process

	return process, nil
}

func (p *fakePool) Stop(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped = append(p.stopped, key)
	delete(p.processes, key)

	return nil
}

func (p *fakePool) Process(key string) (*workerpool.Process, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	process, ok := p.processes[key]

	return process, ok
}

func (p *fakePool) Shutdown(context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.shutdown = true
}

type capturePublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (c *capturePublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, event)

	return nil
}

func (c *capturePublisher) Types() []events.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()

	types := make([]events.EventType, 0, len(c.events))
	for _, event := range c.events {
		types = append(types, event.GetType())
	}

	return types
}

type fixture struct {
	gateway      *gateway.Gateway
	pool         *fakePool
	publisher    *capturePublisher
	publications persistence.PublicationRepository
	received     chan map[string]any
}

func workerPort(t *testing.T, server *httptest.Server) int {
	t.Helper()

	_, rawPort, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)

	port, err := strconv.Atoi(rawPort)
	require.NoError(t, err)

	return port
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()

	received := make(chan map[string]any, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		received <- body

		handler(w, r)
	}))
	t.Cleanup(server.Close)

	flows := memory.NewFlowRepository()
	require.NoError(t, flows.Save(context.Background(), &models.Flow{
		ID:   "flow-1",
		Name: "Greeter",
		Nodes: []*models.Node{
			{ID: "in", ComponentType: "text_input", Config: map[string]any{"text": "hi"}},
			{ID: "out", ComponentType: "text_output"},
		},
		Edges: []*models.Edge{{SourceNodeID: "in", SourceHandle: "output", TargetNodeID: "out", TargetHandle: "text"}},
	}))
	require.NoError(t, flows.Save(context.Background(), &models.Flow{
		ID:   "flow-cycle",
		Name: "Loop",
		Nodes: []*models.Node{
			{ID: "a", ComponentType: "text_processor"},
			{ID: "b", ComponentType: "text_processor"},
		},
		Edges: []*models.Edge{
			{SourceNodeID: "a", SourceHandle: "output", TargetNodeID: "b"},
			{SourceNodeID: "b", SourceHandle: "output", TargetNodeID: "a"},
		},
	}))

	require.NoError(t, flows.Save(context.Background(), &models.Flow{
		ID:    "flow-dangling",
		Name:  "Dangling",
		Nodes: []*models.Node{{ID: "in", ComponentType: "text_input"}},
		Edges: []*models.Edge{{SourceNodeID: "in", SourceHandle: "output", TargetNodeID: "ghost"}},
	}))

	pool := newFakePool(workerPort(t, server))
	publisher := &capturePublisher{}
	publications := memory.NewPublicationRepository()

	gw := gateway.New(flows, publications, pool,
		gateway.WithPublisher(publisher),
		gateway.WithForwardTimeout(5*time.Second),
		gateway.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	return &fixture{gateway: gw, pool: pool, publisher: publisher, publications: publications, received: received}
}

func okWorker(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"success":true,"execution_id":"exec-9","status":"completed","output":{"out":{"text":"hi"}}}`))
}

func TestGateway_Publish(t *testing.T) {
	t.Parallel()

	f := newFixture(t, okWorker)
	ctx := context.Background()

	publication, err := f.gateway.Publish(ctx, "flow-1", "v2", gateway.PublishOptions{IsPublic: true})
	require.NoError(t, err)

	assert.Equal(t, "2", publication.Version)
	assert.Equal(t, "/api/flows/flow-1/v2/execute", publication.Endpoint)
	assert.Equal(t, "Greeter", publication.Name)
	assert.Equal(t, gateway.DefaultMaxInstances, publication.MaxInstances)
	assert.True(t, publication.IsPublic)
	require.NotNil(t, publication.Flow)
	assert.Equal(t, "2", publication.Flow.Version)

	stored, err := f.publications.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, publication.Endpoint, stored[0].Endpoint)

	assert.Equal(t, []events.EventType{events.FlowPublishedEvent}, f.publisher.Types())
	assert.Len(t, f.gateway.List(), 1)
}

func TestGateway_PublishErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flowID  string
		version string
		err     error
	}{
		{name: "missing flow", flowID: "nope", version: "1", err: persistence.ErrFlowNotFound},
		{name: "invalid graph", flowID: "flow-cycle", version: "1", err: gateway.ErrInvalidFlow},
		{name: "dangling edge", flowID: "flow-dangling", version: "1", err: graph.ErrUnresolvableGraph},
		{name: "empty version", flowID: "flow-1", version: " ", err: gateway.ErrEmptyVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, okWorker)

			_, err := f.gateway.Publish(context.Background(), tt.flowID, tt.version, gateway.PublishOptions{})
			require.ErrorIs(t, err, tt.err)
			assert.Empty(t, f.gateway.List())
			assert.Empty(t, f.publisher.Types())
		})
	}
}

func TestGateway_RepublishRestartsWorker(t *testing.T) {
	t.Parallel()

	f := newFixture(t, okWorker)
	ctx := context.Background()

	_, err := f.gateway.Publish(ctx, "flow-1", "1", gateway.PublishOptions{})
	require.NoError(t, err)
	assert.Empty(t, f.pool.stopped)

	_, err = f.gateway.Publish(ctx, "flow-1", "1", gateway.PublishOptions{MaxInstances: 5})
	require.NoError(t, err)

	assert.Equal(t, []string{"flow-1:1"}, f.pool.stopped)
	require.Len(t, f.gateway.List(), 1)
	assert.Equal(t, 5, f.gateway.List()[0].MaxInstances)
}

func TestGateway_Execute(t *testing.T) {
	t.Parallel()

	f := newFixture(t, okWorker)
	ctx := context.Background()

	_, err := f.gateway.Publish(ctx, "flow-1", "1", gateway.PublishOptions{})
	require.NoError(t, err)

	result, err := f.gateway.Execute(ctx, "flow-1", "1", map[string]any{"text": "hello"})
	require.NoError(t, err)

	assert.Equal(t, true, result["success"])
	assert.Equal(t, "exec-9", result["execution_id"])
	assert.Equal(t, map[string]any{"text": "hello"}, <-f.received)

	require.Len(t, f.pool.specs, 1)
	assert.Equal(t, "flow-1:1", f.pool.specs[0].Key())
	assert.Equal(t, "Greeter", f.pool.specs[0].Name)
	require.NotNil(t, f.pool.specs[0].Flow)
	assert.Len(t, f.pool.specs[0].Flow.Nodes, 2)
}

func TestGateway_ExecuteErrors(t *testing.T) {
	t.Parallel()

	t.Run("not published", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, okWorker)

		_, err := f.gateway.Execute(context.Background(), "flow-1", "1", nil)
		require.ErrorIs(t, err, gateway.ErrNotPublished)
		assert.Empty(t, f.pool.specs)
	})

	t.Run("worker failure is relayed", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"success":false,"error":"component in (text_input) failed"}`))
		})

		_, err := f.gateway.Publish(context.Background(), "flow-1", "1", gateway.PublishOptions{})
		require.NoError(t, err)

		_, err = f.gateway.Execute(context.Background(), "flow-1", "1", map[string]any{})

		var forwardErr *gateway.ForwardError
		require.ErrorAs(t, err, &forwardErr)
		assert.Equal(t, http.StatusInternalServerError, forwardErr.StatusCode())
		assert.Equal(t, "component in (text_input) failed", forwardErr.Message)
	})

	t.Run("non json failure uses default message", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := f.gateway.Publish(context.Background(), "flow-1", "1", gateway.PublishOptions{})
		require.NoError(t, err)

		_, err = f.gateway.Execute(context.Background(), "flow-1", "1", nil)

		var forwardErr *gateway.ForwardError
		require.ErrorAs(t, err, &forwardErr)
		assert.Equal(t, "Flow execution failed", forwardErr.Message)
	})

	t.Run("pool unavailable", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, okWorker)
		f.pool.err = workerpool.ErrServiceUnavailable

		_, err := f.gateway.Publish(context.Background(), "flow-1", "1", gateway.PublishOptions{})
		require.NoError(t, err)

		_, err = f.gateway.Execute(context.Background(), "flow-1", "1", nil)
		assert.True(t, workerpool.IsUnavailable(err))
	})

	t.Run("unreachable worker", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, okWorker)

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		f.pool.port = listener.Addr().(*net.TCPAddr).Port
		require.NoError(t, listener.Close())

		_, err = f.gateway.Publish(context.Background(), "flow-1", "1", gateway.PublishOptions{})
		require.NoError(t, err)

		_, err = f.gateway.Execute(context.Background(), "flow-1", "1", nil)
		require.ErrorIs(t, err, workerpool.ErrServiceUnavailable)
	})
}

func TestGateway_Unpublish(t *testing.T) {
	t.Parallel()

	f := newFixture(t, okWorker)
	ctx := context.Background()

	_, err := f.gateway.Publish(ctx, "flow-1", "1", gateway.PublishOptions{})
	require.NoError(t, err)

	require.NoError(t, f.gateway.Unpublish(ctx, "flow-1", "1"))

	assert.Empty(t, f.gateway.List())
	assert.Equal(t, []string{"flow-1:1"}, f.pool.stopped)
	assert.Equal(t, []events.EventType{events.FlowPublishedEvent, events.FlowUnpublishedEvent}, f.publisher.Types())

	stored, err := f.publications.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)

	err = f.gateway.Unpublish(ctx, "flow-1", "1")
	require.ErrorIs(t, err, gateway.ErrNotPublished)
}

func TestGateway_Status(t *testing.T) {
	t.Parallel()

	f := newFixture(t, okWorker)
	ctx := context.Background()

	status := f.gateway.Status("flow-1", "1")
	assert.Equal(t, gateway.StatusNotRunning, status.Status)
	assert.Zero(t, status.Port)

	_, err := f.gateway.Publish(ctx, "flow-1", "1", gateway.PublishOptions{})
	require.NoError(t, err)

	_, err = f.gateway.Execute(ctx, "flow-1", "1", nil)
	require.NoError(t, err)

	status = f.gateway.Status("flow-1", "1")
	assert.Equal(t, f.pool.port, status.Port)
	assert.Equal(t, 4242, status.PID)
	assert.NotNil(t, status.StartTime)
}

func TestGateway_LoadAndShutdown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, okWorker)
	ctx := context.Background()

	require.NoError(t, f.publications.Save(ctx, &models.Publication{
		FlowID:   "flow-1",
		Version:  "7",
		Name:     "Greeter",
		Endpoint: models.PublicationEndpoint("flow-1", "7"),
		Flow:     &models.Flow{ID: "flow-1", Version: "7"},
	}))

	require.NoError(t, f.gateway.Load(ctx))

	publication, ok := f.gateway.Published("flow-1", "7")
	require.True(t, ok)
	assert.Equal(t, "Greeter", publication.Name)

	f.gateway.Shutdown(ctx)
	assert.True(t, f.pool.shutdown)
}

func TestForwardError(t *testing.T) {
	t.Parallel()

	err := &gateway.ForwardError{FlowID: "f", Version: "1", Status: http.StatusOK, Message: "odd"}
	assert.Equal(t, http.StatusBadGateway, err.StatusCode())
	assert.Equal(t, "worker for f v1 answered 200: odd", err.Error())
	assert.False(t, errors.Is(err, gateway.ErrNotPublished))
}
