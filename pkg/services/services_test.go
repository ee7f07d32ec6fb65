package services_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/flowstudio/pkg/components/text"
	"github.com/dukex/flowstudio/pkg/execution"
	"github.com/dukex/flowstudio/pkg/gateway"
	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/notify"
	"github.com/dukex/flowstudio/pkg/persistence"
	"github.com/dukex/flowstudio/pkg/persistence/memory"
	"github.com/dukex/flowstudio/pkg/registry"
	"github.com/dukex/flowstudio/pkg/services"
	"github.com/dukex/flowstudio/pkg/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoFlow() *models.Flow {
	return &models.Flow{
		Name:    "Echo",
		OwnerID: "user-1",
		Nodes: []*models.Node{
			{ID: "in", ComponentType: "text_input", Config: map[string]any{"text": "default"}},
			{ID: "out", ComponentType: "text_output"},
		},
		Edges: []*models.Edge{
			{SourceNodeID: "in", SourceHandle: "output", TargetNodeID: "out", TargetHandle: "text"},
		},
	}
}

func newExecutionService(t *testing.T) (*services.Execution, *services.Flow, persistence.Persistence) {
	t.Helper()

	store := memory.NewPersistence()

	reg := registry.NewRegistry(discardLogger())
	reg.Register(text.NewInputComponent())
	reg.Register(text.NewOutputComponent())

	coordinator := execution.NewCoordinator(reg, store.ExecutionRepository(), notify.Discard,
		execution.WithLogger(discardLogger()))

	return services.NewExecution(store, coordinator, discardLogger()), services.NewFlow(store), store
}

func TestFlow_CreateAndUpdate(t *testing.T) {
	t.Parallel()

	_, flows, _ := newExecutionService(t)
	ctx := context.Background()

	created, err := flows.Create(ctx, echoFlow())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "1", created.Version)

	update := echoFlow()
	update.Name = "Echo v2"
	update.OwnerID = ""

	updated, err := flows.Update(ctx, created.ID, update)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "user-1", updated.OwnerID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	fetched, err := flows.FetchByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Echo v2", fetched.Name)

	_, err = flows.Update(ctx, "missing", echoFlow())
	assert.True(t, services.IsNotFound(err))
}

func TestFlow_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(flow *models.Flow) *models.Flow
		code   string
	}{
		{
			name:   "nil flow",
			mutate: func(*models.Flow) *models.Flow { return nil },
		},
		{
			name: "missing name",
			mutate: func(flow *models.Flow) *models.Flow {
				flow.Name = "  "

				return flow
			},
			code: "FLOW_NAME_REQUIRED",
		},
		{
			name: "duplicate node",
			mutate: func(flow *models.Flow) *models.Flow {
				flow.Nodes = append(flow.Nodes, &models.Node{ID: "in", ComponentType: "text_input"})

				return flow
			},
			code: "DUPLICATE_NODE",
		},
		{
			name: "edge to unknown node",
			mutate: func(flow *models.Flow) *models.Flow {
				flow.Edges = append(flow.Edges, &models.Edge{SourceNodeID: "out", SourceHandle: "text", TargetNodeID: "ghost"})

				return flow
			},
			code: "UNKNOWN_EDGE_NODE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, flows, _ := newExecutionService(t)

			_, err := flows.Create(context.Background(), tt.mutate(echoFlow()))
			require.Error(t, err)
			assert.True(t, services.IsValidationError(err), err)

			if tt.code != "" {
				var serviceErr *services.ServiceError
				require.ErrorAs(t, err, &serviceErr)
				assert.Equal(t, tt.code, serviceErr.Code)
			}
		})
	}
}

func TestFlow_CyclesAreSavedAsDrafts(t *testing.T) {
	t.Parallel()

	_, flows, _ := newExecutionService(t)

	flow := echoFlow()
	flow.Edges = append(flow.Edges, &models.Edge{SourceNodeID: "out", SourceHandle: "text", TargetNodeID: "in", TargetHandle: "text"})

	_, err := flows.Create(context.Background(), flow)
	require.NoError(t, err)
}

func TestFlow_ListAndDelete(t *testing.T) {
	t.Parallel()

	_, flows, _ := newExecutionService(t)
	ctx := context.Background()

	first, err := flows.Create(ctx, echoFlow())
	require.NoError(t, err)

	other := echoFlow()
	other.OwnerID = "user-2"
	_, err = flows.Create(ctx, other)
	require.NoError(t, err)

	all, err := flows.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := flows.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)

	require.NoError(t, flows.Delete(ctx, first.ID))
	assert.True(t, services.IsNotFound(flows.Delete(ctx, first.ID)))

	message, ok := flows.HealthCheck(ctx)
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)
}

func TestExecution_StartAndWait(t *testing.T) {
	t.Parallel()

	executions, flows, _ := newExecutionService(t)
	ctx := context.Background()

	flow, err := flows.Create(ctx, echoFlow())
	require.NoError(t, err)

	record, err := executions.Start(ctx, flow.ID, services.StartRequest{
		UserID: "user-1",
		Input:  map[string]any{"text": "hello"},
		Wait:   true,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, record.Status)
	assert.Equal(t, 100, record.Progress)
	assert.Equal(t, map[string]any{"text": "hello", "formatted_output": "hello"}, record.FinalOutput["out"])

	components, err := executions.Components(ctx, record.ID)
	require.NoError(t, err)
	require.Len(t, components, 2)
	assert.Equal(t, "in", components[0].NodeID)

	logs, err := executions.Logs(ctx, record.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)

	listed, err := executions.ListByFlow(ctx, flow.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, record.ID, listed[0].ID)
}

func TestExecution_StartInBackground(t *testing.T) {
	t.Parallel()

	executions, flows, _ := newExecutionService(t)
	ctx := context.Background()

	flow, err := flows.Create(ctx, echoFlow())
	require.NoError(t, err)

	record, err := executions.Start(ctx, flow.ID, services.StartRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, record.Status)

	executions.Wait()

	stored, err := executions.FetchByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)

	_, err = executions.Cancel(ctx, record.ID)
	assert.True(t, services.IsConflictError(err), err)
}

func TestExecution_NotFound(t *testing.T) {
	t.Parallel()

	executions, _, _ := newExecutionService(t)
	ctx := context.Background()

	_, err := executions.Start(ctx, "missing", services.StartRequest{})
	assert.True(t, services.IsNotFound(err))

	_, err = executions.FetchByID(ctx, "missing")
	assert.True(t, services.IsNotFound(err))

	_, err = executions.Components(ctx, "missing")
	assert.True(t, services.IsNotFound(err))

	_, err = executions.Logs(ctx, "missing")
	assert.True(t, services.IsNotFound(err))

	_, err = executions.ListByFlow(ctx, "missing")
	assert.True(t, services.IsNotFound(err))

	_, err = executions.Cancel(ctx, "missing")
	assert.True(t, services.IsNotFound(err))
}

type idlePool struct{}

func (idlePool) GetOrCreate(context.Context, workerpool.Spec) (*workerpool.Process, error) {
	return nil, workerpool.ErrServiceUnavailable
}

func (idlePool) Stop(context.Context, string) error { return nil }

func (idlePool) Process(string) (*workerpool.Process, bool) { return nil, false }

func (idlePool) Shutdown(context.Context) {}

func TestPublishing(t *testing.T) {
	t.Parallel()

	_, flows, store := newExecutionService(t)
	ctx := context.Background()

	flow, err := flows.Create(ctx, echoFlow())
	require.NoError(t, err)

	gw := gateway.New(store.FlowRepository(), store.PublicationRepository(), idlePool{},
		gateway.WithLogger(discardLogger()),
		gateway.WithForwardTimeout(time.Second))
	publishing := services.NewPublishing(gw)

	publication, err := publishing.Publish(ctx, flow.ID, "v3", gateway.PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, "3", publication.Version)
	assert.Len(t, publishing.List(), 1)

	status, err := publishing.Status(flow.ID, "3")
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusNotRunning, status.Status)

	_, err = publishing.Execute(ctx, flow.ID, "3", map[string]any{})
	assert.True(t, services.IsUnavailable(err))

	_, err = publishing.Publish(ctx, flow.ID, "a/b", gateway.PublishOptions{})
	assert.True(t, services.IsValidationError(err))

	_, err = publishing.Publish(ctx, flow.ID, "4", gateway.PublishOptions{MaxInstances: -1})
	assert.True(t, services.IsValidationError(err))

	require.NoError(t, publishing.Unpublish(ctx, flow.ID, "v3"))

	_, err = publishing.Status(flow.ID, "3")
	assert.True(t, services.IsNotFound(err))

	err = publishing.Unpublish(ctx, flow.ID, "3")
	assert.True(t, services.IsNotFound(err))
}
