// Package persistencetest holds the behaviour every persistence implementation must share.
package persistencetest

import (
	"testing"
	"time"

	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) persistence.Persistence

// Run exercises the three repositories of a store.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("flows", func(t *testing.T) { testFlows(t, factory(t)) })
	t.Run("executions", func(t *testing.T) { testExecutions(t, factory(t)) })
	t.Run("node executions", func(t *testing.T) { testNodeExecutions(t, factory(t)) })
	t.Run("logs", func(t *testing.T) { testLogs(t, factory(t)) })
	t.Run("publications", func(t *testing.T) { testPublications(t, factory(t)) })
	t.Run("health", func(t *testing.T) {
		require.NoError(t, factory(t).HealthCheck(t.Context()))
	})
}

func newID() string {
	return uuid.NewString()
}

func sampleFlow(name string) *models.Flow {
	return &models.Flow{
		ID:      newID(),
		Name:    name,
		Version: "1",
		OwnerID: "user-1",
		Nodes: []*models.Node{
			{ID: "in", ComponentType: "text_input", Config: map[string]any{"text": "hello"}},
			{ID: "out", ComponentType: "text_output"},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceNodeID: "in", SourceHandle: "output", TargetNodeID: "out", TargetHandle: "text"},
		},
	}
}

func testFlows(t *testing.T, store persistence.Persistence) {
	ctx := t.Context()
	repo := store.FlowRepository()

	first := sampleFlow("first")
	require.NoError(t, repo.Save(ctx, first))
	assert.False(t, first.CreatedAt.IsZero())

	time.Sleep(2 * time.Millisecond)

	second := sampleFlow("second")
	require.NoError(t, repo.Save(ctx, second))

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)
	assert.Equal(t, first.Nodes, got.Nodes)
	assert.Equal(t, first.Edges, got.Edges)

	got.Name = "renamed"
	require.NoError(t, repo.Save(ctx, got))

	updated, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.WithinDuration(t, first.CreatedAt, updated.CreatedAt, time.Millisecond)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)

	require.NoError(t, repo.Delete(ctx, first.ID))

	_, err = repo.GetByID(ctx, first.ID)
	require.ErrorIs(t, err, persistence.ErrFlowNotFound)

	err = repo.Delete(ctx, first.ID)
	require.ErrorIs(t, err, persistence.ErrFlowNotFound)
}

func sampleExecution(flowID string, createdAt time.Time) *models.ExecutionRecord {
	return &models.ExecutionRecord{
		ID:              newID(),
		FlowID:          flowID,
		FlowVersion:     "1",
		UserID:          "user-1",
		Status:          models.ExecutionStatusPending,
		TotalComponents: 2,
		ExecutionConfig: map[string]any{"mode": "sequential"},
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

func testExecutions(t *testing.T, store persistence.Persistence) {
	ctx := t.Context()
	repo := store.ExecutionRepository()
	base := time.Now().UTC().Truncate(time.Millisecond)

	older := sampleExecution("flow-a", base)
	newer := sampleExecution("flow-a", base.Add(time.Second))
	other := sampleExecution("flow-b", base)

	for _, record := range []*models.ExecutionRecord{older, newer, other} {
		require.NoError(t, repo.CreateExecution(ctx, record))
	}

	err := repo.CreateExecution(ctx, older)
	require.ErrorIs(t, err, persistence.ErrAlreadyExists)

	require.NoError(t, older.Transition(models.ExecutionStatusRunning, base.Add(2*time.Second)))
	older.SetProgress(1)
	older.FinalOutput = map[string]any{"out": map[string]any{"text": "done"}}
	older.ErrorDetails = map[string]any{"node_id": "x"}
	require.NoError(t, repo.UpdateExecution(ctx, older))

	got, err := repo.GetExecution(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, got.Status)
	assert.Equal(t, 50, got.Progress)
	assert.Equal(t, 1, got.CompletedComponents)
	assert.Equal(t, older.FinalOutput, got.FinalOutput)
	assert.Equal(t, older.ExecutionConfig, got.ExecutionConfig)
	require.NotNil(t, got.StartedAt)
	assert.WithinDuration(t, *older.StartedAt, *got.StartedAt, time.Millisecond)

	list, err := repo.ListExecutions(ctx, "flow-a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	_, err = repo.GetExecution(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrExecutionNotFound)

	err = repo.UpdateExecution(ctx, sampleExecution("flow-a", base))
	require.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}

func testNodeExecutions(t *testing.T, store persistence.Persistence) {
	ctx := t.Context()
	repo := store.ExecutionRepository()

	execution := sampleExecution("flow-a", time.Now().UTC())
	require.NoError(t, repo.CreateExecution(ctx, execution))

	second := &models.NodeExecutionRecord{
		ID: newID(), ExecutionID: execution.ID, NodeID: "out", ComponentType: "text_output",
		ExecutionOrder: 1, Status: models.NodeStatusPending,
	}
	first := &models.NodeExecutionRecord{
		ID: newID(), ExecutionID: execution.ID, NodeID: "in", ComponentType: "text_input",
		ExecutionOrder: 0, Status: models.NodeStatusPending,
		ConfigSnapshot: map[string]any{"text": "hello"},
	}
	require.NoError(t, repo.CreateNodeExecutions(ctx, []*models.NodeExecutionRecord{second, first}))

	require.NoError(t, first.Transition(models.NodeStatusRunning, time.Now()))
	require.NoError(t, first.Transition(models.NodeStatusCompleted, time.Now()))
	first.OutputSnapshot = map[string]any{"output": map[string]any{"text": "hello"}}
	first.ExecutionTimeMs = 12
	require.NoError(t, repo.UpdateNodeExecution(ctx, first))

	records, err := repo.NodeExecutions(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "in", records[0].NodeID)
	assert.Equal(t, models.NodeStatusCompleted, records[0].Status)
	assert.Equal(t, int64(12), records[0].ExecutionTimeMs)
	assert.Equal(t, first.OutputSnapshot, records[0].OutputSnapshot)
	assert.Equal(t, first.ConfigSnapshot, records[0].ConfigSnapshot)
	assert.Equal(t, "out", records[1].NodeID)
	assert.Equal(t, models.NodeStatusPending, records[1].Status)

	missing := &models.NodeExecutionRecord{ID: newID(), ExecutionID: execution.ID, NodeID: "ghost", Status: models.NodeStatusPending}
	err = repo.UpdateNodeExecution(ctx, missing)
	require.ErrorIs(t, err, persistence.ErrNodeExecutionNotFound)

	empty, err := repo.NodeExecutions(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testLogs(t *testing.T, store persistence.Persistence) {
	ctx := t.Context()
	repo := store.ExecutionRepository()

	execution := sampleExecution("flow-a", time.Now().UTC())
	require.NoError(t, repo.CreateExecution(ctx, execution))

	base := time.Now().UTC()
	messages := []string{"Starting execution of 2 components", "Executing component in", "Execution completed"}

	for i, message := range messages {
		require.NoError(t, repo.AppendLog(ctx, &models.LogEntry{
			ID:          newID(),
			ExecutionID: execution.ID,
			Level:       models.LogLevelInfo,
			Message:     message,
			Details:     map[string]any{"index": float64(i)},
			Source:      "execution_engine",
			Timestamp:   base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	logs, err := repo.Logs(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, logs, len(messages))

	for i, entry := range logs {
		assert.Equal(t, messages[i], entry.Message)
		assert.Equal(t, models.LogLevelInfo, entry.Level)
		assert.Equal(t, map[string]any{"index": float64(i)}, entry.Details)
	}
}

func testPublications(t *testing.T, store persistence.Persistence) {
	ctx := t.Context()
	repo := store.PublicationRepository()
	flow := sampleFlow("published")
	base := time.Now().UTC().Truncate(time.Millisecond)

	v1 := &models.Publication{
		FlowID: flow.ID, Version: "1", Name: flow.Name,
		Endpoint: models.PublicationEndpoint(flow.ID, "1"), MaxInstances: 1,
		Flow: flow, PublishedAt: base,
	}
	v2 := &models.Publication{
		FlowID: flow.ID, Version: "2", Name: flow.Name,
		Endpoint: models.PublicationEndpoint(flow.ID, "2"), MaxInstances: 1,
		Flow: flow, PublishedAt: base.Add(time.Second),
	}

	require.NoError(t, repo.Save(ctx, v1))
	require.NoError(t, repo.Save(ctx, v2))

	v1.IsPublic = true
	require.NoError(t, repo.Save(ctx, v1))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1", all[0].Version)
	assert.True(t, all[0].IsPublic)
	assert.Equal(t, "2", all[1].Version)
	require.NotNil(t, all[1].Flow)
	assert.Equal(t, flow.Nodes, all[1].Flow.Nodes)

	require.NoError(t, repo.Delete(ctx, flow.ID, "1"))

	err = repo.Delete(ctx, flow.ID, "1")
	require.ErrorIs(t, err, persistence.ErrPublicationNotFound)

	all, err = repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
