package memory

import (
	"testing"

	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/persistence"
	"github.com/dukex/flowstudio/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistence(t *testing.T) {
	t.Parallel()

	persistencetest.Run(t, func(_ *testing.T) persistence.Persistence {
		return NewPersistence()
	})
}

func TestFlowRepository_ReturnsCopies(t *testing.T) {
	t.Parallel()

	repo := NewFlowRepository()
	flow := &models.Flow{ID: "f1", Name: "flow", Nodes: []*models.Node{{ID: "a", ComponentType: "text_input"}}}
	require.NoError(t, repo.Save(t.Context(), flow))

	flow.Nodes[0].ID = "mutated"

	got, err := repo.GetByID(t.Context(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Nodes[0].ID)

	got.Name = "changed"

	again, err := repo.GetByID(t.Context(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "flow", again.Name)
}

func TestExecutionRepository_RetentionEvictsOldestFinished(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	repo := NewExecutionRepository(WithRetention(2))

	running := &models.ExecutionRecord{ID: "running", FlowID: "f1", Status: models.ExecutionStatusRunning}
	require.NoError(t, repo.CreateExecution(ctx, running))

	for _, id := range []string{"e1", "e2", "e3", "e4"} {
		record := &models.ExecutionRecord{ID: id, FlowID: "f1", Status: models.ExecutionStatusPending}
		require.NoError(t, repo.CreateExecution(ctx, record))
		require.NoError(t, repo.CreateNodeExecutions(ctx, []*models.NodeExecutionRecord{{ID: id + "-n", ExecutionID: id, NodeID: "a"}}))
		require.NoError(t, repo.AppendLog(ctx, &models.LogEntry{ExecutionID: id, Message: "started"}))

		record.Status = models.ExecutionStatusCompleted
		require.NoError(t, repo.UpdateExecution(ctx, record))
		// A second terminal save must not count twice.
		require.NoError(t, repo.UpdateExecution(ctx, record))
	}

	records, err := repo.ListExecutions(ctx, "f1")
	require.NoError(t, err)

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}

	assert.Equal(t, []string{"e4", "e3", "running"}, ids)

	_, err = repo.GetExecution(ctx, "e1")
	require.ErrorIs(t, err, persistence.ErrExecutionNotFound)

	nodes, err := repo.NodeExecutions(ctx, "e1")
	require.NoError(t, err)
	assert.Empty(t, nodes)

	require.NoError(t, repo.AppendLog(ctx, &models.LogEntry{ExecutionID: "e1", Message: "late"}))

	logs, err := repo.Logs(ctx, "e1")
	require.NoError(t, err)
	assert.Empty(t, logs)

	logs, err = repo.Logs(ctx, "e4")
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}
