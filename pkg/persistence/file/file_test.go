package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/persistence"
	"github.com/dukex/flowstudio/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistence(t *testing.T) {
	t.Parallel()

	persistencetest.Run(t, func(t *testing.T) persistence.Persistence {
		return NewPersistence(t.TempDir())
	})
}

func TestNewPersistence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/tmp/test", NewPersistence("/tmp/test").root)
	assert.Equal(t, "/tmp/test", NewPersistence("file:///tmp/test").root)
}

func TestFlowRepository_Layout(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewPersistence(root)

	flow := &models.Flow{ID: "flow-1", Name: "Layout"}
	require.NoError(t, store.FlowRepository().Save(t.Context(), flow))

	_, err := os.Stat(filepath.Join(root, "flows", "flow-1.json"))
	require.NoError(t, err)
}

func TestFlowRepository_RejectsTraversal(t *testing.T) {
	t.Parallel()

	store := NewPersistence(t.TempDir())

	err := store.FlowRepository().Save(t.Context(), &models.Flow{ID: "../escape", Name: "bad"})
	require.Error(t, err)

	_, err = store.FlowRepository().GetByID(t.Context(), "a/b")
	require.Error(t, err)
	assert.False(t, persistence.IsFlowNotFound(err))
}

func TestExecutionRepository_EmptyRoot(t *testing.T) {
	t.Parallel()

	store := NewPersistence(filepath.Join(t.TempDir(), "not-yet-created"))

	records, err := store.ExecutionRepository().ListExecutions(t.Context(), "flow-1")
	require.NoError(t, err)
	assert.Empty(t, records)

	logs, err := store.ExecutionRepository().Logs(t.Context(), "exec-1")
	require.NoError(t, err)
	assert.Empty(t, logs)

	require.NoError(t, store.HealthCheck(t.Context()))
}
