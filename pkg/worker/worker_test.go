package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dukex/flowstudio/pkg/components/text"
	"github.com/dukex/flowstudio/pkg/execution"
	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/notify"
	"github.com/dukex/flowstudio/pkg/persistence/memory"
	"github.com/dukex/flowstudio/pkg/registry"
	"github.com/dukex/flowstudio/pkg/worker"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoFlow() *models.Flow {
	return &models.Flow{
		ID:      "flow-echo",
		Name:    "Echo",
		Version: "2",
		Nodes: []*models.Node{
			{ID: "in", ComponentType: "text_input", Config: map[string]any{"text": "default"}},
			{ID: "out", ComponentType: "text_output"},
		},
		Edges: []*models.Edge{
			{SourceNodeID: "in", SourceHandle: "output", TargetNodeID: "out", TargetHandle: "text"},
		},
	}
}

func newApp(t *testing.T, flow *models.Flow) *fiber.App {
	t.Helper()

	return newAppWithStore(t, flow, memory.NewExecutionRepository())
}

func newAppWithStore(t *testing.T, flow *models.Flow, store *memory.ExecutionRepository) *fiber.App {
	t.Helper()

	reg := registry.NewRegistry(discardLogger())
	reg.Register(text.NewInputComponent())
	reg.Register(text.NewOutputComponent())

	coordinator := execution.NewCoordinator(reg, store, notify.Discard,
		execution.WithLogger(discardLogger()))

	server, err := worker.NewServer(worker.Config{Flow: flow}, coordinator, discardLogger())
	require.NoError(t, err)

	return server.App()
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))

	return resp.StatusCode, decoded
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	status, body := doJSON(t, newApp(t, echoFlow()), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "flow-echo", body["flow_id"])
	assert.Equal(t, "2", body["version"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestServer_Info(t *testing.T) {
	t.Parallel()

	status, body := doJSON(t, newApp(t, echoFlow()), http.MethodGet, "/info", "")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Echo", body["name"])
	assert.InDelta(t, 2, body["components_count"], 0)
	assert.InDelta(t, 1, body["connections_count"], 0)
}

func TestServer_Execute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{name: "input overrides root config", body: `{"text":"hello"}`, expected: "hello"},
		{name: "empty body uses config", body: "", expected: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, body := doJSON(t, newApp(t, echoFlow()), http.MethodPost, "/execute", tt.body)

			require.Equal(t, http.StatusOK, status, body)
			assert.Equal(t, true, body["success"])
			assert.Equal(t, "completed", body["status"])
			assert.NotEmpty(t, body["execution_id"])
			assert.Equal(t, "flow-echo", body["flow_id"])
			assert.Contains(t, body, "execution_time_ms")

			output, ok := body["output"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, map[string]any{"text": tt.expected, "formatted_output": tt.expected}, output["out"])
		})
	}
}

func TestServer_ExecuteFailure(t *testing.T) {
	t.Parallel()

	flow := echoFlow()
	flow.Nodes[0].Config = nil

	status, body := doJSON(t, newApp(t, flow), http.MethodPost, "/execute", `{}`)

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "Text input is required")
	assert.NotEmpty(t, body["execution_id"])
	assert.Equal(t, "2", body["version"])
}

func TestServer_ExecuteInvalidBody(t *testing.T) {
	t.Parallel()

	status, body := doJSON(t, newApp(t, echoFlow()), http.MethodPost, "/execute", `{not json`)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "invalid input")
}

type failingRunner struct{}

func (failingRunner) Execute(context.Context, *models.Flow, execution.Request) (*models.ExecutionRecord, error) {
	return nil, errors.New("store offline")
}

func TestServer_ExecuteRunnerError(t *testing.T) {
	t.Parallel()

	server, err := worker.NewServer(worker.Config{Flow: echoFlow()}, failingRunner{}, discardLogger())
	require.NoError(t, err)

	status, body := doJSON(t, server.App(), http.MethodPost, "/execute", `{}`)

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "store offline", body["error"])
	assert.NotContains(t, body, "execution_id")
}

func TestNewServer_RequiresFlow(t *testing.T) {
	t.Parallel()

	_, err := worker.NewServer(worker.Config{}, failingRunner{}, discardLogger())
	require.ErrorIs(t, err, worker.ErrNoFlow)
}

func TestLoadFlow(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "flow.json")

	payload, err := json.Marshal(echoFlow())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	flow, err := worker.LoadFlow(path)
	require.NoError(t, err)
	assert.Equal(t, "flow-echo", flow.ID)
	assert.Len(t, flow.Nodes, 2)

	_, err = worker.LoadFlow(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestServer_RetainsBoundedRuns(t *testing.T) {
	t.Parallel()

	store := worker.NewRunStore()
	app := newAppWithStore(t, echoFlow(), store)

	for range worker.RetainedRuns + 20 {
		status, _ := doJSON(t, app, http.MethodPost, "/execute", `{"text":"hi"}`)
		require.Equal(t, http.StatusOK, status)
	}

	records, err := store.ListExecutions(t.Context(), "flow-echo")
	require.NoError(t, err)
	assert.Len(t, records, worker.RetainedRuns)
}
