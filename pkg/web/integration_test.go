//go:build integration

package web_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/dukex/flowstudio/pkg/components/text"
	"github.com/dukex/flowstudio/pkg/execution"
	"github.com/dukex/flowstudio/pkg/gateway"
	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/notify"
	"github.com/dukex/flowstudio/pkg/persistence/postgresql"
	"github.com/dukex/flowstudio/pkg/registry"
	"github.com/dukex/flowstudio/pkg/services"
	"github.com/dukex/flowstudio/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "test_flowstudio",
				"POSTGRES_USER":     "test_user",
				"POSTGRES_PASSWORD": "test_pass",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://test_user:test_pass@%s:%s/test_flowstudio?sslmode=disable", host, port.Port())
}

func setupIntegrationApp(t *testing.T, dbURL string) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := postgresql.NewPersistence(context.Background(), logger, dbURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	reg := registry.NewRegistry(logger)
	reg.Register(text.NewInputComponent())
	reg.Register(text.NewOutputComponent())

	coordinator := execution.NewCoordinator(reg, store.ExecutionRepository(), notify.Discard, execution.WithLogger(logger))
	executions := services.NewExecution(store, coordinator, logger)
	gw := gateway.New(store.FlowRepository(), store.PublicationRepository(), workerPool{port: 1}, gateway.WithLogger(logger))

	handlers := web.NewAPIHandlers(
		services.NewFlow(store),
		executions,
		services.NewPublishing(gw),
		validator.New(validator.WithRequiredStructEnabled()),
		reg,
	)

	app := fiber.New()
	handlers.Register(app)

	t.Cleanup(executions.Wait)

	return &testEnv{app: app, store: store, executions: executions}
}

func TestFlowExecution_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := setupIntegrationApp(t, setupTestDB(t))
	flow := env.createFlow(t)

	status, body := env.do(t, http.MethodPost, "/flows/"+flow.ID+"/executions?wait=true", web.StartExecutionRequest{
		Input: map[string]any{"text": "from postgres"},
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var record models.ExecutionRecord
	require.NoError(t, json.Unmarshal(body, &record))
	assert.Equal(t, models.ExecutionStatusCompleted, record.Status)

	status, body = env.do(t, http.MethodGet, "/executions/"+record.ID, nil)
	require.Equal(t, http.StatusOK, status)

	var stored models.ExecutionRecord
	require.NoError(t, json.Unmarshal(body, &stored))
	assert.Equal(t, 100, stored.Progress)
	assert.Equal(t, map[string]any{"text": "from postgres", "formatted_output": "from postgres"}, stored.FinalOutput["out"])

	status, _ = env.do(t, http.MethodPost, "/flows/"+flow.ID+"/publish", web.PublishRequest{Version: "1"})
	require.Equal(t, http.StatusCreated, status)

	status, body = env.do(t, http.MethodGet, "/published", nil)
	require.Equal(t, http.StatusOK, status)

	var publications []models.Publication
	require.NoError(t, json.Unmarshal(body, &publications))
	assert.Len(t, publications, 1)
}
