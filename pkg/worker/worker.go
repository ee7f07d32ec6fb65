// Package worker is the HTTP server of a worker process: it serves exactly one
// published flow version.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/dukex/flowstudio/pkg/execution"
	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/persistence/memory"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
)

// RetainedRuns bounds the finished runs a worker process keeps in memory.
const RetainedRuns = 100

var ErrNoFlow = errors.New("worker has no flow to serve")

// NewRunStore returns the execution store of a worker process. Callers get the
// record in the response, so only the latest finished runs are kept.
func NewRunStore() *memory.ExecutionRepository {
	return memory.NewExecutionRepository(memory.WithRetention(RetainedRuns))
}

// Runner executes a flow synchronously.
type Runner interface {
	Execute(ctx context.Context, flow *models.Flow, req execution.Request) (*models.ExecutionRecord, error)
}

type Config struct {
	FlowID  string
	Version string
	Name    string
	Flow    *models.Flow
}

// LoadFlow reads the flow snapshot a worker was started with.
func LoadFlow(path string) (*models.Flow, error) {
	payload, err := os.ReadFile(path) // #nosec G304 -- path is provided by the launcher
	if err != nil {
		return nil, fmt.Errorf("failed to read flow config %s: %w", path, err)
	}

	var flow models.Flow

	err = json.Unmarshal(payload, &flow)
	if err != nil {
		return nil, fmt.Errorf("failed to decode flow config %s: %w", path, err)
	}

	return &flow, nil
}

type Server struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
	now    func() time.Time
}

func NewServer(cfg Config, runner Runner, logger *slog.Logger) (*Server, error) {
	if cfg.Flow == nil {
		return nil, ErrNoFlow
	}

	if cfg.FlowID == "" {
		cfg.FlowID = cfg.Flow.ID
	}

	if cfg.Version == "" {
		cfg.Version = cfg.Flow.Version
	}

	if cfg.Name == "" {
		cfg.Name = cfg.Flow.Name
	}

	return &Server{
		cfg:    cfg,
		runner: runner,
		logger: logger.With("module", "worker", "flow_id", cfg.FlowID, "version", cfg.Version),
		now:    time.Now,
	}, nil
}

func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:     s.cfg.Name + " API",
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})

	app.Get("/health", s.health)
	app.Post("/execute", s.execute)
	app.Get("/info", s.info)

	return app
}

// Listen serves until ctx is cancelled.
func (s *Server) Listen(ctx context.Context, port int) error {
	app := s.App()

	go func() {
		<-ctx.Done()

		err := app.ShutdownWithTimeout(5 * time.Second)
		if err != nil {
			s.logger.Error("Failed to shut down worker", "error", err)
		}
	}()

	s.logger.Info("Worker listening", "port", port)

	return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}

func (s *Server) health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"flow_id":   s.cfg.FlowID,
		"version":   s.cfg.Version,
		"timestamp": s.now().UTC(),
	})
}

func (s *Server) info(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"flow_id":           s.cfg.FlowID,
		"version":           s.cfg.Version,
		"name":              s.cfg.Name,
		"status":            "active",
		"components_count":  len(s.cfg.Flow.Nodes),
		"connections_count": len(s.cfg.Flow.Edges),
	})
}

func (s *Server) execute(c fiber.Ctx) error {
	input := map[string]any{}

	if body := c.Body(); len(body) > 0 {
		err := json.Unmarshal(body, &input)
		if err != nil {
			return s.failure(c, fiber.StatusBadRequest, "", fmt.Errorf("invalid input: %w", err))
		}
	}

	s.logger.InfoContext(c.Context(), "Executing flow", "input_keys", len(input))

	record, err := s.runner.Execute(c.Context(), s.cfg.Flow, execution.Request{Input: input})
	if err != nil {
		return s.failure(c, fiber.StatusInternalServerError, "", err)
	}

	if record.Status != models.ExecutionStatusCompleted {
		return s.failure(c, fiber.StatusInternalServerError, record.ID, errors.New(record.ErrorMessage))
	}

	return c.JSON(fiber.Map{
		"success":           true,
		"execution_id":      record.ID,
		"flow_id":           s.cfg.FlowID,
		"version":           s.cfg.Version,
		"status":            record.Status,
		"execution_time_ms": record.Metrics["duration_ms"],
		"output":            record.FinalOutput,
		"timestamp":         s.now().UTC(),
	})
}

func (s *Server) failure(c fiber.Ctx, status int, executionID string, err error) error {
	s.logger.ErrorContext(c.Context(), "Flow execution failed", "execution_id", executionID, "error", err)

	body := fiber.Map{
		"success":   false,
		"error":     err.Error(),
		"flow_id":   s.cfg.FlowID,
		"version":   s.cfg.Version,
		"timestamp": s.now().UTC(),
	}

	if executionID != "" {
		body["execution_id"] = executionID
	}

	return c.Status(status).JSON(body)
}
