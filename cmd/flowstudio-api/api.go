// Package main provides the flowstudio API server implementation.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/flowstudio/pkg/eventbus"
	"github.com/dukex/flowstudio/pkg/execution"
	"github.com/dukex/flowstudio/pkg/gateway"
	"github.com/dukex/flowstudio/pkg/notify"
	"github.com/dukex/flowstudio/pkg/persistence"
	"github.com/dukex/flowstudio/pkg/registry"
	"github.com/dukex/flowstudio/pkg/services"
	"github.com/dukex/flowstudio/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

const shutdownTimeout = 10 * time.Second

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	coordinator *execution.Coordinator
	gateway     *gateway.Gateway
	hub         *notify.Hub
	validate    *validator.Validate

	executions *services.Execution
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	coordinator *execution.Coordinator,
	gw *gateway.Gateway,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		coordinator: coordinator,
		gateway:     gw,
		hub:         notify.NewHub(logger),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		executions:  services.NewExecution(persistence, coordinator, logger),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		services.NewFlow(a.persistence),
		a.executions,
		services.NewPublishing(a.gateway),
		a.validate,
		a.registry,
	)

	app := fiber.New(fiber.Config{AppName: "flowstudio"})
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return a.persistence.HealthCheck(c.Context()) == nil
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("flowstudio API")
	})

	handlers.Register(app)

	return app
}

// Start serves the REST API on port and execution events on wsPort until ctx
// is cancelled. In-flight background runs are awaited before returning.
func (a *API) Start(ctx context.Context, port, wsPort int) error {
	err := a.hub.Subscribe(a.eventBus)
	if err != nil {
		return err
	}

	err = a.eventBus.Subscribe(ctx)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", a.hub)

	wsServer := &http.Server{
		Addr:              ":" + strconv.Itoa(wsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info("WebSocket server listening", "port", wsPort)

		err := wsServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("WebSocket server stopped", "error", err)
		}
	}()

	app := a.App()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		a.hub.Close()

		err := wsServer.Shutdown(shutdownCtx)
		if err != nil {
			a.logger.Error("Failed to shut down WebSocket server", "error", err)
		}

		err = app.ShutdownWithContext(shutdownCtx)
		if err != nil {
			a.logger.Error("Failed to shut down API server", "error", err)
		}
	}()

	err = app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})

	a.executions.Wait()
	a.gateway.Shutdown(context.WithoutCancel(ctx))

	return err
}
