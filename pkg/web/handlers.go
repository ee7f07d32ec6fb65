// Package web provides HTTP handlers and REST API endpoints for flow management.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/flowstudio/pkg/gateway"
	"github.com/dukex/flowstudio/pkg/registry"
	"github.com/dukex/flowstudio/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// UserIDHeader identifies the caller when the body does not name a user.
const UserIDHeader = "X-User-ID"

type APIHandlers struct {
	flowService       *services.Flow
	executionService  *services.Execution
	publishingService *services.Publishing
	validator         *validator.Validate
	registry          *registry.Registry
}

func NewAPIHandlers(
	flowService *services.Flow,
	executionService *services.Execution,
	publishingService *services.Publishing,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		flowService:       flowService,
		executionService:  executionService,
		publishingService: publishingService,
		validator:         validator,
		registry:          registry,
	}
}

// Register mounts every route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/components", h.GetComponents)

	f := router.Group("/flows")
	f.Get("/", h.GetFlows)
	f.Post("/", h.CreateFlow)
	f.Get("/:id", h.GetFlow)
	f.Put("/:id", h.UpdateFlow)
	f.Delete("/:id", h.DeleteFlow)

	f.Post("/:id/executions", h.StartExecution)
	f.Get("/:id/executions", h.GetFlowExecutions)

	f.Post("/:id/publish", h.PublishFlow)
	f.Delete("/:id/v:version/publish", h.UnpublishFlow)
	f.Get("/:id/v:version/status", h.GetPublishedStatus)

	e := router.Group("/executions")
	e.Get("/:id", h.GetExecution)
	e.Get("/:id/components", h.GetExecutionComponents)
	e.Get("/:id/logs", h.GetExecutionLogs)
	e.Post("/:id/cancel", h.CancelExecution)

	router.Get("/published", h.GetPublished)
	router.Post("/api/flows/:id/v:version/execute", h.ExecutePublished)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.flowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "FlowStudio API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "FlowStudio API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetComponents(c fiber.Ctx) error {
	components := h.registry.Components()

	response := make([]ComponentResponse, 0, len(components))
	for _, component := range components {
		response = append(response, TransformComponentResponse(component))
	}

	return c.JSON(response)
}

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	flows, err := h.flowService.List(c.Context(), c.Query("owner_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flows)
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	flow, err := h.flowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var req CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	flow := req.Flow()
	if flow.OwnerID == "" {
		flow.OwnerID = c.Get(UserIDHeader)
	}

	created, err := h.flowService.Create(c.Context(), flow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateFlow(c fiber.Ctx) error {
	var req UpdateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.flowService.Update(c.Context(), c.Params("id"), req.Flow())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	err := h.flowService.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// StartExecution runs a flow in the background and answers 202 with the
// pending record, or runs it to completion first with ?wait=true.
func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	var req StartExecutionRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	wait := false

	if raw := c.Query("wait"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "Invalid query parameters: wait must be a boolean")
		}

		wait = parsed
	}

	userID := req.UserID
	if userID == "" {
		userID = c.Get(UserIDHeader)
	}

	record, err := h.executionService.Start(c.Context(), c.Params("id"), services.StartRequest{
		UserID: userID,
		Input:  req.Input,
		Config: req.Config,
		Wait:   wait,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	if wait {
		return c.JSON(record)
	}

	return c.Status(fiber.StatusAccepted).JSON(record)
}

func (h *APIHandlers) GetFlowExecutions(c fiber.Ctx) error {
	records, err := h.executionService.ListByFlow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(records)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	record, err := h.executionService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) GetExecutionComponents(c fiber.Ctx) error {
	records, err := h.executionService.Components(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(records)
}

func (h *APIHandlers) GetExecutionLogs(c fiber.Ctx) error {
	logs, err := h.executionService.Logs(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(logs)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	record, err := h.executionService.Cancel(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) PublishFlow(c fiber.Ctx) error {
	var req PublishRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	publication, err := h.publishingService.Publish(c.Context(), c.Params("id"), req.Version, gateway.PublishOptions{
		IsPublic:     req.IsPublic,
		RateLimit:    req.RateLimit,
		MaxInstances: req.MaxInstances,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Flow published successfully",
		"endpoint": publication.Endpoint,
		"flow_id":  publication.FlowID,
		"version":  publication.Version,
	})
}

func (h *APIHandlers) UnpublishFlow(c fiber.Ctx) error {
	err := h.publishingService.Unpublish(c.Context(), c.Params("id"), c.Params("version"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetPublished(c fiber.Ctx) error {
	return c.JSON(h.publishingService.List())
}

func (h *APIHandlers) GetPublishedStatus(c fiber.Ctx) error {
	status, err := h.publishingService.Status(c.Params("id"), c.Params("version"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(status)
}

// ExecutePublished relays the body to the worker serving the flow version and
// answers with the worker's response.
func (h *APIHandlers) ExecutePublished(c fiber.Ctx) error {
	input := map[string]any{}

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&input); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	result, err := h.publishingService.Execute(c.Context(), c.Params("id"), c.Params("version"), input)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}
