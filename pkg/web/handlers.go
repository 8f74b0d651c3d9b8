package web

import (
	"context"
	"sort"
	"strconv"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// ExecutionController is the slice of the orchestrator exposed over HTTP.
type ExecutionController interface {
	StartExecution(ctx context.Context, workflowID, triggerNodeID string, triggerData map[string]any) (*models.Execution, error)
	Cancel(ctx context.Context, executionID, cancelledBy, reason string) error
	RetryFromNode(ctx context.Context, executionID, nodeID string) error
}

type Handlers struct {
	store       persistence.Persistence
	controller  ExecutionController
	callbacks   CallbackSink
	validator   *validator.Validate
	callbackCfg CallbackConfig
}

func NewHandlers(store persistence.Persistence, controller ExecutionController, callbacks CallbackSink, validate *validator.Validate) *Handlers {
	return &Handlers{
		store:      store,
		controller: controller,
		callbacks:  callbacks,
		validator:  validate,
	}
}

func (h *Handlers) ListExecutions(c fiber.Ctx) error {
	opts := persistence.ListExecutionsOptions{
		WorkflowID: c.Query("workflow_id"),
		Limit:      50,
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.ExecutionStatus(statusStr)
		opts.Status = &status
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return badRequest(c, "limit must be a positive integer")
		}

		opts.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return badRequest(c, "offset must be a non-negative integer")
		}

		opts.Offset = offset
	}

	executions, err := h.store.ExecutionRepository().ListExecutions(c.Context(), opts)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": executions,
		"pagination": fiber.Map{
			"limit":  opts.Limit,
			"offset": opts.Offset,
		},
	})
}

func (h *Handlers) GetExecution(c fiber.Ctx) error {
	exec, err := h.store.ExecutionRepository().ExecutionByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(exec)
}

// GetExecutionNodes returns the node execution audit trail in sequence order.
func (h *Handlers) GetExecutionNodes(c fiber.Ctx) error {
	id := c.Params("id")

	if _, err := h.store.ExecutionRepository().ExecutionByID(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	nodes, err := h.store.NodeExecutionRepository().NodeExecutionsByExecution(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"execution_id": id, "nodes": nodes})
}

// GetExecutionContext returns the durable context snapshot of an execution.
func (h *Handlers) GetExecutionContext(c fiber.Ctx) error {
	exec, err := h.store.ExecutionRepository().ExecutionByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{
		"execution_id": exec.ID,
		"workflow_id":  exec.WorkflowID,
		"status":       exec.Status,
		"context":      exec.ContextSnapshot,
	})
}

// GetExecutionReplay reconstructs the execution step by step from the audit
// trail, re-deriving the context at each step by folding the preceding node
// outputs. Purely derived data: replay never touches control flow.
func (h *Handlers) GetExecutionReplay(c fiber.Ctx) error {
	id := c.Params("id")

	exec, err := h.store.ExecutionRepository().ExecutionByID(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	nodes, err := h.store.NodeExecutionRepository().NodeExecutionsByExecution(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Sequence < nodes[j].Sequence })

	outputs := make(map[string]any)
	steps := make([]ReplayStep, 0, len(nodes))

	for _, ne := range nodes {
		step := replayStepFrom(ne)

		if ne.Status == models.NodeExecutionStatusSucceeded && ne.Output != nil {
			outputs[ne.NodeID] = ne.Output
		}

		step.Context = make(map[string]any, len(outputs))
		for nodeID, output := range outputs {
			step.Context[nodeID] = output
		}

		steps = append(steps, step)
	}

	return c.JSON(fiber.Map{
		"execution_id": exec.ID,
		"workflow_id":  exec.WorkflowID,
		"status":       exec.Status,
		"steps":        steps,
	})
}

func (h *Handlers) StartExecution(c fiber.Ctx) error {
	var req StartExecutionRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	exec, err := h.controller.StartExecution(c.Context(), req.WorkflowID, req.TriggerNodeID, req.TriggerData)
	if err != nil {
		if exec != nil {
			// Execution was created; the drive failed afterwards and the
			// failure is recorded on the execution itself.
			return c.Status(fiber.StatusCreated).JSON(exec)
		}

		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(exec)
}

func (h *Handlers) CancelExecution(c fiber.Ctx) error {
	var req CancelExecutionRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.controller.Cancel(c.Context(), c.Params("id"), req.CancelledBy, req.Reason); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *Handlers) RetryExecution(c fiber.Ctx) error {
	var req RetryExecutionRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.controller.RetryFromNode(c.Context(), c.Params("id"), req.NodeID); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *Handlers) HealthCheck(c fiber.Ctx) error {
	if err := h.store.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}
