package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cascadehq/cascade/pkg/aggregation"
	"github.com/cascadehq/cascade/pkg/fieldpath"
	"github.com/gofiber/fiber/v3"
)

// Header names external systems use to address a suspended execution.
const (
	HeaderExecutionID   = "X-Execution-ID"
	HeaderCorrelationID = "X-Correlation-ID"
)

// CallbackSink records API-response callbacks against their wait states.
// Satisfied by the aggregation service.
type CallbackSink interface {
	HandleAPIResponse(ctx context.Context, executionID, correlationID string, payload map[string]any) error
}

// CallbackConfig sets the body field paths tried when the identifying
// headers are absent.
type CallbackConfig struct {
	CorrelationIDPath string
	ExecutionIDPath   string
}

// DefaultCallbackConfig matches the documented payload contract.
func DefaultCallbackConfig() CallbackConfig {
	return CallbackConfig{
		CorrelationIDPath: "correlation_id",
		ExecutionIDPath:   "execution_id",
	}
}

func callbackError(c fiber.Ctx, status int, detail string) error {
	return c.Status(status).JSON(CallbackResponse{Success: false, Error: detail})
}

// HandleCallback ingests an HTTP callback for a suspended execution. Both
// identifiers are resolved header-first, then from the configured body
// paths; a request missing either one is rejected. The execution ID must
// match the matched wait state's owner.
func (h *Handlers) HandleCallback(c fiber.Ctx) error {
	var payload map[string]any
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &payload); err != nil {
			return callbackError(c, fiber.StatusBadRequest, "request body must be a JSON object")
		}
	}

	correlationID := c.Get(HeaderCorrelationID)
	if correlationID == "" {
		correlationID = h.callbackField(payload, h.callbackConfig().CorrelationIDPath)
	}

	if correlationID == "" {
		return callbackError(c, fiber.StatusBadRequest,
			fmt.Sprintf("callback carries no correlation ID: set the %s header or the %s body field",
				HeaderCorrelationID, h.callbackConfig().CorrelationIDPath))
	}

	executionID := c.Get(HeaderExecutionID)
	if executionID == "" {
		executionID = h.callbackField(payload, h.callbackConfig().ExecutionIDPath)
	}

	if executionID == "" {
		return callbackError(c, fiber.StatusBadRequest,
			fmt.Sprintf("callback carries no execution ID: set the %s header or the %s body field",
				HeaderExecutionID, h.callbackConfig().ExecutionIDPath))
	}

	err := h.callbacks.HandleAPIResponse(c.Context(), executionID, correlationID, payload)

	switch {
	case err == nil:
		return c.JSON(CallbackResponse{Success: true})
	case errors.Is(err, aggregation.ErrNoMatchingWaitState):
		return callbackError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, aggregation.ErrWaitStateResolved):
		return callbackError(c, fiber.StatusConflict, err.Error())
	default:
		return callbackError(c, fiber.StatusInternalServerError, "failed to process callback")
	}
}

func (h *Handlers) callbackConfig() CallbackConfig {
	if h.callbackCfg == (CallbackConfig{}) {
		return DefaultCallbackConfig()
	}

	return h.callbackCfg
}

// SetCallbackConfig overrides the body field paths used by the callback
// ingress.
func (h *Handlers) SetCallbackConfig(cfg CallbackConfig) {
	h.callbackCfg = cfg
}

func (h *Handlers) callbackField(payload map[string]any, path string) string {
	if payload == nil || path == "" {
		return ""
	}

	value, err := fieldpath.Lookup(path, payload)
	if err != nil {
		return ""
	}

	s, ok := value.(string)
	if !ok {
		return ""
	}

	return s
}
