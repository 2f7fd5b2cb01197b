package http

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"stockfolio/internal/delivery/http/dto"
	"stockfolio/internal/domain"
	"stockfolio/internal/usecase"
)

// SweepRunner runs a fleet-wide sweep on demand
type SweepRunner interface {
	RunNow(ctx context.Context, kind usecase.SweepKind) (usecase.SweepResult, error)
}

// BrokerHealth probes every registered broker bridge
type BrokerHealth interface {
	HealthCheck(ctx context.Context) map[domain.Broker]error
}

// AdminHandler handles operator requests
type AdminHandler struct {
	sweeps  SweepRunner
	brokers BrokerHealth
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(sweeps SweepRunner, brokers BrokerHealth) *AdminHandler {
	return &AdminHandler{sweeps: sweeps, brokers: brokers}
}

// TriggerSweep runs a market-hours or off-hours sweep now
// POST /api/admin/sync/trigger?kind=market
func (h *AdminHandler) TriggerSweep(c echo.Context) error {
	var req dto.SweepTriggerRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request body")
	}
	if req.Kind == "" {
		req.Kind = c.QueryParam("kind")
	}

	kind, err := usecase.ParseSweepKind(req.Kind)
	if err != nil {
		return BadRequestResponse(c, err.Error())
	}

	// The sweep outlives a dropped admin connection
	result, err := h.sweeps.RunNow(context.WithoutCancel(c.Request().Context()), kind)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to run sweep", err)
	}

	message := "Sweep completed"
	if result.Skipped {
		message = "Sweep skipped: " + result.SkipReason
	}
	return SuccessMessageResponse(c, message, result)
}

// GetBrokerHealth reports reachability of each broker bridge
// GET /api/admin/brokers/health
func (h *AdminHandler) GetBrokerHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	results := h.brokers.HealthCheck(ctx)
	bridges := make(map[domain.Broker]string, len(results))
	healthy := 0
	for broker, err := range results {
		if err != nil {
			bridges[broker] = err.Error()
			continue
		}
		bridges[broker] = "ok"
		healthy++
	}

	return SuccessResponse(c, map[string]interface{}{
		"bridges": bridges,
		"healthy": healthy,
		"total":   len(results),
	})
}
