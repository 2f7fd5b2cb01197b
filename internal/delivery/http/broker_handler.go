package http

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"stockfolio/internal/domain"
	"stockfolio/internal/middleware"
)

// BrokerConnections reads and ends a user's broker connections
type BrokerConnections interface {
	GetBrokerStatus(ctx context.Context, userID uuid.UUID, broker domain.Broker) (*domain.BrokerStatus, error)
	DisconnectBroker(ctx context.Context, userID uuid.UUID, broker domain.Broker) error
}

// BrokerHandler handles per-broker connection requests
type BrokerHandler struct {
	connections BrokerConnections
}

// NewBrokerHandler creates a new broker handler
func NewBrokerHandler(connections BrokerConnections) *BrokerHandler {
	return &BrokerHandler{connections: connections}
}

// GetStatus describes the user's connection to one broker
// GET /api/brokers/:broker/status
func (h *BrokerHandler) GetStatus(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "Unauthorized")
	}
	broker, err := domain.ParseBroker(c.Param("broker"))
	if err != nil {
		return BadRequestResponse(c, err.Error())
	}

	status, err := h.connections.GetBrokerStatus(c.Request().Context(), userID, broker)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to get broker status", err)
	}
	return SuccessResponse(c, status)
}

// Disconnect deactivates the account and clears its cached rows
// POST /api/brokers/:broker/disconnect
func (h *BrokerHandler) Disconnect(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "Unauthorized")
	}
	broker, err := domain.ParseBroker(c.Param("broker"))
	if err != nil {
		return BadRequestResponse(c, err.Error())
	}

	if err := h.connections.DisconnectBroker(c.Request().Context(), userID, broker); err != nil {
		return DomainErrorResponse(c, err, "Failed to disconnect broker")
	}

	return SuccessMessageResponse(c, "Broker disconnected", map[string]interface{}{
		"broker": broker,
	})
}
