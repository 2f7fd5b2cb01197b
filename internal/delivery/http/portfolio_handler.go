package http

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"stockfolio/internal/delivery/http/dto"
	"stockfolio/internal/domain"
	"stockfolio/internal/middleware"
)

// PortfolioReader is the read side of the aggregation layer
type PortfolioReader interface {
	MergeHoldingsAndPositions(ctx context.Context, userID uuid.UUID) ([]domain.NetPosition, error)
	GetPortfolioSummary(ctx context.Context, userID uuid.UUID) (*domain.PortfolioSummary, error)
	GetSyncHistory(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.SyncLog, error)
}

// RefreshTrigger starts a user-initiated sync
type RefreshTrigger interface {
	TriggerManualRefreshForUser(ctx context.Context, userID uuid.UUID) (*domain.RefreshSummary, error)
}

// PortfolioHandler handles portfolio requests for the authenticated user
type PortfolioHandler struct {
	portfolio PortfolioReader
	refresher RefreshTrigger
}

// NewPortfolioHandler creates a new portfolio handler
func NewPortfolioHandler(portfolio PortfolioReader, refresher RefreshTrigger) *PortfolioHandler {
	return &PortfolioHandler{portfolio: portfolio, refresher: refresher}
}

// Refresh syncs every active broker account of the user
// POST /api/portfolio/refresh
func (h *PortfolioHandler) Refresh(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "Unauthorized")
	}

	summary, err := h.refresher.TriggerManualRefreshForUser(c.Request().Context(), userID)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to refresh portfolio", err)
	}

	message := "Refresh completed"
	if !summary.Accepted {
		message = "No broker account could be refreshed"
	}
	return SuccessMessageResponse(c, message, summary)
}

// GetSummary returns the consolidated portfolio with totals
// GET /api/portfolio/summary
func (h *PortfolioHandler) GetSummary(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "Unauthorized")
	}

	summary, err := h.portfolio.GetPortfolioSummary(c.Request().Context(), userID)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to build portfolio summary", err)
	}
	return SuccessResponse(c, summary)
}

// GetNetPositions returns the merged equity rows
// GET /api/portfolio/net-positions
func (h *PortfolioHandler) GetNetPositions(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "Unauthorized")
	}

	rows, err := h.portfolio.MergeHoldingsAndPositions(c.Request().Context(), userID)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to merge positions", err)
	}
	return SuccessResponse(c, map[string]interface{}{
		"positions": rows,
		"count":     len(rows),
	})
}

// GetSyncLogs returns the user's recent sync attempts
// GET /api/sync/logs?limit=20
func (h *PortfolioHandler) GetSyncLogs(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "Unauthorized")
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return BadRequestResponse(c, "limit must be a non-negative integer")
		}
	}

	logs, err := h.portfolio.GetSyncHistory(c.Request().Context(), userID, limit)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to fetch sync history", err)
	}
	return SuccessResponse(c, map[string]interface{}{
		"logs":  dto.NewSyncLogOutputs(logs),
		"count": len(logs),
	})
}
