package http

import (
	"context"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"stockfolio/internal/delivery/http/dto"
	"stockfolio/internal/domain"
)

// PriceLookup is the single-symbol read side of the price cache
type PriceLookup interface {
	GetPrice(ctx context.Context, symbol string) (*domain.MarketPrice, error)
}

// PriceHandler serves cached market prices
type PriceHandler struct {
	prices PriceLookup
	now    func() time.Time
}

// NewPriceHandler creates a new price handler
func NewPriceHandler(prices PriceLookup) *PriceHandler {
	return &PriceHandler{prices: prices, now: time.Now}
}

// GetPrice returns the cached (or freshly fetched) quote for a symbol
// GET /api/prices/:symbol
func (h *PriceHandler) GetPrice(c echo.Context) error {
	symbol := strings.TrimSpace(c.Param("symbol"))
	if symbol == "" {
		return BadRequestResponse(c, "symbol is required")
	}

	price, err := h.prices.GetPrice(c.Request().Context(), symbol)
	if err != nil {
		return DomainErrorResponse(c, err, "Failed to get price")
	}
	return SuccessResponse(c, dto.NewPriceOutput(price, h.now()))
}
