package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PositionType distinguishes how a position settles
type PositionType string

// PositionType constants
const (
	PositionDelivery   PositionType = "DELIVERY"   // carried into holdings
	PositionIntraday   PositionType = "INTRADAY"   // squared off the same day
	PositionDerivative PositionType = "DERIVATIVE" // futures and options
)

// PositionTypeForProduct maps common broker product codes to a PositionType
func PositionTypeForProduct(product string) PositionType {
	switch NormalizeSymbol(product) {
	case "CNC", "DELIVERY", "D", "CARRYFORWARD":
		return PositionDelivery
	case "NRML", "MARGIN", "FNO", "DERIVATIVE":
		return PositionDerivative
	default:
		return PositionIntraday
	}
}

// CachedPosition is an open position mirrored from a broker
type CachedPosition struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	Broker       Broker          `json:"broker"`
	Symbol       string          `json:"symbol"`
	Exchange     string          `json:"exchange,omitempty"`
	PositionType PositionType    `json:"position_type"`
	Product      string          `json:"product,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"` // units, negative for shorts
	AveragePrice decimal.Decimal `json:"average_price"`
	LastPrice    decimal.Decimal `json:"last_price"`
	ClosePrice   decimal.Decimal `json:"close_price"`
	PnL          decimal.Decimal `json:"pnl"`
	Checksum     string          `json:"checksum"`
	LastUpdated  time.Time       `json:"last_updated"`
}

// IsDerivative reports whether the position is a futures/options contract
func (p *CachedPosition) IsDerivative() bool {
	return p.PositionType == PositionDerivative
}

// IsDeliveryEligible reports whether the position counts towards carried cost basis
func (p *CachedPosition) IsDeliveryEligible() bool {
	return p.PositionType == PositionDelivery
}

func (p *CachedPosition) RecordKey() string { return NormalizeSymbol(p.Symbol) }

func (p *CachedPosition) ComputeChecksum() string {
	return contentChecksum(
		NormalizeSymbol(p.Symbol),
		canonical(p.Quantity),
		canonical(p.AveragePrice),
		string(p.PositionType),
	)
}

func (p *CachedPosition) StoredChecksum() string { return p.Checksum }

func (p *CachedPosition) RecordID() uuid.UUID { return p.ID }

func (p *CachedPosition) Stamp(id uuid.UUID, checksum string, at time.Time) {
	p.ID = id
	p.Symbol = NormalizeSymbol(p.Symbol)
	p.Checksum = checksum
	p.LastUpdated = at
}
