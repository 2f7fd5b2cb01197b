package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SyncedRecord is a cached broker record that the reconciler can diff and upsert
type SyncedRecord interface {
	// RecordKey is the natural key inside one (user, broker) set
	RecordKey() string
	// ComputeChecksum hashes the fields that carry financial meaning
	ComputeChecksum() string
	// StoredChecksum is the checksum persisted with the record
	StoredChecksum() string
	RecordID() uuid.UUID
	// Stamp assigns identity, checksum and update time before a write
	Stamp(id uuid.UUID, checksum string, at time.Time)
}

// CachedHolding is a delivery holding mirrored from a broker
type CachedHolding struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	Broker       Broker          `json:"broker"`
	Symbol       string          `json:"symbol"`
	Exchange     string          `json:"exchange,omitempty"`
	ISIN         string          `json:"isin,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	LastPrice    decimal.Decimal `json:"last_price"`  // broker-reported at sync time
	ClosePrice   decimal.Decimal `json:"close_price"` // broker-reported previous close
	PnL          decimal.Decimal `json:"pnl"`
	DayChange    decimal.Decimal `json:"day_change"`
	Checksum     string          `json:"checksum"`
	LastUpdated  time.Time       `json:"last_updated"`
}

// NormalizeSymbol upper-cases and trims a trading symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (h *CachedHolding) RecordKey() string { return NormalizeSymbol(h.Symbol) }

func (h *CachedHolding) ComputeChecksum() string {
	return contentChecksum(
		NormalizeSymbol(h.Symbol),
		canonical(h.Quantity),
		canonical(h.AveragePrice),
	)
}

func (h *CachedHolding) StoredChecksum() string { return h.Checksum }

func (h *CachedHolding) RecordID() uuid.UUID { return h.ID }

func (h *CachedHolding) Stamp(id uuid.UUID, checksum string, at time.Time) {
	h.ID = id
	h.Symbol = NormalizeSymbol(h.Symbol)
	h.Checksum = checksum
	h.LastUpdated = at
}
