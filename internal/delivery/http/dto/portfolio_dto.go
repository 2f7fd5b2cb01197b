package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"stockfolio/internal/domain"
)

// SyncLogOutput represents a sync attempt in API responses
type SyncLogOutput struct {
	ID               string `json:"id"`
	Broker           string `json:"broker"`
	Status           string `json:"status"`
	Message          string `json:"message"`
	DurationMs       int64  `json:"duration_ms"`
	HoldingsChanged  int    `json:"holdings_changed"`
	PositionsChanged int    `json:"positions_changed"`
	Timestamp        string `json:"timestamp"`
}

// NewSyncLogOutput converts a domain sync log
func NewSyncLogOutput(l *domain.SyncLog) SyncLogOutput {
	return SyncLogOutput{
		ID:               l.ID.String(),
		Broker:           string(l.Broker),
		Status:           string(l.Status),
		Message:          l.Message,
		DurationMs:       l.Duration.Milliseconds(),
		HoldingsChanged:  l.HoldingsChanged,
		PositionsChanged: l.PositionsChanged,
		Timestamp:        l.Timestamp.Format(time.RFC3339),
	}
}

// NewSyncLogOutputs converts a list, never returning nil
func NewSyncLogOutputs(logs []*domain.SyncLog) []SyncLogOutput {
	out := make([]SyncLogOutput, 0, len(logs))
	for _, l := range logs {
		out = append(out, NewSyncLogOutput(l))
	}
	return out
}

// PriceOutput represents a cached quote in API responses
type PriceOutput struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	UpdatedAt     string          `json:"updated_at"`
	AgeSeconds    int64           `json:"age_seconds"`
}

// NewPriceOutput converts a domain price as seen at now
func NewPriceOutput(p *domain.MarketPrice, now time.Time) PriceOutput {
	return PriceOutput{
		Symbol:        p.Symbol,
		Price:         p.Price,
		PreviousClose: p.PreviousClose,
		UpdatedAt:     p.UpdatedAt.Format(time.RFC3339),
		AgeSeconds:    int64(p.Age(now).Seconds()),
	}
}

// SweepTriggerRequest selects which sweep an admin runs
type SweepTriggerRequest struct {
	Kind string `json:"kind"` // "market" or "offhours"; also accepted as ?kind=
}
