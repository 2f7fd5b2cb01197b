package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketPrice is the cached quote for one symbol
type MarketPrice struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Age returns how old the quote is at the given instant
func (p *MarketPrice) Age(now time.Time) time.Duration {
	return now.Sub(p.UpdatedAt)
}

// Quote is what a QuoteSource returns for a symbol
type Quote struct {
	Price         decimal.Decimal
	PreviousClose decimal.Decimal
}
