package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InstrumentClass separates equities from futures/options in the summary
type InstrumentClass string

// InstrumentClass constants
const (
	InstrumentEquity     InstrumentClass = "EQUITY"
	InstrumentDerivative InstrumentClass = "DERIVATIVE"
)

// PriceSource tells where a row's current price came from
type PriceSource string

// PriceSource constants
const (
	PriceSourceLive   PriceSource = "LIVE"   // market price cache
	PriceSourceBroker PriceSource = "BROKER" // last price reported by the broker at sync
)

// NetPosition is the per-symbol aggregate across brokers and position types
type NetPosition struct {
	Symbol               string                     `json:"symbol"`
	InstrumentClass      InstrumentClass            `json:"instrument_class"`
	BrokerQuantities     map[Broker]decimal.Decimal `json:"broker_quantities"`
	TotalQuantity        decimal.Decimal            `json:"total_quantity"`
	AverageBuyPrice      decimal.Decimal            `json:"average_buy_price"`
	CurrentPrice         decimal.Decimal            `json:"current_price"`
	PreviousClose        decimal.Decimal            `json:"previous_close"`
	PriceAvailable       bool                       `json:"price_available"`
	PriceSource          PriceSource                `json:"price_source,omitempty"`
	CurrentValue         decimal.Decimal            `json:"current_value"`
	InvestedValue        decimal.Decimal            `json:"invested_value"`
	UnrealizedPnL        decimal.Decimal            `json:"unrealized_pnl"`
	UnrealizedPnLPercent decimal.Decimal            `json:"unrealized_pnl_percent"`
	DayGain              decimal.Decimal            `json:"day_gain"`
	DayGainPercent       decimal.Decimal            `json:"day_gain_percent"`
	Contract             *ContractInfo              `json:"contract,omitempty"`
	Lots                 *decimal.Decimal           `json:"lots,omitempty"` // derivatives only, display
}

// OptionType of a derivative contract
type OptionType string

// OptionType constants
const (
	ContractFuture OptionType = "FUT"
	ContractCall   OptionType = "CE"
	ContractPut    OptionType = "PE"
)

// ContractInfo is the structured form of a futures/options trading symbol
type ContractInfo struct {
	Underlying string          `json:"underlying"`
	Expiry     *time.Time      `json:"expiry,omitempty"`
	Strike     decimal.Decimal `json:"strike"`
	Type       OptionType      `json:"type,omitempty"`
	LotSize    int64           `json:"lot_size"`
	Parsed     bool            `json:"parsed"`
}

// PortfolioTotals are the portfolio-level rollups.
// Value, cost and P&L cover priced rows only, so CurrentValue - InvestedValue
// equals UnrealizedPnL; the cost of rows without any price is reported apart.
type PortfolioTotals struct {
	CurrentValue          decimal.Decimal `json:"current_value"`
	InvestedValue         decimal.Decimal `json:"invested_value"`
	UnrealizedPnL         decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLPercent  decimal.Decimal `json:"unrealized_pnl_percent"`
	DayGain               decimal.Decimal `json:"day_gain"`
	DayGainPercent        decimal.Decimal `json:"day_gain_percent"`
	UnpricedInvestedValue decimal.Decimal `json:"unpriced_invested_value"`
	UnpricedRows          int             `json:"unpriced_rows"`
}

// PortfolioSummary is the consolidated view for one user
type PortfolioSummary struct {
	UserID       uuid.UUID       `json:"user_id"`
	Totals       PortfolioTotals `json:"totals"`
	Holdings     []NetPosition   `json:"holdings"`
	Derivatives  []NetPosition   `json:"derivatives"`
	LastSyncedAt *time.Time      `json:"last_synced_at,omitempty"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

// BrokerStatus describes a user's connection to one broker
type BrokerStatus struct {
	Broker             Broker     `json:"broker"`
	IsActive           bool       `json:"is_active"`
	HasCredentials     bool       `json:"has_credentials"`
	HasValidToken      bool       `json:"has_valid_token"`
	ConnectionStatus   string     `json:"connection_status"`
	LastSuccessfulSync *time.Time `json:"last_successful_sync,omitempty"`
}

// RefreshSummary is the result of a user-triggered refresh
type RefreshSummary struct {
	Accepted         bool              `json:"accepted"`
	TriggeredBrokers []Broker          `json:"triggered_brokers"`
	SkippedBrokers   []Broker          `json:"skipped_brokers"`
	SkipReasons      map[Broker]string `json:"skip_reasons,omitempty"`
	Results          []*SyncLog        `json:"results,omitempty"`
}
