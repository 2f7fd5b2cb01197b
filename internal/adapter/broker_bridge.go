package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"stockfolio/internal/domain"
)

// ErrBrokerUnauthorized is returned when the bridge rejects the account's token
var ErrBrokerUnauthorized = errors.New("broker rejected credentials")

// BrokerBridge implements BrokerClient against a broker bridge service.
// The bridge owns the broker's native API and credentials; we only see normalized JSON.
type BrokerBridge struct {
	broker     domain.Broker
	baseURL    string
	httpClient *http.Client
}

// NewBrokerBridge creates a new bridge client for one broker
func NewBrokerBridge(broker domain.Broker, baseURL string, timeout time.Duration) *BrokerBridge {
	return &BrokerBridge{
		broker:  broker,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// bridgeHolding is one row of GET /holdings
type bridgeHolding struct {
	TradingSymbol string          `json:"tradingsymbol"`
	Exchange      string          `json:"exchange"`
	ISIN          string          `json:"isin"`
	Quantity      decimal.Decimal `json:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	LastPrice     decimal.Decimal `json:"last_price"`
	ClosePrice    decimal.Decimal `json:"close_price"`
	PnL           decimal.Decimal `json:"pnl"`
	DayChange     decimal.Decimal `json:"day_change"`
}

// bridgePosition is one row of GET /positions
type bridgePosition struct {
	TradingSymbol string          `json:"tradingsymbol"`
	Exchange      string          `json:"exchange"`
	Product       string          `json:"product"`
	Quantity      decimal.Decimal `json:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	LastPrice     decimal.Decimal `json:"last_price"`
	ClosePrice    decimal.Decimal `json:"close_price"`
	PnL           decimal.Decimal `json:"pnl"`
}

// FetchHoldings fetches the account's delivery holdings
func (b *BrokerBridge) FetchHoldings(ctx context.Context, account *domain.BrokerAccount) ([]*domain.CachedHolding, error) {
	var resp struct {
		Holdings []bridgeHolding `json:"holdings"`
	}
	if err := b.get(ctx, "/holdings", account, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch %s holdings: %w", b.broker, err)
	}

	holdings := make([]*domain.CachedHolding, 0, len(resp.Holdings))
	for _, h := range resp.Holdings {
		holdings = append(holdings, &domain.CachedHolding{
			UserID:       account.UserID,
			Broker:       b.broker,
			Symbol:       domain.NormalizeSymbol(h.TradingSymbol),
			Exchange:     h.Exchange,
			ISIN:         h.ISIN,
			Quantity:     h.Quantity,
			AveragePrice: h.AveragePrice,
			LastPrice:    h.LastPrice,
			ClosePrice:   h.ClosePrice,
			PnL:          h.PnL,
			DayChange:    h.DayChange,
		})
	}

	return holdings, nil
}

// FetchPositions fetches the account's open net positions; squared-off rows are dropped
func (b *BrokerBridge) FetchPositions(ctx context.Context, account *domain.BrokerAccount) ([]*domain.CachedPosition, error) {
	var resp struct {
		Positions []bridgePosition `json:"positions"`
	}
	if err := b.get(ctx, "/positions", account, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch %s positions: %w", b.broker, err)
	}

	positions := make([]*domain.CachedPosition, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		if p.Quantity.IsZero() {
			continue
		}
		positions = append(positions, &domain.CachedPosition{
			UserID:       account.UserID,
			Broker:       b.broker,
			Symbol:       domain.NormalizeSymbol(p.TradingSymbol),
			Exchange:     p.Exchange,
			PositionType: domain.PositionTypeForProduct(p.Product),
			Product:      p.Product,
			Quantity:     p.Quantity,
			AveragePrice: p.AveragePrice,
			LastPrice:    p.LastPrice,
			ClosePrice:   p.ClosePrice,
			PnL:          p.PnL,
		})
	}

	return positions, nil
}

// HealthCheck checks if the bridge is reachable
func (b *BrokerBridge) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to check %s bridge health: %w", b.broker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s bridge is unhealthy: status=%d", b.broker, resp.StatusCode)
	}

	return nil
}

func (b *BrokerBridge) get(ctx context.Context, path string, account *domain.BrokerAccount, out any) error {
	query := url.Values{}
	query.Set("account_id", account.ID.String())
	query.Set("user_id", account.UserID.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call bridge: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrBrokerUnauthorized
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("bridge returned error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
