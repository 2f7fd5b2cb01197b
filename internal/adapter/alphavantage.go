package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockfolio/internal/domain"
)

// AlphaVantage implements QuoteSource with the GLOBAL_QUOTE endpoint
type AlphaVantage struct {
	baseURL    string
	apiKey     string
	suffix     string // exchange suffix appended to symbols, e.g. ".BSE"
	httpClient *http.Client
}

// NewAlphaVantage creates a new Alpha Vantage quote source
func NewAlphaVantage(baseURL, apiKey, suffix string, timeout time.Duration) *AlphaVantage {
	return &AlphaVantage{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		suffix:  suffix,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type globalQuoteResponse struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		PreviousClose string `json:"08. previous close"`
	} `json:"Global Quote"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

// Fetch returns the latest price and previous close for symbol
func (a *AlphaVantage) Fetch(ctx context.Context, symbol string) (*domain.Quote, error) {
	query := url.Values{}
	query.Set("function", "GLOBAL_QUOTE")
	query.Set("symbol", domain.NormalizeSymbol(symbol)+a.suffix)
	query.Set("apikey", a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/query?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create quote request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("quote API returned error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var result globalQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}

	// Rate limits and bad keys come back as 200 with a message field
	for _, msg := range []string{result.ErrorMessage, result.Note, result.Information} {
		if msg != "" {
			return nil, fmt.Errorf("quote API refused %s: %s", symbol, msg)
		}
	}

	if result.GlobalQuote.Price == "" {
		return nil, fmt.Errorf("quote API has no data for %s", symbol)
	}

	price, err := decimal.NewFromString(result.GlobalQuote.Price)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q for %s: %w", result.GlobalQuote.Price, symbol, err)
	}

	prevClose := decimal.Zero
	if result.GlobalQuote.PreviousClose != "" {
		prevClose, err = decimal.NewFromString(result.GlobalQuote.PreviousClose)
		if err != nil {
			return nil, fmt.Errorf("invalid previous close %q for %s: %w", result.GlobalQuote.PreviousClose, symbol, err)
		}
	}

	return &domain.Quote{Price: price, PreviousClose: prevClose}, nil
}
