package memory

import (
	"context"
	"sync"
	"time"

	"stockfolio/internal/domain"
)

// PriceStore is an in-memory domain.PriceStore and domain.PricePurger
type PriceStore struct {
	mu     sync.RWMutex
	prices map[string]domain.MarketPrice
}

// NewPriceStore creates an empty price store
func NewPriceStore() *PriceStore {
	return &PriceStore{prices: make(map[string]domain.MarketPrice)}
}

// Get returns domain.ErrNotFound when the symbol has no row
func (s *PriceStore) Get(_ context.Context, symbol string) (*domain.MarketPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[domain.NormalizeSymbol(symbol)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

// GetMany returns the rows that exist
func (s *PriceStore) GetMany(_ context.Context, symbols []string) (map[string]*domain.MarketPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*domain.MarketPrice, len(symbols))
	for _, symbol := range symbols {
		symbol = domain.NormalizeSymbol(symbol)
		if p, ok := s.prices[symbol]; ok {
			out[symbol] = &p
		}
	}
	return out, nil
}

// Upsert writes the row, replacing any previous one
func (s *PriceStore) Upsert(_ context.Context, price *domain.MarketPrice) error {
	s.mu.Lock()
	p := *price
	p.Symbol = domain.NormalizeSymbol(p.Symbol)
	s.prices[p.Symbol] = p
	s.mu.Unlock()
	return nil
}

// PurgeOlderThan drops rows last updated before cutoff
func (s *PriceStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for symbol, p := range s.prices {
		if p.UpdatedAt.Before(cutoff) {
			delete(s.prices, symbol)
			purged++
		}
	}
	return purged, nil
}
