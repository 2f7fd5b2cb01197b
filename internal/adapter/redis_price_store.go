package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"stockfolio/internal/domain"
)

const priceKeyPrefix = "stockfolio:price:"

// RedisPriceStore keeps one JSON value per symbol with a TTL.
// The TTL must exceed the stale-serve bound or the fallback never finds a row.
type RedisPriceStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisPriceStore creates a new Redis price store
func NewRedisPriceStore(rdb *redis.Client, ttl time.Duration) *RedisPriceStore {
	return &RedisPriceStore{rdb: rdb, ttl: ttl}
}

// Get returns domain.ErrNotFound when the key is absent or expired
func (s *RedisPriceStore) Get(ctx context.Context, symbol string) (*domain.MarketPrice, error) {
	raw, err := s.rdb.Get(ctx, priceKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached price: %w", err)
	}

	var price domain.MarketPrice
	if err := json.Unmarshal(raw, &price); err != nil {
		return nil, fmt.Errorf("failed to decode cached price: %w", err)
	}
	return &price, nil
}

// GetMany reads every symbol with one MGET
func (s *RedisPriceStore) GetMany(ctx context.Context, symbols []string) (map[string]*domain.MarketPrice, error) {
	out := make(map[string]*domain.MarketPrice, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	keys := make([]string, len(symbols))
	for i, symbol := range symbols {
		keys[i] = priceKey(symbol)
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cached prices: %w", err)
	}

	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var price domain.MarketPrice
		if err := json.Unmarshal([]byte(raw), &price); err != nil {
			continue
		}
		out[price.Symbol] = &price
	}
	return out, nil
}

// Upsert writes the row and resets its TTL
func (s *RedisPriceStore) Upsert(ctx context.Context, price *domain.MarketPrice) error {
	p := *price
	p.Symbol = domain.NormalizeSymbol(p.Symbol)

	raw, err := json.Marshal(&p)
	if err != nil {
		return fmt.Errorf("failed to encode price: %w", err)
	}

	if err := s.rdb.Set(ctx, priceKey(p.Symbol), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache price: %w", err)
	}
	return nil
}

func priceKey(symbol string) string {
	return priceKeyPrefix + domain.NormalizeSymbol(symbol)
}
