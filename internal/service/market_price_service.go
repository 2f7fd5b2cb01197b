package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"stockfolio/internal/domain"
)

const fallbackReadTimeout = 2 * time.Second

var _ domain.PriceProvider = (*MarketPriceService)(nil)

// PriceCacheConfig holds the cache windows
type PriceCacheConfig struct {
	Freshness        time.Duration // rows younger than this are served without a fetch
	MaxStaleness     time.Duration // rows older than this are never served
	WarmupTimeout    time.Duration
	FetchTimeout     time.Duration // bounds one shared quote fetch
	FetchParallelism int
}

// MarketPriceService serves quotes from a time-bounded cache in front of a QuoteSource
type MarketPriceService struct {
	store  domain.PriceStore
	source domain.QuoteSource
	clock  MarketClock
	cfg    PriceCacheConfig
	group  singleflight.Group
	now    func() time.Time
	log    zerolog.Logger
}

// NewMarketPriceService creates a new MarketPriceService
func NewMarketPriceService(
	store domain.PriceStore,
	source domain.QuoteSource,
	clock MarketClock,
	cfg PriceCacheConfig,
	log zerolog.Logger,
) *MarketPriceService {
	if cfg.FetchParallelism <= 0 {
		cfg.FetchParallelism = 4
	}
	if cfg.WarmupTimeout <= 0 {
		cfg.WarmupTimeout = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &MarketPriceService{
		store:  store,
		source: source,
		clock:  clock,
		cfg:    cfg,
		now:    time.Now,
		log:    log.With().Str("component", "price_cache").Logger(),
	}
}

// GetPrice returns the cached quote while fresh, otherwise fetches and caches it
func (s *MarketPriceService) GetPrice(ctx context.Context, symbol string) (*domain.MarketPrice, error) {
	symbol = domain.NormalizeSymbol(symbol)

	cached, err := s.store.Get(ctx, symbol)
	switch {
	case err == nil && s.isFresh(cached):
		return cached, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Price cache read failed, fetching")
	}

	return s.FetchAndCachePrice(ctx, symbol)
}

// GetPrices reads all cached rows at once and fetches the missing or expired ones.
// Symbols that cannot be priced are omitted from the result.
func (s *MarketPriceService) GetPrices(ctx context.Context, symbols []string) map[string]*domain.MarketPrice {
	wanted := uniqueSymbols(symbols)
	result := make(map[string]*domain.MarketPrice, len(wanted))
	if len(wanted) == 0 {
		return result
	}

	cached, err := s.store.GetMany(ctx, wanted)
	if err != nil {
		s.log.Warn().Err(err).Int("symbols", len(wanted)).Msg("Bulk price cache read failed, fetching all")
		cached = nil
	}

	var missing []string
	for _, symbol := range wanted {
		if p, ok := cached[symbol]; ok && s.isFresh(p) {
			result[symbol] = p
			continue
		}
		missing = append(missing, symbol)
	}

	if len(missing) == 0 {
		return result
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.FetchParallelism)
	for _, symbol := range missing {
		g.Go(func() error {
			price, err := s.FetchAndCachePrice(ctx, symbol)
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", symbol).Msg("Price unavailable, omitting")
				return nil
			}
			mu.Lock()
			result[symbol] = price
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return result
}

// FetchAndCachePrice fetches a live quote and caches it. When the quote source
// fails, a cached row no older than MaxStaleness is served instead.
func (s *MarketPriceService) FetchAndCachePrice(ctx context.Context, symbol string) (*domain.MarketPrice, error) {
	symbol = domain.NormalizeSymbol(symbol)

	ch := s.group.DoChan(symbol, func() (interface{}, error) {
		// Every waiter on symbol shares this fetch, so no one caller's cancellation applies
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FetchTimeout)
		defer cancel()
		return s.fetchAndCache(fetchCtx, symbol)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.MarketPrice), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w for %s: %w", domain.ErrPriceUnavailable, symbol, ctx.Err())
	}
}

func (s *MarketPriceService) fetchAndCache(ctx context.Context, symbol string) (*domain.MarketPrice, error) {
	quote, fetchErr := s.source.Fetch(ctx, symbol)
	if fetchErr == nil {
		price := &domain.MarketPrice{
			Symbol:        symbol,
			Price:         quote.Price,
			PreviousClose: quote.PreviousClose,
			UpdatedAt:     s.now(),
		}
		if err := s.store.Upsert(ctx, price); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache fetched price")
		}
		return price, nil
	}

	// The caller's context may have expired with the fetch; the fallback read gets its own
	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fallbackReadTimeout)
	defer cancel()

	cached, err := s.store.Get(readCtx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", domain.ErrPriceUnavailable, symbol, fetchErr)
	}

	age := cached.Age(s.now())
	if age > s.cfg.MaxStaleness {
		return nil, fmt.Errorf("%w for %s: cached quote is %s old: %w",
			domain.ErrPriceUnavailable, symbol, age.Truncate(time.Second), fetchErr)
	}

	s.log.Warn().
		Err(fetchErr).
		Str("symbol", symbol).
		Dur("age", age).
		Msg("Quote source failed, serving stale price")
	return cached, nil
}

// WarmupPrices pre-fetches quotes in the background; failures are only logged
func (s *MarketPriceService) WarmupPrices(symbols []string) {
	if len(symbols) == 0 {
		return
	}
	go s.warmup(symbols)
}

func (s *MarketPriceService) warmup(symbols []string) int {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WarmupTimeout)
	defer cancel()

	prices := s.GetPrices(ctx, symbols)
	s.log.Debug().
		Int("requested", len(symbols)).
		Int("warmed", len(prices)).
		Msg("Price warmup complete")
	return len(prices)
}

// IsMarketOpen reports whether the exchange session is open
func (s *MarketPriceService) IsMarketOpen() bool {
	return s.clock.IsMarketOpen()
}

func (s *MarketPriceService) isFresh(p *domain.MarketPrice) bool {
	return p != nil && p.Age(s.now()) < s.cfg.Freshness
}

func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		symbol = domain.NormalizeSymbol(symbol)
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		out = append(out, symbol)
	}
	return out
}
