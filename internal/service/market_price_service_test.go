package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stockfolio/internal/domain"
	"stockfolio/internal/repository/memory"
)

type MockQuoteSource struct {
	mock.Mock
}

func (m *MockQuoteSource) Fetch(ctx context.Context, symbol string) (*domain.Quote, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Quote), args.Error(1)
}

var priceNow = time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)

func newTestPriceService(store domain.PriceStore, source domain.QuoteSource) *MarketPriceService {
	svc := NewMarketPriceService(store, source, fixedClock(true), PriceCacheConfig{
		Freshness:    15 * time.Second,
		MaxStaleness: 24 * time.Hour,
	}, zerolog.Nop())
	svc.now = func() time.Time { return priceNow }
	return svc
}

func seedPrice(t *testing.T, store domain.PriceStore, symbol string, price int64, age time.Duration) {
	t.Helper()
	require.NoError(t, store.Upsert(context.Background(), &domain.MarketPrice{
		Symbol:        symbol,
		Price:         decimal.NewFromInt(price),
		PreviousClose: decimal.NewFromInt(price - 10),
		UpdatedAt:     priceNow.Add(-age),
	}))
}

func TestGetPrice_FreshRowSkipsFetch(t *testing.T) {
	store := memory.NewPriceStore()
	source := new(MockQuoteSource)
	seedPrice(t, store, "INFY", 1500, 5*time.Second)

	price, err := newTestPriceService(store, source).GetPrice(context.Background(), "infy")

	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1500).Equal(price.Price))
	source.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestGetPrice_ExpiredRowIsRefetched(t *testing.T) {
	store := memory.NewPriceStore()
	source := new(MockQuoteSource)
	seedPrice(t, store, "INFY", 1500, time.Minute)
	source.On("Fetch", mock.Anything, "INFY").
		Return(&domain.Quote{Price: decimal.NewFromInt(1520), PreviousClose: decimal.NewFromInt(1500)}, nil).Once()

	price, err := newTestPriceService(store, source).GetPrice(context.Background(), "INFY")

	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1520).Equal(price.Price))

	cached, err := store.Get(context.Background(), "INFY")
	require.NoError(t, err)
	assert.True(t, priceNow.Equal(cached.UpdatedAt))
	source.AssertExpectations(t)
}

func TestGetPrice_SourceFailureServesStaleWithinBound(t *testing.T) {
	store := memory.NewPriceStore()
	source := new(MockQuoteSource)
	seedPrice(t, store, "INFY", 1500, 3*time.Hour)
	source.On("Fetch", mock.Anything, "INFY").Return(nil, errors.New("rate limited"))

	price, err := newTestPriceService(store, source).GetPrice(context.Background(), "INFY")

	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1500).Equal(price.Price))
}

func TestGetPrice_SourceFailureBeyondBoundIsUnavailable(t *testing.T) {
	store := memory.NewPriceStore()
	source := new(MockQuoteSource)
	seedPrice(t, store, "INFY", 1500, 25*time.Hour)
	source.On("Fetch", mock.Anything, "INFY").Return(nil, errors.New("rate limited"))

	_, err := newTestPriceService(store, source).GetPrice(context.Background(), "INFY")

	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestGetPrice_NoRowAndSourceFailureIsUnavailable(t *testing.T) {
	store := memory.NewPriceStore()
	source := new(MockQuoteSource)
	source.On("Fetch", mock.Anything, "SBIN").Return(nil, errors.New("timeout"))

	_, err := newTestPriceService(store, source).GetPrice(context.Background(), "SBIN")

	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
	assert.Contains(t, err.Error(), "timeout")
}

func TestGetPrices_ReturnsPartialMap(t *testing.T) {
	store := memory.NewPriceStore()
	source := new(MockQuoteSource)
	seedPrice(t, store, "INFY", 1500, time.Second)
	source.On("Fetch", mock.Anything, "TCS").
		Return(&domain.Quote{Price: decimal.NewFromInt(3500), PreviousClose: decimal.NewFromInt(3450)}, nil)
	source.On("Fetch", mock.Anything, "SBIN").Return(nil, errors.New("unknown symbol"))

	prices := newTestPriceService(store, source).GetPrices(context.Background(), []string{"INFY", "tcs", "TCS", "SBIN", ""})

	require.Len(t, prices, 2)
	assert.Contains(t, prices, "INFY")
	assert.Contains(t, prices, "TCS")
	assert.NotContains(t, prices, "SBIN")
	source.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestGetPrices_EmptyInput(t *testing.T) {
	svc := newTestPriceService(memory.NewPriceStore(), new(MockQuoteSource))
	assert.Empty(t, svc.GetPrices(context.Background(), nil))
}

func TestWarmup_PopulatesStore(t *testing.T) {
	store := memory.NewPriceStore()
	source := new(MockQuoteSource)
	source.On("Fetch", mock.Anything, "INFY").
		Return(&domain.Quote{Price: decimal.NewFromInt(1500), PreviousClose: decimal.NewFromInt(1490)}, nil)
	source.On("Fetch", mock.Anything, "WIPRO").Return(nil, errors.New("down"))

	svc := newTestPriceService(store, source)
	warmed := svc.warmup([]string{"INFY", "WIPRO"})

	assert.Equal(t, 1, warmed)
	_, err := store.Get(context.Background(), "INFY")
	assert.NoError(t, err)
}

// gatedQuoteSource parks Fetch until release is closed
type gatedQuoteSource struct {
	started chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func (g *gatedQuoteSource) Fetch(ctx context.Context, _ string) (*domain.Quote, error) {
	close(g.started)
	<-g.release
	g.ctxErr <- ctx.Err()
	return &domain.Quote{Price: decimal.NewFromInt(1500), PreviousClose: decimal.NewFromInt(1490)}, nil
}

func TestFetchAndCachePrice_CallerCancelDoesNotAbortSharedFetch(t *testing.T) {
	store := memory.NewPriceStore()
	source := &gatedQuoteSource{
		started: make(chan struct{}),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 1),
	}
	svc := newTestPriceService(store, source)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := svc.FetchAndCachePrice(ctx, "INFY")
		errCh <- err
	}()

	<-source.started
	cancel()
	err := <-errCh
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
	assert.ErrorIs(t, err, context.Canceled)

	close(source.release)
	assert.NoError(t, <-source.ctxErr, "the shared fetch outlives the first caller")
	assert.Eventually(t, func() bool {
		_, err := store.Get(context.Background(), "INFY")
		return err == nil
	}, time.Second, 10*time.Millisecond)
}
