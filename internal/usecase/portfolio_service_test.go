package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockfolio/internal/domain"
	"stockfolio/internal/repository/memory"
	"stockfolio/internal/service"
)

type fakePrices map[string]*domain.MarketPrice

func (f fakePrices) GetPrices(_ context.Context, symbols []string) map[string]*domain.MarketPrice {
	out := make(map[string]*domain.MarketPrice)
	for _, s := range symbols {
		if p, ok := f[s]; ok {
			out[s] = p
		}
	}
	return out
}

func quote(price, prevClose string) *domain.MarketPrice {
	return &domain.MarketPrice{
		Price:         decimal.RequireFromString(price),
		PreviousClose: decimal.RequireFromString(prevClose),
		UpdatedAt:     syncNow,
	}
}

type portfolioFixture struct {
	userID      uuid.UUID
	accounts    *memory.BrokerAccountRepository
	holdings    *memory.HoldingRepository
	positions   *memory.PositionRepository
	logs        *memory.SyncLogRepository
	prices      fakePrices
	coordinator *service.SyncCoordinator
	svc         *PortfolioService
}

func newPortfolioFixture(t *testing.T) *portfolioFixture {
	t.Helper()
	f := &portfolioFixture{
		userID:    uuid.New(),
		accounts:  memory.NewBrokerAccountRepository(),
		holdings:  memory.NewHoldingRepository(),
		positions: memory.NewPositionRepository(),
		logs:      memory.NewSyncLogRepository(),
		prices:    fakePrices{},
	}
	f.coordinator = service.NewSyncCoordinator(&switchableClock{}, zerolog.Nop())
	f.svc = NewPortfolioService(
		f.accounts, f.holdings, f.positions, f.logs, f.prices,
		service.NewContractParser(time.UTC, nil),
		f.coordinator,
		service.NewReconciler(zerolog.Nop()),
		zerolog.Nop(),
	)
	f.svc.now = func() time.Time { return syncNow }
	return f
}

func (f *portfolioFixture) holding(t *testing.T, broker domain.Broker, symbol string, qty, avg string) {
	t.Helper()
	require.NoError(t, f.holdings.Upsert(context.Background(), &domain.CachedHolding{
		ID:           uuid.New(),
		UserID:       f.userID,
		Broker:       broker,
		Symbol:       symbol,
		Quantity:     decimal.RequireFromString(qty),
		AveragePrice: decimal.RequireFromString(avg),
	}))
}

func (f *portfolioFixture) position(t *testing.T, p domain.CachedPosition) {
	t.Helper()
	p.ID = uuid.New()
	p.UserID = f.userID
	require.NoError(t, f.positions.Upsert(context.Background(), &p))
}

func decEqual(t *testing.T, expected string, actual decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(expected).Equal(actual), "%s: expected %s, got %s", field, expected, actual)
}

func TestMerge_WeightedAverageAcrossBrokers(t *testing.T) {
	f := newPortfolioFixture(t)
	f.holding(t, domain.BrokerZerodha, "INFY", "10", "100")
	f.holding(t, domain.BrokerUpstox, "INFY", "5", "130")
	f.prices["INFY"] = quote("120", "118")

	rows, err := f.svc.MergeHoldingsAndPositions(context.Background(), f.userID)

	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]
	decEqual(t, "110.00", row.AverageBuyPrice, "average")
	decEqual(t, "15", row.TotalQuantity, "quantity")
	decEqual(t, "10", row.BrokerQuantities[domain.BrokerZerodha], "zerodha qty")
	decEqual(t, "5", row.BrokerQuantities[domain.BrokerUpstox], "upstox qty")
	decEqual(t, "1800", row.CurrentValue, "current")
	decEqual(t, "1650", row.InvestedValue, "invested")
	decEqual(t, "150", row.UnrealizedPnL, "pnl")
	decEqual(t, "9.09", row.UnrealizedPnLPercent, "pnl%")
	assert.Equal(t, domain.PriceSourceLive, row.PriceSource)
}

func TestMerge_DayGainSignAndZeroPreviousClose(t *testing.T) {
	f := newPortfolioFixture(t)
	f.holding(t, domain.BrokerZerodha, "SBIN", "20", "90")
	f.holding(t, domain.BrokerZerodha, "NEWIPO", "4", "50")
	f.prices["SBIN"] = quote("95", "100")
	f.prices["NEWIPO"] = quote("60", "0")

	rows, err := f.svc.MergeHoldingsAndPositions(context.Background(), f.userID)

	require.NoError(t, err)
	require.Len(t, rows, 2)
	sbin, ipo := rows[0], rows[1]
	require.Equal(t, "SBIN", sbin.Symbol)

	decEqual(t, "-100.00", sbin.DayGain, "day gain")
	decEqual(t, "-5.00", sbin.DayGainPercent, "day gain%")

	decEqual(t, "0", ipo.DayGainPercent, "ipo day gain%")
	decEqual(t, "0", ipo.DayGain, "ipo day gain")
	decEqual(t, "240", ipo.CurrentValue, "ipo current")
}

func TestMerge_IntradayExcludedFromAverage(t *testing.T) {
	f := newPortfolioFixture(t)
	f.holding(t, domain.BrokerZerodha, "TCS", "10", "3000")
	f.position(t, domain.CachedPosition{Broker: domain.BrokerZerodha, Symbol: "TCS", PositionType: domain.PositionIntraday,
		Quantity: decimal.NewFromInt(5), AveragePrice: decimal.NewFromInt(3600)})
	f.position(t, domain.CachedPosition{Broker: domain.BrokerDhan, Symbol: "TCS", PositionType: domain.PositionDelivery,
		Quantity: decimal.NewFromInt(10), AveragePrice: decimal.NewFromInt(3200)})
	f.position(t, domain.CachedPosition{Broker: domain.BrokerZerodha, Symbol: "NIFTY24JANFUT", PositionType: domain.PositionDerivative,
		Quantity: decimal.NewFromInt(75), AveragePrice: decimal.NewFromInt(21500)})
	f.prices["TCS"] = quote("3500", "3450")

	rows, err := f.svc.MergeHoldingsAndPositions(context.Background(), f.userID)

	require.NoError(t, err)
	require.Len(t, rows, 1, "derivatives are not merged into equity rows")
	row := rows[0]
	decEqual(t, "3100.00", row.AverageBuyPrice, "average")
	decEqual(t, "25", row.TotalQuantity, "quantity")
	decEqual(t, "15", row.BrokerQuantities[domain.BrokerZerodha], "zerodha qty")
}

func TestMerge_IntradayOnlySymbolUsesItsOwnAverage(t *testing.T) {
	f := newPortfolioFixture(t)
	f.position(t, domain.CachedPosition{Broker: domain.BrokerZerodha, Symbol: "ITC", PositionType: domain.PositionIntraday,
		Quantity: decimal.NewFromInt(100), AveragePrice: decimal.RequireFromString("440.25")})
	f.prices["ITC"] = quote("441", "438")

	rows, err := f.svc.MergeHoldingsAndPositions(context.Background(), f.userID)

	require.NoError(t, err)
	require.Len(t, rows, 1)
	decEqual(t, "440.25", rows[0].AverageBuyPrice, "average")
	decEqual(t, "75", rows[0].UnrealizedPnL, "pnl")
}

func TestMerge_SortedByValueThenSymbol(t *testing.T) {
	f := newPortfolioFixture(t)
	f.holding(t, domain.BrokerZerodha, "BBB", "1", "10")
	f.holding(t, domain.BrokerZerodha, "AAA", "1", "10")
	f.holding(t, domain.BrokerZerodha, "CCC", "10", "10")
	f.prices["AAA"] = quote("50", "50")
	f.prices["BBB"] = quote("50", "50")
	f.prices["CCC"] = quote("50", "50")

	rows, err := f.svc.MergeHoldingsAndPositions(context.Background(), f.userID)

	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"CCC", "AAA", "BBB"}, []string{rows[0].Symbol, rows[1].Symbol, rows[2].Symbol})
}

func TestMerge_MissingPriceFallsBackToBrokerThenUnknown(t *testing.T) {
	f := newPortfolioFixture(t)
	require.NoError(t, f.holdings.Upsert(context.Background(), &domain.CachedHolding{
		ID: uuid.New(), UserID: f.userID, Broker: domain.BrokerZerodha, Symbol: "HDFCBANK",
		Quantity: decimal.NewFromInt(10), AveragePrice: decimal.NewFromInt(1500),
		LastPrice: decimal.NewFromInt(1550), ClosePrice: decimal.NewFromInt(1540),
	}))
	f.holding(t, domain.BrokerZerodha, "DELISTED", "10", "200")

	rows, err := f.svc.MergeHoldingsAndPositions(context.Background(), f.userID)

	require.NoError(t, err)
	require.Len(t, rows, 2)

	hdfc, delisted := rows[0], rows[1]
	require.Equal(t, "HDFCBANK", hdfc.Symbol)
	assert.True(t, hdfc.PriceAvailable)
	assert.Equal(t, domain.PriceSourceBroker, hdfc.PriceSource)
	decEqual(t, "15500", hdfc.CurrentValue, "hdfc current")
	decEqual(t, "100", hdfc.DayGain, "hdfc day gain")

	assert.False(t, delisted.PriceAvailable)
	decEqual(t, "0", delisted.CurrentValue, "delisted current")
	decEqual(t, "0", delisted.UnrealizedPnL, "delisted pnl")
	decEqual(t, "2000", delisted.InvestedValue, "delisted invested")
}

func TestMerge_EmptyPortfolio(t *testing.T) {
	f := newPortfolioFixture(t)

	rows, err := f.svc.MergeHoldingsAndPositions(context.Background(), f.userID)

	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestGetPortfolioSummary_TotalsAndDerivatives(t *testing.T) {
	f := newPortfolioFixture(t)
	ctx := context.Background()
	f.holding(t, domain.BrokerZerodha, "INFY", "10", "100")
	f.prices["INFY"] = quote("110", "100")
	f.position(t, domain.CachedPosition{
		Broker: domain.BrokerZerodha, Symbol: "NIFTY24JANFUT", PositionType: domain.PositionDerivative,
		Quantity: decimal.NewFromInt(150), AveragePrice: decimal.NewFromInt(21500),
		LastPrice: decimal.NewFromInt(21600), ClosePrice: decimal.NewFromInt(21550),
	})

	successAt := syncNow.Add(-10 * time.Minute)
	require.NoError(t, f.logs.Append(ctx, &domain.SyncLog{UserID: f.userID, Status: domain.SyncSuccess, Timestamp: successAt}))
	require.NoError(t, f.logs.Append(ctx, &domain.SyncLog{UserID: f.userID, Status: domain.SyncFailure, Timestamp: syncNow}))

	summary, err := f.svc.GetPortfolioSummary(ctx, f.userID)
	require.NoError(t, err)

	require.Len(t, summary.Holdings, 1)
	require.Len(t, summary.Derivatives, 1)

	fut := summary.Derivatives[0]
	assert.Equal(t, domain.InstrumentDerivative, fut.InstrumentClass)
	require.NotNil(t, fut.Contract)
	assert.Equal(t, "NIFTY", fut.Contract.Underlying)
	assert.Equal(t, domain.ContractFuture, fut.Contract.Type)
	require.NotNil(t, fut.Lots)
	decEqual(t, "2", *fut.Lots, "lots")
	decEqual(t, "3240000", fut.CurrentValue, "notional")
	decEqual(t, "15000", fut.UnrealizedPnL, "fut pnl")
	decEqual(t, "7500", fut.DayGain, "fut day gain")

	// INFY: value 1100, invested 1000, day gain 100 on previous value 1000
	// FUT: value 3240000, invested 3225000, day gain 7500 on previous value 3232500, 7600 on 3233500
	decEqual(t, "3241100", summary.Totals.CurrentValue, "total current")
	decEqual(t, "3226000", summary.Totals.InvestedValue, "total invested")
	decEqual(t, "15100", summary.Totals.UnrealizedPnL, "total pnl")
	decEqual(t, "7600", summary.Totals.DayGain, "total day gain")
	decEqual(t, "0.24", summary.Totals.DayGainPercent, "total day gain%")

	require.NotNil(t, summary.LastSyncedAt)
	assert.True(t, successAt.Equal(*summary.LastSyncedAt))
}

func TestGetPortfolioSummary_TotalsExcludeUnpricedRows(t *testing.T) {
	f := newPortfolioFixture(t)
	f.holding(t, domain.BrokerZerodha, "INFY", "10", "100")
	f.holding(t, domain.BrokerZerodha, "NOPRICE", "10", "100")
	f.prices["INFY"] = quote("110", "100")

	summary, err := f.svc.GetPortfolioSummary(context.Background(), f.userID)
	require.NoError(t, err)

	totals := summary.Totals
	decEqual(t, "1100", totals.CurrentValue, "current")
	decEqual(t, "1000", totals.InvestedValue, "invested")
	decEqual(t, "100", totals.UnrealizedPnL, "pnl")
	decEqual(t, "10", totals.UnrealizedPnLPercent, "pnl%")
	decEqual(t, "10", totals.DayGainPercent, "day gain%")
	assert.True(t, totals.CurrentValue.Sub(totals.InvestedValue).Equal(totals.UnrealizedPnL), "current - invested = pnl")

	decEqual(t, "1000", totals.UnpricedInvestedValue, "unpriced invested")
	assert.Equal(t, 1, totals.UnpricedRows)
	assert.Len(t, summary.Holdings, 2, "unpriced rows are still listed")
}

func TestGetBrokerStatus(t *testing.T) {
	f := newPortfolioFixture(t)
	ctx := context.Background()
	expired := syncNow.Add(-time.Hour)
	require.NoError(t, f.accounts.Save(ctx, &domain.BrokerAccount{
		UserID: f.userID, Broker: domain.BrokerZerodha, HasCredentials: true, TokenExpiresAt: &expired, IsActive: true,
	}))
	require.NoError(t, f.accounts.Save(ctx, &domain.BrokerAccount{
		UserID: f.userID, Broker: domain.BrokerUpstox, HasCredentials: true, IsActive: true, LastSuccessfulSync: &syncNow,
	}))

	zerodha, err := f.svc.GetBrokerStatus(ctx, f.userID, domain.BrokerZerodha)
	require.NoError(t, err)
	assert.False(t, zerodha.HasValidToken)
	assert.Equal(t, domain.ConnectionTokenExpired, zerodha.ConnectionStatus)

	upstox, err := f.svc.GetBrokerStatus(ctx, f.userID, domain.BrokerUpstox)
	require.NoError(t, err)
	assert.True(t, upstox.HasValidToken)
	assert.Equal(t, domain.ConnectionConnected, upstox.ConnectionStatus)
	require.NotNil(t, upstox.LastSuccessfulSync)

	none, err := f.svc.GetBrokerStatus(ctx, f.userID, domain.BrokerDhan)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionNotConnected, none.ConnectionStatus)
	assert.False(t, none.IsActive)
}

func TestDisconnectBroker_DeactivatesAndClearsCache(t *testing.T) {
	f := newPortfolioFixture(t)
	ctx := context.Background()
	account := &domain.BrokerAccount{UserID: f.userID, Broker: domain.BrokerZerodha, HasCredentials: true, IsActive: true}
	require.NoError(t, f.accounts.Save(ctx, account))
	f.holding(t, domain.BrokerZerodha, "INFY", "10", "100")
	f.holding(t, domain.BrokerUpstox, "TCS", "1", "3000")
	f.position(t, domain.CachedPosition{Broker: domain.BrokerZerodha, Symbol: "SBIN", PositionType: domain.PositionIntraday,
		Quantity: decimal.NewFromInt(1), AveragePrice: decimal.NewFromInt(600)})

	require.NoError(t, f.svc.DisconnectBroker(ctx, f.userID, domain.BrokerZerodha))

	status, err := f.svc.GetBrokerStatus(ctx, f.userID, domain.BrokerZerodha)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionDisconnected, status.ConnectionStatus)
	assert.False(t, status.HasCredentials)
	assert.Equal(t, 1, f.holdings.Count(), "other brokers are untouched")
	assert.Zero(t, f.positions.Count())

	// Disconnecting twice is a no-op
	require.NoError(t, f.svc.DisconnectBroker(ctx, f.userID, domain.BrokerZerodha))
	assert.Zero(t, f.coordinator.HeldAccounts())
}

func TestDisconnectBroker_Errors(t *testing.T) {
	f := newPortfolioFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.DisconnectBroker(ctx, f.userID, domain.BrokerFyers), domain.ErrNotFound)

	account := &domain.BrokerAccount{UserID: f.userID, Broker: domain.BrokerFyers, HasCredentials: true, IsActive: true}
	require.NoError(t, f.accounts.Save(ctx, account))
	holdAccount(t, f.coordinator, account.ID)

	assert.ErrorIs(t, f.svc.DisconnectBroker(ctx, f.userID, domain.BrokerFyers), domain.ErrSyncInProgress)
}

// deleteFailsOnce fails the first Delete and passes the rest through
type deleteFailsOnce struct {
	*memory.HoldingRepository
	failed bool
}

func (r *deleteFailsOnce) Delete(ctx context.Context, id uuid.UUID) error {
	if !r.failed {
		r.failed = true
		return errors.New("connection reset")
	}
	return r.HoldingRepository.Delete(ctx, id)
}

func TestDisconnectBroker_RetryAfterFailedClear(t *testing.T) {
	f := newPortfolioFixture(t)
	ctx := context.Background()
	holdings := &deleteFailsOnce{HoldingRepository: f.holdings}
	svc := NewPortfolioService(
		f.accounts, holdings, f.positions, f.logs, f.prices,
		service.NewContractParser(time.UTC, nil),
		f.coordinator,
		service.NewReconciler(zerolog.Nop()),
		zerolog.Nop(),
	)
	svc.now = func() time.Time { return syncNow }

	account := &domain.BrokerAccount{UserID: f.userID, Broker: domain.BrokerZerodha, HasCredentials: true, IsActive: true}
	require.NoError(t, f.accounts.Save(ctx, account))
	f.holding(t, domain.BrokerZerodha, "INFY", "10", "100")

	err := svc.DisconnectBroker(ctx, f.userID, domain.BrokerZerodha)
	require.ErrorContains(t, err, "failed to clear ZERODHA holdings")

	status, err := svc.GetBrokerStatus(ctx, f.userID, domain.BrokerZerodha)
	require.NoError(t, err)
	assert.True(t, status.IsActive, "account stays active while its rows remain")
	assert.Equal(t, 1, f.holdings.Count())

	require.NoError(t, svc.DisconnectBroker(ctx, f.userID, domain.BrokerZerodha))
	assert.Zero(t, f.holdings.Count())
	rows, err := svc.MergeHoldingsAndPositions(ctx, f.userID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	status, err = svc.GetBrokerStatus(ctx, f.userID, domain.BrokerZerodha)
	require.NoError(t, err)
	assert.False(t, status.IsActive)
	assert.Zero(t, f.coordinator.HeldAccounts())
}

func TestDisconnectBroker_InactiveAccountClearsLeftoverRows(t *testing.T) {
	f := newPortfolioFixture(t)
	ctx := context.Background()
	account := &domain.BrokerAccount{UserID: f.userID, Broker: domain.BrokerUpstox, IsActive: false}
	require.NoError(t, f.accounts.Save(ctx, account))
	f.holding(t, domain.BrokerUpstox, "TCS", "1", "3000")

	require.NoError(t, f.svc.DisconnectBroker(ctx, f.userID, domain.BrokerUpstox))
	assert.Zero(t, f.holdings.Count())
}

func TestGetSyncHistory_Limits(t *testing.T) {
	f := newPortfolioFixture(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		require.NoError(t, f.logs.Append(ctx, &domain.SyncLog{UserID: f.userID, Status: domain.SyncSuccess, Timestamp: syncNow.Add(time.Duration(i) * time.Minute)}))
	}

	logs, err := f.svc.GetSyncHistory(ctx, f.userID, 0)
	require.NoError(t, err)
	assert.Len(t, logs, defaultHistoryLimit)
	assert.True(t, logs[0].Timestamp.After(logs[1].Timestamp))

	logs, err = f.svc.GetSyncHistory(ctx, f.userID, 5)
	require.NoError(t, err)
	assert.Len(t, logs, 5)

	empty, err := f.svc.GetSyncHistory(ctx, uuid.New(), 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
