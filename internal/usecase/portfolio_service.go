package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stockfolio/internal/domain"
	"stockfolio/internal/service"
)

const (
	outputPlaces       = 2
	intermediatePlaces = 10

	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

var hundred = decimal.NewFromInt(100)

// PriceReader is the batch read side of the market price cache
type PriceReader interface {
	GetPrices(ctx context.Context, symbols []string) map[string]*domain.MarketPrice
}

// PortfolioService builds the consolidated cross-broker view of a user's portfolio
type PortfolioService struct {
	accounts   domain.BrokerAccountRepository
	holdings   domain.HoldingRepository
	positions  domain.PositionRepository
	syncLogs   domain.SyncLogRepository
	prices     PriceReader
	contracts  *service.ContractParser
	locker     domain.SyncLocker
	reconciler *service.Reconciler
	now        func() time.Time
	log        zerolog.Logger
}

// NewPortfolioService creates a new PortfolioService
func NewPortfolioService(
	accounts domain.BrokerAccountRepository,
	holdings domain.HoldingRepository,
	positions domain.PositionRepository,
	syncLogs domain.SyncLogRepository,
	prices PriceReader,
	contracts *service.ContractParser,
	locker domain.SyncLocker,
	reconciler *service.Reconciler,
	log zerolog.Logger,
) *PortfolioService {
	return &PortfolioService{
		accounts:   accounts,
		holdings:   holdings,
		positions:  positions,
		syncLogs:   syncLogs,
		prices:     prices,
		contracts:  contracts,
		locker:     locker,
		reconciler: reconciler,
		now:        time.Now,
		log:        log.With().Str("component", "portfolio").Logger(),
	}
}

// netAccumulator collects every lot of one symbol
type netAccumulator struct {
	symbol      string
	brokerQty   map[domain.Broker]decimal.Decimal
	totalQty    decimal.Decimal
	eligibleQty decimal.Decimal
	eligibleSum decimal.Decimal // Σ qty·avg over delivery-eligible lots
	allQty      decimal.Decimal
	allSum      decimal.Decimal // Σ qty·avg over every lot
	brokerLast  decimal.Decimal
	brokerClose decimal.Decimal
}

func newNetAccumulator(symbol string) *netAccumulator {
	return &netAccumulator{symbol: symbol, brokerQty: make(map[domain.Broker]decimal.Decimal)}
}

func (a *netAccumulator) add(broker domain.Broker, qty, avg, lastPrice, closePrice decimal.Decimal, eligible bool) {
	a.brokerQty[broker] = a.brokerQty[broker].Add(qty)
	a.totalQty = a.totalQty.Add(qty)
	a.allQty = a.allQty.Add(qty)
	a.allSum = a.allSum.Add(qty.Mul(avg))
	if eligible {
		a.eligibleQty = a.eligibleQty.Add(qty)
		a.eligibleSum = a.eligibleSum.Add(qty.Mul(avg))
	}
	if !lastPrice.IsZero() {
		a.brokerLast = lastPrice
	}
	if !closePrice.IsZero() {
		a.brokerClose = closePrice
	}
}

// averagePrice uses delivery-eligible lots; a symbol held only intraday
// falls back to the average of all its lots
func (a *netAccumulator) averagePrice() decimal.Decimal {
	if !a.eligibleQty.IsZero() {
		return a.eligibleSum.DivRound(a.eligibleQty, intermediatePlaces)
	}
	if !a.allQty.IsZero() {
		return a.allSum.DivRound(a.allQty, intermediatePlaces)
	}
	return decimal.Zero
}

// MergeHoldingsAndPositions returns one equity row per symbol across brokers
func (s *PortfolioService) MergeHoldingsAndPositions(ctx context.Context, userID uuid.UUID) ([]domain.NetPosition, error) {
	holdings, positions, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.mergeEquity(ctx, holdings, positions), nil
}

// GetPortfolioSummary returns equity and derivative rows with portfolio totals
func (s *PortfolioService) GetPortfolioSummary(ctx context.Context, userID uuid.UUID) (*domain.PortfolioSummary, error) {
	holdings, positions, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	equity := s.mergeEquity(ctx, holdings, positions)
	derivatives := s.mergeDerivatives(positions)

	lastSynced, err := s.syncLogs.LatestSuccessForUser(ctx, userID)
	if err != nil {
		// Staleness metadata is best effort; the rollup is still valid
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to read last successful sync")
		lastSynced = nil
	}

	return &domain.PortfolioSummary{
		UserID:       userID,
		Totals:       rollup(equity, derivatives),
		Holdings:     equity,
		Derivatives:  derivatives,
		LastSyncedAt: lastSynced,
		GeneratedAt:  s.now(),
	}, nil
}

func (s *PortfolioService) load(ctx context.Context, userID uuid.UUID) ([]*domain.CachedHolding, []*domain.CachedPosition, error) {
	holdings, err := s.holdings.GetByUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load holdings: %w", err)
	}
	positions, err := s.positions.GetByUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load positions: %w", err)
	}
	return holdings, positions, nil
}

func (s *PortfolioService) mergeEquity(ctx context.Context, holdings []*domain.CachedHolding, positions []*domain.CachedPosition) []domain.NetPosition {
	bySymbol := make(map[string]*netAccumulator)
	var order []string
	get := func(symbol string) *netAccumulator {
		symbol = domain.NormalizeSymbol(symbol)
		acc, ok := bySymbol[symbol]
		if !ok {
			acc = newNetAccumulator(symbol)
			bySymbol[symbol] = acc
			order = append(order, symbol)
		}
		return acc
	}

	for _, h := range holdings {
		get(h.Symbol).add(h.Broker, h.Quantity, h.AveragePrice, h.LastPrice, h.ClosePrice, true)
	}
	for _, p := range positions {
		if p.IsDerivative() {
			continue
		}
		get(p.Symbol).add(p.Broker, p.Quantity, p.AveragePrice, p.LastPrice, p.ClosePrice, p.IsDeliveryEligible())
	}

	if len(order) == 0 {
		return []domain.NetPosition{}
	}

	prices := s.prices.GetPrices(ctx, order)

	rows := make([]domain.NetPosition, 0, len(order))
	for _, symbol := range order {
		acc := bySymbol[symbol]
		row := domain.NetPosition{
			Symbol:           symbol,
			InstrumentClass:  domain.InstrumentEquity,
			BrokerQuantities: acc.brokerQty,
			TotalQuantity:    acc.totalQty,
		}

		var price, prevClose decimal.Decimal
		switch p, ok := prices[symbol]; {
		case ok:
			price, prevClose = p.Price, p.PreviousClose
			row.PriceSource = domain.PriceSourceLive
		case !acc.brokerLast.IsZero():
			price, prevClose = acc.brokerLast, acc.brokerClose
			row.PriceSource = domain.PriceSourceBroker
		}

		value(&row, acc.totalQty, acc.averagePrice(), price, prevClose, row.PriceSource != "")
		rows = append(rows, row)
	}

	sortRows(rows)
	return rows
}

// mergeDerivatives values F&O positions from the broker-reported prices captured at sync
func (s *PortfolioService) mergeDerivatives(positions []*domain.CachedPosition) []domain.NetPosition {
	bySymbol := make(map[string]*netAccumulator)
	var order []string
	for _, p := range positions {
		if !p.IsDerivative() {
			continue
		}
		symbol := domain.NormalizeSymbol(p.Symbol)
		acc, ok := bySymbol[symbol]
		if !ok {
			acc = newNetAccumulator(symbol)
			bySymbol[symbol] = acc
			order = append(order, symbol)
		}
		acc.add(p.Broker, p.Quantity, p.AveragePrice, p.LastPrice, p.ClosePrice, true)
	}

	rows := make([]domain.NetPosition, 0, len(order))
	for _, symbol := range order {
		acc := bySymbol[symbol]
		contract := s.contracts.Parse(symbol)
		lots := acc.totalQty.DivRound(decimal.NewFromInt(contract.LotSize), outputPlaces)

		row := domain.NetPosition{
			Symbol:           symbol,
			InstrumentClass:  domain.InstrumentDerivative,
			BrokerQuantities: acc.brokerQty,
			TotalQuantity:    acc.totalQty,
			Contract:         contract,
			Lots:             &lots,
		}

		available := !acc.brokerLast.IsZero()
		if available {
			row.PriceSource = domain.PriceSourceBroker
		}
		value(&row, acc.totalQty, acc.averagePrice(), acc.brokerLast, acc.brokerClose, available)
		rows = append(rows, row)
	}

	sortRows(rows)
	return rows
}

// value fills the money fields of a row. Without a price the row reports
// zero value and zero P&L instead of a synthetic loss.
func value(row *domain.NetPosition, qty, avg, price, prevClose decimal.Decimal, available bool) {
	row.AverageBuyPrice = avg.Round(outputPlaces)
	invested := qty.Mul(avg)
	row.InvestedValue = invested.Round(outputPlaces)
	row.PriceAvailable = available

	if !available {
		row.CurrentPrice = decimal.Zero
		row.PreviousClose = decimal.Zero
		row.CurrentValue = decimal.Zero
		row.UnrealizedPnL = decimal.Zero
		row.UnrealizedPnLPercent = decimal.Zero
		row.DayGain = decimal.Zero
		row.DayGainPercent = decimal.Zero
		return
	}

	current := service.Notional(price, qty)
	pnl := current.Sub(invested)

	row.CurrentPrice = price.Round(outputPlaces)
	row.PreviousClose = prevClose.Round(outputPlaces)
	row.CurrentValue = current.Round(outputPlaces)
	row.UnrealizedPnL = pnl.Round(outputPlaces)
	row.UnrealizedPnLPercent = percent(pnl, invested)

	if prevClose.IsZero() {
		row.DayGain = decimal.Zero
		row.DayGainPercent = decimal.Zero
		return
	}
	row.DayGain = price.Sub(prevClose).Mul(qty).Round(outputPlaces)
	row.DayGainPercent = percent(price.Sub(prevClose), prevClose)
}

// rollup sums priced rows into totals; day gain % is relative to the previous value
func rollup(groups ...[]domain.NetPosition) domain.PortfolioTotals {
	var current, invested, pnl, dayGain, previous, unpriced decimal.Decimal
	unpricedRows := 0
	for _, rows := range groups {
		for _, r := range rows {
			if !r.PriceAvailable {
				unpriced = unpriced.Add(r.InvestedValue)
				unpricedRows++
				continue
			}
			current = current.Add(r.CurrentValue)
			invested = invested.Add(r.InvestedValue)
			pnl = pnl.Add(r.UnrealizedPnL)
			if !r.PreviousClose.IsZero() {
				dayGain = dayGain.Add(r.DayGain)
				previous = previous.Add(r.PreviousClose.Mul(r.TotalQuantity))
			}
		}
	}

	return domain.PortfolioTotals{
		CurrentValue:          current.Round(outputPlaces),
		InvestedValue:         invested.Round(outputPlaces),
		UnrealizedPnL:         pnl.Round(outputPlaces),
		UnrealizedPnLPercent:  percent(pnl, invested),
		DayGain:               dayGain.Round(outputPlaces),
		DayGainPercent:        percent(dayGain, previous),
		UnpricedInvestedValue: unpriced.Round(outputPlaces),
		UnpricedRows:          unpricedRows,
	}
}

// percent returns part/base*100 rounded for output, zero when base is zero
func percent(part, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return part.DivRound(base.Abs(), intermediatePlaces).Mul(hundred).Round(outputPlaces)
}

// sortRows orders by current value descending, then symbol
func sortRows(rows []domain.NetPosition) {
	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].CurrentValue.Cmp(rows[j].CurrentValue); c != 0 {
			return c > 0
		}
		return rows[i].Symbol < rows[j].Symbol
	})
}

// GetBrokerStatus describes the user's connection to one broker
func (s *PortfolioService) GetBrokerStatus(ctx context.Context, userID uuid.UUID, broker domain.Broker) (*domain.BrokerStatus, error) {
	account, err := s.accounts.GetByUserAndBroker(ctx, userID, broker)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.BrokerStatus{
			Broker:           broker,
			ConnectionStatus: domain.ConnectionNotConnected,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get broker status: %w", err)
	}

	now := s.now()
	return &domain.BrokerStatus{
		Broker:             broker,
		IsActive:           account.IsActive,
		HasCredentials:     account.HasCredentials,
		HasValidToken:      account.HasValidToken(now),
		ConnectionStatus:   account.ConnectionStatus(now),
		LastSuccessfulSync: account.LastSuccessfulSync,
	}, nil
}

// DisconnectBroker drops the account's cached rows, then deactivates it.
// Rows are cleared first so a failed disconnect can be retried; calling it
// again on an inactive account only clears what is left.
// It fails with domain.ErrSyncInProgress while the account is being synced.
func (s *PortfolioService) DisconnectBroker(ctx context.Context, userID uuid.UUID, broker domain.Broker) error {
	account, err := s.accounts.GetByUserAndBroker(ctx, userID, broker)
	if err != nil {
		return fmt.Errorf("failed to find %s account: %w", broker, err)
	}

	lease, ok := s.locker.TryAcquireAccount(ctx, account.ID)
	if !ok {
		return domain.ErrSyncInProgress
	}
	defer s.locker.ReleaseAccount(ctx, lease)

	holdings, err := s.holdings.GetByUserAndBroker(ctx, userID, broker)
	if err != nil {
		return fmt.Errorf("failed to load %s holdings: %w", broker, err)
	}
	if _, err := service.Reconcile[*domain.CachedHolding](ctx, s.reconciler, holdings, nil, s.holdings); err != nil {
		return fmt.Errorf("failed to clear %s holdings: %w", broker, err)
	}

	positions, err := s.positions.GetByUserAndBroker(ctx, userID, broker)
	if err != nil {
		return fmt.Errorf("failed to load %s positions: %w", broker, err)
	}
	if _, err := service.Reconcile[*domain.CachedPosition](ctx, s.reconciler, positions, nil, s.positions); err != nil {
		return fmt.Errorf("failed to clear %s positions: %w", broker, err)
	}

	if account.IsActive {
		if err := s.accounts.Deactivate(ctx, account.ID); err != nil {
			return fmt.Errorf("failed to deactivate %s account: %w", broker, err)
		}
	}

	if account.IsActive || len(holdings) > 0 || len(positions) > 0 {
		s.log.Info().
			Str("user_id", userID.String()).
			Str("broker", string(broker)).
			Bool("was_active", account.IsActive).
			Int("holdings_removed", len(holdings)).
			Int("positions_removed", len(positions)).
			Msg("Broker disconnected")
	}
	return nil
}

// GetSyncHistory returns the user's most recent sync attempts, newest first
func (s *PortfolioService) GetSyncHistory(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.SyncLog, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	logs, err := s.syncLogs.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync history: %w", err)
	}
	if logs == nil {
		logs = []*domain.SyncLog{}
	}
	return logs, nil
}
