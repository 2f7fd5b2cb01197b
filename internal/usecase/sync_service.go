package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"stockfolio/internal/domain"
	"stockfolio/internal/service"
)

const logWriteTimeout = 5 * time.Second

// BrokerResolver looks up the client for a broker tag
type BrokerResolver interface {
	Resolve(broker domain.Broker) (domain.BrokerClient, bool)
}

// PriceWarmer pre-fetches quotes for freshly synced symbols
type PriceWarmer interface {
	WarmupPrices(symbols []string)
}

// SweepKind names a fleet-wide sync pass
type SweepKind string

// SweepKind constants
const (
	SweepMarketHours SweepKind = "MARKET_HOURS"
	SweepOffHours    SweepKind = "OFF_HOURS"
)

// ParseSweepKind accepts "market"/"offhours" as well as the constant values
func ParseSweepKind(value string) (SweepKind, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "MARKET", string(SweepMarketHours):
		return SweepMarketHours, nil
	case "OFFHOURS", "OFF-HOURS", string(SweepOffHours):
		return SweepOffHours, nil
	}
	return "", fmt.Errorf("unknown sweep kind %q (expected market or offhours)", value)
}

// SweepResult summarizes one fleet-wide pass
type SweepResult struct {
	Kind       SweepKind `json:"kind"`
	Skipped    bool      `json:"skipped"`
	SkipReason string    `json:"skip_reason,omitempty"`
	Considered int       `json:"considered"`
	Succeeded  int       `json:"succeeded"`
	Partial    int       `json:"partial"`
	Failed     int       `json:"failed"`
}

// SyncConfig holds orchestrator settings
type SyncConfig struct {
	PageSize          int
	OffHoursStaleness time.Duration
	BrokerTimeout     time.Duration
}

// SyncService mirrors broker holdings and positions into the local cache
type SyncService struct {
	accounts   domain.BrokerAccountRepository
	holdings   domain.HoldingRepository
	positions  domain.PositionRepository
	syncLogs   domain.SyncLogRepository
	locker     domain.SyncLocker
	brokers    BrokerResolver
	prices     PriceWarmer
	reconciler *service.Reconciler
	cfg        SyncConfig
	now        func() time.Time
	log        zerolog.Logger
}

// NewSyncService creates a new SyncService; prices may be nil to disable warmup
func NewSyncService(
	accounts domain.BrokerAccountRepository,
	holdings domain.HoldingRepository,
	positions domain.PositionRepository,
	syncLogs domain.SyncLogRepository,
	locker domain.SyncLocker,
	brokers BrokerResolver,
	prices PriceWarmer,
	reconciler *service.Reconciler,
	cfg SyncConfig,
	log zerolog.Logger,
) *SyncService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.BrokerTimeout <= 0 {
		cfg.BrokerTimeout = 20 * time.Second
	}
	if cfg.OffHoursStaleness <= 0 {
		cfg.OffHoursStaleness = 30 * time.Minute
	}
	return &SyncService{
		accounts:   accounts,
		holdings:   holdings,
		positions:  positions,
		syncLogs:   syncLogs,
		locker:     locker,
		brokers:    brokers,
		prices:     prices,
		reconciler: reconciler,
		cfg:        cfg,
		now:        time.Now,
		log:        log.With().Str("component", "sync").Logger(),
	}
}

// RunFullSyncForAccount syncs holdings then positions for one account.
// Every attempt that gets the account lock persists exactly one SyncLog;
// a contended attempt returns a FAILURE log without touching any store.
func (s *SyncService) RunFullSyncForAccount(ctx context.Context, account *domain.BrokerAccount) *domain.SyncLog {
	entry, _ := s.runFullSync(ctx, account)
	return entry
}

func (s *SyncService) runFullSync(ctx context.Context, account *domain.BrokerAccount) (*domain.SyncLog, bool) {
	start := s.now()

	lease, ok := s.locker.TryAcquireAccount(ctx, account.ID)
	if !ok {
		s.log.Warn().
			Str("account_id", account.ID.String()).
			Str("broker", string(account.Broker)).
			Msg("Sync already in progress, skipping")
		entry := newSyncLog(account, start)
		entry.Status = domain.SyncFailure
		entry.Message = domain.ErrSyncInProgress.Error()
		return entry, false
	}
	defer s.locker.ReleaseAccount(ctx, lease)

	entry := s.syncLocked(ctx, account, start)
	entry.Duration = s.now().Sub(start)

	// The log is written even when the caller has gone away
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()
	if err := s.syncLogs.Append(logCtx, entry); err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID.String()).Msg("Failed to persist sync log")
	}

	event := s.log.Info()
	if entry.Status != domain.SyncSuccess {
		event = s.log.Warn()
	}
	event.
		Str("account_id", account.ID.String()).
		Str("broker", string(account.Broker)).
		Str("status", string(entry.Status)).
		Int("holdings_changed", entry.HoldingsChanged).
		Int("positions_changed", entry.PositionsChanged).
		Dur("duration", entry.Duration).
		Msg(entry.Message)

	return entry, true
}

func (s *SyncService) syncLocked(ctx context.Context, account *domain.BrokerAccount, start time.Time) (entry *domain.SyncLog) {
	entry = newSyncLog(account, start)

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Interface("panic", r).
				Str("account_id", account.ID.String()).
				Msg("Sync panicked")
			entry.Status = domain.SyncFailure
			entry.Message = fmt.Sprintf("sync aborted: %v", r)
		}
	}()

	if reason := account.CheckSyncable(start); reason != "" {
		entry.Status = domain.SyncFailure
		entry.Message = reason
		return entry
	}

	// Attempts past validation count as use of the account
	succeeded := false
	defer func() {
		s.stampAccount(ctx, account, succeeded)
	}()

	client, ok := s.brokers.Resolve(account.Broker)
	if !ok {
		entry.Status = domain.SyncFailure
		entry.Message = fmt.Sprintf("no broker client registered for %s", account.Broker)
		return entry
	}

	var failures []string
	var warm []string

	symbols, err := s.syncHoldings(ctx, client, account, entry)
	if err != nil {
		failures = append(failures, err.Error())
	}
	warm = append(warm, symbols...)

	symbols, err = s.syncPositions(ctx, client, account, entry)
	if err != nil {
		failures = append(failures, err.Error())
	}
	warm = append(warm, symbols...)

	if len(warm) > 0 && s.prices != nil {
		s.prices.WarmupPrices(warm)
	}

	switch len(failures) {
	case 0:
		entry.Status = domain.SyncSuccess
		entry.Message = fmt.Sprintf("synced holdings (%d changed) and positions (%d changed)",
			entry.HoldingsChanged, entry.PositionsChanged)
		succeeded = true
	case 2:
		entry.Status = domain.SyncFailure
		entry.Message = strings.Join(failures, "; ")
	default:
		entry.Status = domain.SyncPartialFailure
		entry.Message = strings.Join(failures, "; ")
	}

	return entry
}

// syncHoldings returns the symbols worth warming up
func (s *SyncService) syncHoldings(ctx context.Context, client domain.BrokerClient, account *domain.BrokerAccount, entry *domain.SyncLog) ([]string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.BrokerTimeout)
	fresh, err := client.FetchHoldings(fetchCtx, account)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("holdings fetch failed: %w", err)
	}

	for _, h := range fresh {
		h.UserID = account.UserID
		h.Broker = account.Broker
	}

	existing, err := s.holdings.GetByUserAndBroker(ctx, account.UserID, account.Broker)
	if err != nil {
		return nil, fmt.Errorf("holdings read failed: %w", err)
	}

	stats, err := service.Reconcile(ctx, s.reconciler, existing, fresh, s.holdings)
	entry.HoldingsChanged = stats.Changed()
	if err != nil {
		return nil, fmt.Errorf("holdings reconcile failed: %w", err)
	}

	symbols := make([]string, 0, len(fresh))
	for _, h := range fresh {
		symbols = append(symbols, h.Symbol)
	}
	return symbols, nil
}

// syncPositions returns the equity symbols worth warming up
func (s *SyncService) syncPositions(ctx context.Context, client domain.BrokerClient, account *domain.BrokerAccount, entry *domain.SyncLog) ([]string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.BrokerTimeout)
	fresh, err := client.FetchPositions(fetchCtx, account)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("positions fetch failed: %w", err)
	}

	for _, p := range fresh {
		p.UserID = account.UserID
		p.Broker = account.Broker
	}

	existing, err := s.positions.GetByUserAndBroker(ctx, account.UserID, account.Broker)
	if err != nil {
		return nil, fmt.Errorf("positions read failed: %w", err)
	}

	stats, err := service.Reconcile(ctx, s.reconciler, existing, fresh, s.positions)
	entry.PositionsChanged = stats.Changed()
	if err != nil {
		return nil, fmt.Errorf("positions reconcile failed: %w", err)
	}

	var symbols []string
	for _, p := range fresh {
		if !p.IsDerivative() {
			symbols = append(symbols, p.Symbol)
		}
	}
	return symbols, nil
}

func (s *SyncService) stampAccount(ctx context.Context, account *domain.BrokerAccount, succeeded bool) {
	now := s.now()
	var lastSuccess *time.Time
	if succeeded {
		lastSuccess = &now
	}

	stampCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()
	if err := s.accounts.UpdateSyncTimestamps(stampCtx, account.ID, now, lastSuccess); err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID.String()).Msg("Failed to update sync timestamps")
		return
	}

	account.LastUsedAt = &now
	if succeeded {
		account.LastSuccessfulSync = lastSuccess
	}
}

// SyncAllActiveAccounts is the market-hours sweep over every active account
func (s *SyncService) SyncAllActiveAccounts(ctx context.Context) SweepResult {
	result := SweepResult{Kind: SweepMarketHours}

	lease, ok := s.locker.TryAcquireGlobal(ctx)
	if !ok {
		s.log.Warn().Str("kind", string(result.Kind)).Msg("Another sweep holds the global lock, skipping")
		result.Skipped = true
		result.SkipReason = "global sync lock is held"
		return result
	}
	defer s.locker.ReleaseGlobal(ctx, lease)

	if !s.locker.IsMarketOpen() {
		s.log.Debug().Msg("Market closed, skipping market-hours sweep")
		result.Skipped = true
		result.SkipReason = "market is closed"
		return result
	}

	s.sweep(ctx, &result, func(*domain.BrokerAccount) bool { return true })
	return result
}

// SyncStaleAccountsOffHours syncs accounts not refreshed within the staleness window, outside market hours
func (s *SyncService) SyncStaleAccountsOffHours(ctx context.Context) SweepResult {
	result := SweepResult{Kind: SweepOffHours}

	lease, ok := s.locker.TryAcquireGlobal(ctx)
	if !ok {
		s.log.Warn().Str("kind", string(result.Kind)).Msg("Another sweep holds the global lock, skipping")
		result.Skipped = true
		result.SkipReason = "global sync lock is held"
		return result
	}
	defer s.locker.ReleaseGlobal(ctx, lease)

	if s.locker.IsMarketOpen() {
		s.log.Debug().Msg("Market open, skipping off-hours sweep")
		result.Skipped = true
		result.SkipReason = "market is open"
		return result
	}

	now := s.now()
	s.sweep(ctx, &result, func(a *domain.BrokerAccount) bool {
		return a.IsStale(now, s.cfg.OffHoursStaleness)
	})
	return result
}

func (s *SyncService) sweep(ctx context.Context, result *SweepResult, include func(*domain.BrokerAccount) bool) {
	start := s.now()
	s.log.Info().Str("kind", string(result.Kind)).Msg("Sweep started")

	for page := 0; ; page++ {
		if ctx.Err() != nil {
			s.log.Warn().Err(ctx.Err()).Int("page", page).Msg("Sweep cancelled")
			break
		}

		batch, err := s.accounts.FindActive(ctx, page, s.cfg.PageSize)
		if err != nil {
			s.log.Error().Err(err).Int("page", page).Msg("Failed to load active accounts, aborting sweep")
			break
		}

		for _, account := range batch {
			if !include(account) {
				continue
			}
			result.Considered++

			entry := s.syncIsolated(ctx, account)
			switch {
			case entry == nil:
				result.Failed++
			case entry.Status == domain.SyncSuccess:
				result.Succeeded++
			case entry.Status == domain.SyncPartialFailure:
				result.Partial++
			default:
				result.Failed++
			}
		}

		if len(batch) < s.cfg.PageSize {
			break
		}
	}

	s.log.Info().
		Str("kind", string(result.Kind)).
		Int("considered", result.Considered).
		Int("succeeded", result.Succeeded).
		Int("partial", result.Partial).
		Int("failed", result.Failed).
		Dur("duration", s.now().Sub(start)).
		Msg("Sweep complete")
}

// syncIsolated keeps one account's panic from aborting the sweep
func (s *SyncService) syncIsolated(ctx context.Context, account *domain.BrokerAccount) (entry *domain.SyncLog) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("account_id", account.ID.String()).Msg("Account sync panicked")
			entry = nil
		}
	}()
	return s.RunFullSyncForAccount(ctx, account)
}

// TriggerManualRefreshForUser syncs every active account of a user.
// It ignores the global lock but respects each account's own lock.
func (s *SyncService) TriggerManualRefreshForUser(ctx context.Context, userID uuid.UUID) (*domain.RefreshSummary, error) {
	accounts, err := s.accounts.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list broker accounts: %w", err)
	}

	summary := &domain.RefreshSummary{
		TriggeredBrokers: []domain.Broker{},
		SkippedBrokers:   []domain.Broker{},
		SkipReasons:      make(map[domain.Broker]string),
	}

	now := s.now()
	var runnable []*domain.BrokerAccount
	for _, account := range accounts {
		if reason := account.CheckSyncable(now); reason != "" {
			summary.SkippedBrokers = append(summary.SkippedBrokers, account.Broker)
			summary.SkipReasons[account.Broker] = reason
			continue
		}
		runnable = append(runnable, account)
	}

	// Accounts are independent, so brokers sync side by side
	type outcome struct {
		entry    *domain.SyncLog
		acquired bool
	}
	outcomes := make([]outcome, len(runnable))
	var g errgroup.Group
	for i, account := range runnable {
		g.Go(func() error {
			entry, acquired := s.runFullSync(ctx, account)
			outcomes[i] = outcome{entry: entry, acquired: acquired}
			return nil
		})
	}
	_ = g.Wait()

	for i, account := range runnable {
		o := outcomes[i]
		if !o.acquired {
			summary.SkippedBrokers = append(summary.SkippedBrokers, account.Broker)
			summary.SkipReasons[account.Broker] = o.entry.Message
			continue
		}
		summary.TriggeredBrokers = append(summary.TriggeredBrokers, account.Broker)
		summary.Results = append(summary.Results, o.entry)
	}

	summary.Accepted = len(summary.TriggeredBrokers) > 0
	s.log.Info().
		Str("user_id", userID.String()).
		Int("triggered", len(summary.TriggeredBrokers)).
		Int("skipped", len(summary.SkippedBrokers)).
		Msg("Manual refresh complete")

	return summary, nil
}

func newSyncLog(account *domain.BrokerAccount, at time.Time) *domain.SyncLog {
	return &domain.SyncLog{
		ID:        uuid.New(),
		Timestamp: at,
		UserID:    account.UserID,
		AccountID: account.ID,
		Broker:    account.Broker,
	}
}
