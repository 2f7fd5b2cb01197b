package infra

import (
	"context"
	"fmt"
	stdlog "log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"stockfolio/internal/domain"
	"stockfolio/internal/usecase"
)

// Sweeper runs the fleet-wide sync passes
type Sweeper interface {
	SyncAllActiveAccounts(ctx context.Context) usecase.SweepResult
	SyncStaleAccountsOffHours(ctx context.Context) usecase.SweepResult
}

// ScheduleConfig holds the cron expressions (with seconds field)
type ScheduleConfig struct {
	MarketHours string
	OffHours    string
	PricePurge  string
	PriceTTL    time.Duration // rows older than this are purged
}

// Scheduler manages scheduled sync sweeps and price housekeeping
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	purger  domain.PricePurger // nil when the price store expires rows itself
	cfg     ScheduleConfig
	now     func() time.Time
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a new scheduler running in the market's timezone
func NewScheduler(sweeper Sweeper, purger domain.PricePurger, loc *time.Location, cfg ScheduleConfig, log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cron.PrintfLogger(stdlog.New(log, "", 0))),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		sweeper: sweeper,
		purger:  purger,
		cfg:     cfg,
		now:     time.Now,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start registers the jobs and starts the cron loop
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.MarketHours, func() { s.runSweep(usecase.SweepMarketHours) }); err != nil {
		return fmt.Errorf("failed to schedule market-hours sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.OffHours, func() { s.runSweep(usecase.SweepOffHours) }); err != nil {
		return fmt.Errorf("failed to schedule off-hours sweep: %w", err)
	}

	if s.purger != nil {
		if _, err := s.cron.AddFunc(s.cfg.PricePurge, func() { s.purgePrices(s.ctx) }); err != nil {
			return fmt.Errorf("failed to schedule price purge: %w", err)
		}
	}

	s.cron.Start()
	s.log.Info().
		Str("market_hours", s.cfg.MarketHours).
		Str("off_hours", s.cfg.OffHours).
		Bool("price_purge", s.purger != nil).
		Msg("Scheduler started")
	return nil
}

// Stop cancels in-flight jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.log.Info().Msg("Stopping scheduler...")
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// RunNow runs a sweep immediately, outside the schedule
func (s *Scheduler) RunNow(ctx context.Context, kind usecase.SweepKind) (usecase.SweepResult, error) {
	switch kind {
	case usecase.SweepMarketHours:
		return s.sweeper.SyncAllActiveAccounts(ctx), nil
	case usecase.SweepOffHours:
		return s.sweeper.SyncStaleAccountsOffHours(ctx), nil
	}
	return usecase.SweepResult{}, fmt.Errorf("unknown sweep kind %q", kind)
}

func (s *Scheduler) runSweep(kind usecase.SweepKind) {
	result, err := s.RunNow(s.ctx, kind)
	if err != nil {
		s.log.Error().Err(err).Msg("Scheduled sweep failed")
		return
	}
	if result.Skipped {
		s.log.Debug().Str("kind", string(kind)).Str("reason", result.SkipReason).Msg("Scheduled sweep skipped")
	}
}

func (s *Scheduler) purgePrices(ctx context.Context) int64 {
	cutoff := s.now().Add(-s.cfg.PriceTTL)
	removed, err := s.purger.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to purge expired prices")
		return 0
	}
	s.log.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("Expired prices purged")
	return removed
}
