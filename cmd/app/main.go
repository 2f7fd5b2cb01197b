package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"stockfolio/configs"
	"stockfolio/internal/adapter"
	"stockfolio/internal/database"
	httpdelivery "stockfolio/internal/delivery/http"
	"stockfolio/internal/delivery/ops"
	"stockfolio/internal/domain"
	"stockfolio/internal/infra"
	"stockfolio/internal/logger"
	"stockfolio/internal/middleware"
	"stockfolio/internal/repository"
	"stockfolio/internal/repository/memory"
	"stockfolio/internal/service"
	"stockfolio/internal/usecase"
	"stockfolio/internal/utils"
)

// storage groups the repositories for the selected driver
type storage struct {
	accounts  domain.BrokerAccountRepository
	holdings  domain.HoldingRepository
	positions domain.PositionRepository
	syncLogs  domain.SyncLogRepository
	prices    domain.PriceStore
	purger    domain.PricePurger
	checks    map[string]ops.Check
	close     func()
}

func main() {
	cfg, err := configs.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	logger.SetGlobalLogger(log)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Stockfolio exited with error")
	}
}

func run(cfg *configs.Config, log zerolog.Logger) error {
	ctx := context.Background()

	loc, err := utils.LoadLocation(cfg.Market.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load market timezone: %w", err)
	}
	openH, openM, _ := configs.ParseClock(cfg.Market.Open)
	closeH, closeM, _ := configs.ParseClock(cfg.Market.Close)
	hours := service.NewMarketHours(loc, openH, openM, closeH, closeM, cfg.Market.Holidays)

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	// Redis, when configured, backs the locks and the price cache so several
	// instances can share the sweep schedule
	var locker domain.SyncLocker = service.NewSyncCoordinator(hours, log)
	if cfg.Redis.URL != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.URL, log)
		if err != nil {
			return err
		}
		defer rdb.Close()

		locker = adapter.NewRedisSyncLocker(rdb, hours, cfg.Sync.GlobalLockLease, cfg.Sync.AccountLockLease, log)
		store.prices = adapter.NewRedisPriceStore(rdb, cfg.Prices.StoreTTL())
		store.purger = nil
		store.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	registry := adapter.NewBrokerRegistry()
	for broker, url := range cfg.Brokers {
		registry.Register(broker, adapter.NewBrokerBridge(broker, url, cfg.Sync.BrokerTimeout))
		log.Info().Str("broker", string(broker)).Str("url", url).Msg("Broker bridge registered")
	}
	if len(cfg.Brokers) == 0 {
		log.Warn().Msg("No broker bridges configured (BROKER_BRIDGES); every sync will fail")
	}
	for broker, err := range registry.HealthCheck(ctx) {
		if err != nil {
			log.Warn().Err(err).Str("broker", string(broker)).Msg("Broker bridge is not reachable yet")
		}
	}

	quotes := adapter.NewAlphaVantage(cfg.Quote.URL, cfg.Quote.APIKey, cfg.Quote.SymbolSuffix, cfg.Quote.Timeout)
	if cfg.Quote.APIKey == "" {
		log.Warn().Msg("ALPHA_VANTAGE_API_KEY is empty; quote fetches will fail and rows fall back to broker prices")
	}

	prices := service.NewMarketPriceService(store.prices, quotes, hours, service.PriceCacheConfig{
		Freshness:     cfg.Prices.Freshness,
		MaxStaleness:  cfg.Prices.MaxStaleness,
		WarmupTimeout: cfg.Prices.WarmupTimeout,
		FetchTimeout:  cfg.Quote.Timeout,
	}, log)
	reconciler := service.NewReconciler(log)

	syncService := usecase.NewSyncService(
		store.accounts, store.holdings, store.positions, store.syncLogs,
		locker, registry, prices, reconciler,
		usecase.SyncConfig{
			PageSize:          cfg.Sync.PageSize,
			OffHoursStaleness: cfg.Sync.OffHoursStaleness,
			BrokerTimeout:     cfg.Sync.BrokerTimeout,
		},
		log,
	)
	portfolioService := usecase.NewPortfolioService(
		store.accounts, store.holdings, store.positions, store.syncLogs,
		prices, service.NewContractParser(loc, cfg.Market.LotSizes), locker, reconciler, log,
	)

	scheduler := infra.NewScheduler(syncService, store.purger, loc, infra.ScheduleConfig{
		MarketHours: cfg.Scheduler.MarketHours,
		OffHours:    cfg.Scheduler.OffHours,
		PricePurge:  cfg.Scheduler.PricePurge,
		PriceTTL:    cfg.Prices.StoreTTL(),
	}, log)
	if cfg.Scheduler.Enabled {
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()
	} else {
		log.Warn().Msg("Scheduler disabled (SCHEDULER_ENABLED=false); only manual sweeps will run")
	}

	e := echo.New()
	e.HideBanner = true
	httpdelivery.SetupRoutes(e, &httpdelivery.RouterConfig{
		Auth:             middleware.NewAuthenticator(cfg.Auth.JWTSecret),
		PortfolioHandler: httpdelivery.NewPortfolioHandler(portfolioService, syncService),
		BrokerHandler:    httpdelivery.NewBrokerHandler(portfolioService),
		PriceHandler:     httpdelivery.NewPriceHandler(prices),
		AdminHandler:     httpdelivery.NewAdminHandler(scheduler, registry),
		Logger:           log,
	})

	opsServer := ops.New(ops.Config{
		Addr:    ":" + cfg.Server.OpsPort,
		Checks:  store.checks,
		Brokers: registry,
		Sweeps:  scheduler,
		Log:     log,
	})

	errCh := make(chan error, 2)
	go func() {
		addr := ":" + cfg.Server.Port
		log.Info().Str("addr", addr).Str("env", cfg.Server.Env).Msg("Starting API server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		if err := opsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("ops server: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down...")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("Server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server forced to shutdown")
	}
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ops server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
	return runErr
}

func openStorage(ctx context.Context, cfg *configs.Config, log zerolog.Logger) (*storage, error) {
	if cfg.Database.Driver == configs.StorageMemory {
		log.Warn().Msg("Using in-memory storage; cached portfolios are lost on restart")
		prices := memory.NewPriceStore()
		return &storage{
			accounts:  memory.NewBrokerAccountRepository(),
			holdings:  memory.NewHoldingRepository(),
			positions: memory.NewPositionRepository(),
			syncLogs:  memory.NewSyncLogRepository(),
			prices:    prices,
			purger:    prices,
			checks:    map[string]ops.Check{},
			close:     func() {},
		}, nil
	}

	db, err := infra.NewDatabase(ctx, cfg.Database.URL, infra.PoolConfig{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	}, log)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(ctx, db, log); err != nil {
		db.Close()
		return nil, err
	}

	prices := repository.NewMarketPriceRepository(db)
	return &storage{
		accounts:  repository.NewBrokerAccountRepository(db),
		holdings:  repository.NewHoldingRepository(db),
		positions: repository.NewPositionRepository(db),
		syncLogs:  repository.NewSyncLogRepository(db),
		prices:    prices,
		purger:    prices,
		checks:    map[string]ops.Check{"postgres": db.Ping},
		close:     db.Close,
	}, nil
}
